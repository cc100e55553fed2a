package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/logflowd/logflowd/log"
)

// RegistryOptions sizes the process-wide name-value registry (internal/registry).
type RegistryOptions struct {
	MaxHandles  uint32   `json:"max_handles"`
	StaticNames []string `json:"static_names"`
}

// NVTableOptions holds initial sizing values in the shape of internal/nvtable.New's
// arguments. They are loaded and validated; cmd/logflowd does not read them.
type NVTableOptions struct {
	InitialPayloadBytes    int `json:"initial_payload_bytes"`
	InitialDynamicCapacity int `json:"initial_dynamic_capacity"`
}

// SchedulerOptions mirrors spec.md §6's LogScheduler configuration table,
// plus the worker-runtime knobs the original leaves to its embedding
// daemon (max_threads, the batch-boundary tick).
type SchedulerOptions struct {
	NumPartitions int    `json:"num_partitions"`
	PartitionKey  string `json:"partition_key"`
	MaxThreads    int    `json:"max_threads"`
	BatchTickMs   int    `json:"batch_tick_ms"`
}

// NATSOptions configures the internal/transport/nats.Pipe: InboundSubject
// is where the daemon subscribes for incoming messages to feed into the
// scheduler; Subject is where the scheduler's front pipe republishes
// scheduled messages.
type NATSOptions struct {
	Address        string `json:"address"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	CredsFilePath  string `json:"creds_file_path"`
	InboundSubject string `json:"inbound_subject"`
	Subject        string `json:"subject"`
}

// Options is the full recognized configuration document.
type Options struct {
	MetricsAddr string           `json:"metrics_addr"`
	Registry    RegistryOptions  `json:"registry"`
	NVTable     NVTableOptions   `json:"nvtable"`
	Scheduler   SchedulerOptions `json:"scheduler"`
	NATS        NATSOptions      `json:"nats"`
}

// Keys holds the effective configuration, starting from these defaults and
// overridden field-by-field by whatever Init loads — matching the
// teacher's package-level var Keys pattern in internal/config/config.go.
var Keys = Options{
	MetricsAddr: ":9090",
	Registry: RegistryOptions{
		MaxHandles:  4096,
		StaticNames: []string{"MSG", "HOST", "PROGRAM", "PID", "FACILITY", "PRIORITY", "TAGS"},
	},
	NVTable: NVTableOptions{
		InitialPayloadBytes:    256,
		InitialDynamicCapacity: 8,
	},
	Scheduler: SchedulerOptions{
		NumPartitions: 0,
		MaxThreads:    4,
		BatchTickMs:   50,
	},
	NATS: NATSOptions{
		InboundSubject: "logflowd.inbound",
		Subject:        "logflowd.outbound",
	},
}

// Init reads path, validates it against the embedded schema, and decodes
// it over Keys. A missing file is not an error (the defaults stand); a
// malformed or schema-invalid file is fatal at startup, matching the
// teacher's internal/config.Init.
func Init(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Fatalf("config: reading %q: %v", path, err)
	}

	if err := Validate(raw); err != nil {
		log.Fatalf("config: %v", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatalf("config: decoding %q: %v", path, err)
	}
}
