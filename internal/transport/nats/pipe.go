// Package nats adapts the external Pipe.queue(message, path_options)
// collaborator (spec.md §6) onto NATS: Pipe.Queue serializes a LogMessage's
// NVTable (internal/nvtable's persisted binary layout) and republishes it on
// a subject; a Subscriber does the reverse and feeds LogScheduler.Push.
//
// Grounded on _examples/ClusterCockpit-cc-backend/pkg/nats/client.go,
// adapted to this repo's own log package instead of cc-lib/ccLogger and to
// carry nvtable-encoded payloads instead of opaque JSON blobs.
package nats

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/log"
)

// Config mirrors the connection options the teacher's client accepts.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
	Subject       string
}

// Pipe publishes re-injected messages to a NATS subject. It implements
// scheduler.Pipe.
type Pipe struct {
	conn    *nats.Conn
	subject string

	mu            sync.Mutex
	subscriptions []*nats.Subscription
}

// Dial connects to the configured NATS server. Grounded on NewClient in the
// teacher's pkg/nats/client.go.
func Dial(cfg Config) (*Pipe, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("nats: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("nats: async error: %v", err)
		}),
	)

	conn, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	log.Infof("nats: connected to %s", cfg.Address)

	return &Pipe{conn: conn, subject: cfg.Subject}, nil
}

// Queue implements scheduler.Pipe: it serializes msg's NVTable and publishes
// it, then drops the caller's reference, matching the "takes ownership"
// contract of spec.md §6.
func (p *Pipe) Queue(msg *message.LogMessage, opts message.PathOptions) {
	defer msg.Unref()

	data, err := nvtable.Marshal(msg.Table)
	if err != nil {
		log.Errorf("nats: marshaling message for publish: %v", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		log.Errorf("nats: publish to %q failed: %v", p.subject, err)
	}
}

// Subscriber turns inbound NATS messages on a subject back into LogMessages,
// handing each to handle (typically Scheduler.Push bound to a fixed
// ingest-thread index for that subscription's delivery goroutine).
type Subscriber struct {
	pipe    *Pipe
	handle  func(*message.LogMessage)
}

// Subscribe registers handle to run for every message published on subject.
func (p *Pipe) Subscribe(subject string, handle func(*message.LogMessage)) (*Subscriber, error) {
	s := &Subscriber{pipe: p, handle: handle}

	sub, err := p.conn.Subscribe(subject, func(m *nats.Msg) {
		tab, err := nvtable.Unmarshal(m.Data)
		if err != nil {
			log.Errorf("nats: dropping malformed message on %q: %v", subject, err)
			return
		}
		handle(message.New(tab))
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe to %q: %w", subject, err)
	}

	p.mu.Lock()
	p.subscriptions = append(p.subscriptions, sub)
	p.mu.Unlock()

	log.Infof("nats: subscribed to %q", subject)
	return s, nil
}

// Close unsubscribes everything and closes the connection.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("nats: unsubscribe failed: %v", err)
		}
	}
	p.subscriptions = nil

	if p.conn != nil {
		p.conn.Close()
		log.Infof("nats: connection closed")
	}
}
