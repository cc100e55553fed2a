package radix

import (
	"fmt"
	"regexp"
	"strings"
)

// compileParserNode builds a ParserNode from the body of a "@KIND[:NAME[:PARAM]]@"
// pattern segment (spec.md §4.3's grammar). Grounded on r_new_pnode in
// original_source/syslog-ng/modules/dbparser/radix.c, which dispatches on the
// kind string and stashes the raw parameter for the matching function.
func compileParserNode(spec string) (*ParserNode, error) {
	parts := strings.SplitN(spec, ":", 3)
	kindName := parts[0]
	name := ""
	param := ""
	if len(parts) >= 2 {
		name = parts[1]
	}
	if len(parts) >= 3 {
		param = parts[2]
	}

	p := &ParserNode{CaptureName: name, Param: param, First: 0, Last: 0xFF}

	switch strings.ToUpper(kindName) {
	case "STRING":
		p.Kind = KindString
	case "ESTRING":
		if param == "" {
			return nil, fmt.Errorf("ESTRING requires a terminator parameter")
		}
		p.Kind = KindEString
		p.terminator = param
	case "NLSTRING":
		p.Kind = KindNLString
	case "QSTRING":
		if len(param) == 0 {
			return nil, fmt.Errorf("QSTRING requires an open/close parameter")
		}
		p.Kind = KindQString
		p.openChar = param[0]
		if len(param) >= 2 {
			p.closeChar = param[1]
		} else {
			p.closeChar = param[0]
		}
	case "ANYSTRING":
		p.Kind = KindAnyString
	case "SET":
		if param == "" {
			return nil, fmt.Errorf("SET requires a character-class parameter")
		}
		p.Kind = KindSet
	case "NUMBER":
		p.Kind = KindNumber
		p.First, p.Last = '-', '9'
	case "FLOAT":
		p.Kind = KindFloat
		p.First, p.Last = '-', '9'
	case "IPV4":
		p.Kind = KindIPv4
		p.First, p.Last = '0', '9'
	case "IPV6":
		p.Kind = KindIPv6
	case "IPANY", "IP":
		p.Kind = KindIPAny
	case "MACADDR":
		p.Kind = KindMACAddr
		p.lladdrParts = 6
	case "LLADDR":
		n := 20
		if param != "" {
			if _, err := fmt.Sscanf(param, "%d", &n); err != nil {
				return nil, fmt.Errorf("LLADDR parameter must be a part count: %w", err)
			}
		}
		if n < 1 || n > 20 {
			return nil, fmt.Errorf("LLADDR part count out of range: %d", n)
		}
		p.Kind = KindLLAddr
		p.lladdrParts = n
	case "EMAIL":
		p.Kind = KindEmail
	case "HOSTNAME":
		p.Kind = KindHostname
	case "PCRE":
		if param == "" {
			return nil, fmt.Errorf("PCRE requires a pattern parameter")
		}
		re, err := regexp.Compile("^(?:" + param + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid PCRE pattern %q: %w", param, err)
		}
		p.Kind = KindPCRE
		p.re = re
	default:
		return nil, fmt.Errorf("unknown parser kind %q", kindName)
	}
	return p, nil
}

// try attempts to match the parser at the start of input. It returns the
// number of bytes consumed and the capture window [capOffset, capOffset+capLength)
// relative to the consumed span. A zero-length match is reported as ok but is
// always treated as a failure by the caller (spec.md §4.3 "Failure semantics").
func (p *ParserNode) try(input []byte) (consumed, capOffset, capLength int, ok bool) {
	switch p.Kind {
	case KindString:
		return tryString(input, p.Param)
	case KindEString:
		return tryEString(input, p.terminator)
	case KindNLString:
		return tryNLString(input)
	case KindQString:
		return tryQString(input, p.openChar, p.closeChar)
	case KindAnyString:
		return tryAnyString(input)
	case KindSet:
		return trySet(input, p.Param)
	case KindNumber:
		return tryNumber(input)
	case KindFloat:
		return tryFloat(input)
	case KindIPv4:
		return tryIPv4(input)
	case KindIPv6:
		return tryIPv6(input)
	case KindIPAny:
		if c, o, l, ok := tryIPv4(input); ok {
			return c, o, l, ok
		}
		return tryIPv6(input)
	case KindMACAddr:
		// A MAC address is exactly six groups: 6*2 hex digits + 5 colons.
		c, o, l, ok := tryLLAddr(input, 6)
		if !ok || c != 17 {
			return 0, 0, 0, false
		}
		return c, o, l, ok
	case KindLLAddr:
		return tryLLAddr(input, p.lladdrParts)
	case KindEmail:
		return tryEmail(input)
	case KindHostname:
		return tryHostname(input)
	case KindPCRE:
		return tryPCRE(input, p.re)
	default:
		return 0, 0, 0, false
	}
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func tryString(input []byte, extra string) (int, int, int, bool) {
	i := 0
	for i < len(input) && (isAlnum(input[i]) || strings.IndexByte(extra, input[i]) >= 0) {
		i++
	}
	if i == 0 {
		return 0, 0, 0, false
	}
	return i, 0, i, true
}

func trySet(input []byte, class string) (int, int, int, bool) {
	i := 0
	for i < len(input) && strings.IndexByte(class, input[i]) >= 0 {
		i++
	}
	if i == 0 {
		return 0, 0, 0, false
	}
	return i, 0, i, true
}

func tryAnyString(input []byte) (int, int, int, bool) {
	return len(input), 0, len(input), true
}

// tryEString matches up to (and consuming) a terminator string, excluding
// the terminator from the capture. Grounded on r_parser_estring_c /
// r_parser_estring.
func tryEString(input []byte, term string) (int, int, int, bool) {
	if term == "" {
		return 0, 0, 0, false
	}
	idx := strings.Index(string(input), term)
	if idx < 0 {
		return 0, 0, 0, false
	}
	consumed := idx + len(term)
	return consumed, 0, idx, true
}

// tryNLString matches up to (but does NOT consume) a line terminator,
// tolerating a preceding CR. Grounded on r_parser_nlstring.
func tryNLString(input []byte) (int, int, int, bool) {
	idx := -1
	for i, b := range input {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, 0, 0, false
	}
	if idx >= 1 && input[idx-1] == '\r' {
		idx--
	}
	if idx == 0 {
		return 0, 0, 0, false
	}
	return idx, 0, idx, true
}

// tryQString matches a delimited run; input[0] must be the open byte. The
// capture excludes both delimiters. Grounded on r_parser_qstring.
func tryQString(input []byte, open, close byte) (int, int, int, bool) {
	if len(input) == 0 || input[0] != open {
		return 0, 0, 0, false
	}
	idx := -1
	for i := 1; i < len(input); i++ {
		if input[i] == close {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, 0, 0, false
	}
	consumed := idx + 1
	return consumed, 1, consumed - 2, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isHex(b byte) bool {
	return isDigit(b) || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

// tryNumber matches an optional sign, decimal digits, or a 0x/0X hex run.
// Grounded on r_parser_number.
func tryNumber(input []byte) (int, int, int, bool) {
	i := 0
	if i < len(input) && input[i] == '-' {
		i++
	}
	if i+1 < len(input) && input[i] == '0' && (input[i+1] == 'x' || input[i+1] == 'X') {
		j := i + 2
		for j < len(input) && isHex(input[j]) {
			j++
		}
		if j == i+2 {
			return 0, 0, 0, false
		}
		return j, 0, j, true
	}
	start := i
	for i < len(input) && isDigit(input[i]) {
		i++
	}
	if i == start {
		return 0, 0, 0, false
	}
	return i, 0, i, true
}

// tryFloat matches an optional sign, digits, an optional '.'-fraction, and
// an optional exponent. Grounded on r_parser_float.
func tryFloat(input []byte) (int, int, int, bool) {
	i := 0
	if i < len(input) && input[i] == '-' {
		i++
	}
	digitsStart := i
	for i < len(input) && isDigit(input[i]) {
		i++
	}
	if i < len(input) && input[i] == '.' {
		i++
		for i < len(input) && isDigit(input[i]) {
			i++
		}
	}
	if i == digitsStart {
		return 0, 0, 0, false
	}
	if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
		j := i + 1
		if j < len(input) && (input[j] == '+' || input[j] == '-') {
			j++
		}
		expStart := j
		for j < len(input) && isDigit(input[j]) {
			j++
		}
		if j > expStart {
			i = j
		}
	}
	return i, 0, i, true
}

// tryIPv4 matches four dot-separated octets 0-255. Grounded on r_parser_ipv4.
func tryIPv4(input []byte) (int, int, int, bool) {
	i := 0
	for octet := 0; octet < 4; octet++ {
		start := i
		n := 0
		digits := 0
		for i < len(input) && isDigit(input[i]) && digits < 3 {
			n = n*10 + int(input[i]-'0')
			i++
			digits++
		}
		if digits == 0 || n > 255 {
			return 0, 0, 0, false
		}
		_ = start
		if octet < 3 {
			if i >= len(input) || input[i] != '.' {
				return 0, 0, 0, false
			}
			i++
		}
	}
	return i, 0, i, true
}

// tryIPv6 matches a colon/hex-group address, optionally with an embedded
// IPv4 tail and "::" compression. Grounded on r_parser_ipv6.
func tryIPv6(input []byte) (int, int, int, bool) {
	i := 0
	groups := 0
	sawDoubleColon := false
	sawAny := false

	for i < len(input) {
		if input[i] == ':' {
			if i+1 < len(input) && input[i+1] == ':' {
				if sawDoubleColon {
					break
				}
				sawDoubleColon = true
				sawAny = true
				i += 2
				continue
			}
			if !sawAny {
				return 0, 0, 0, false
			}
			i++
			continue
		}
		if isHex(input[i]) {
			j := i
			for j < len(input) && isHex(input[j]) && j-i < 4 {
				j++
			}
			if j < len(input) && input[j] == '.' {
				if c, _, _, ok := tryIPv4(input[i:]); ok {
					i += c
					groups += 2
					sawAny = true
					break
				}
			}
			i = j
			groups++
			sawAny = true
			continue
		}
		break
	}

	if !sawAny || groups == 0 {
		return 0, 0, 0, false
	}
	if !sawDoubleColon && groups < 8 {
		return 0, 0, 0, false
	}
	return i, 0, i, true
}

// tryLLAddr matches one up to parts groups of two hex digits separated by ':'.
// Grounded on _r_parser_lladdr / r_parser_macaddr / r_parser_lladdr.
func tryLLAddr(input []byte, parts int) (int, int, int, bool) {
	i := 0
	for g := 0; g < parts; g++ {
		if i+2 > len(input) || !isHex(input[i]) || !isHex(input[i+1]) {
			if g == 0 {
				return 0, 0, 0, false
			}
			break
		}
		i += 2
		if g < parts-1 {
			if i < len(input) && input[i] == ':' {
				i++
			} else {
				break
			}
		}
	}
	if i == 0 {
		return 0, 0, 0, false
	}
	return i, 0, i, true
}

func isEmailLocalByte(b byte) bool {
	return isAlnum(b) || strings.IndexByte("._%+-", b) >= 0
}

// tryEmail matches local@domain, where domain is a dot-separated hostname
// of at least two labels. Grounded on r_parser_email.
func tryEmail(input []byte) (int, int, int, bool) {
	i := 0
	for i < len(input) && isEmailLocalByte(input[i]) {
		i++
	}
	if i == 0 || i >= len(input) || input[i] != '@' {
		return 0, 0, 0, false
	}
	i++
	c, _, hl, ok := tryHostname(input[i:])
	if !ok {
		return 0, 0, 0, false
	}
	total := i + c
	return total, 0, i + hl, true
}

func isHostnameByte(b byte) bool {
	return isAlnum(b) || b == '-'
}

// tryHostname matches at least two dot-separated alnum/'-' labels.
// Grounded on r_parser_hostname.
func tryHostname(input []byte) (int, int, int, bool) {
	i := 0
	labels := 0
	for {
		start := i
		for i < len(input) && isHostnameByte(input[i]) {
			i++
		}
		if i == start {
			break
		}
		labels++
		if i < len(input) && input[i] == '.' {
			i++
			continue
		}
		break
	}
	if labels < 2 {
		return 0, 0, 0, false
	}
	if i > 0 && input[i-1] == '.' {
		i--
	}
	return i, 0, i, true
}

func tryPCRE(input []byte, re *regexp.Regexp) (int, int, int, bool) {
	loc := re.FindIndex(input)
	if loc == nil || loc[0] != 0 || loc[1] == 0 {
		return 0, 0, 0, false
	}
	return loc[1], 0, loc[1], true
}
