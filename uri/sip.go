package uri

//go:generate errtrace -w .

import (
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
)

// ErrMalformedURI is returned when an input can not be parsed as a SIP URI.
const ErrMalformedURI errorutil.Error = "malformed SIP URI"

func newMalformedURIError(args ...any) error {
	return errorutil.NewWrapperError(ErrMalformedURI, args...) //errtrace:skip
}

// Param is a single URI parameter. Flag parameters (e.g. "lr") have an empty value.
type Param struct {
	Name  string
	Value string
}

// SIP represents a SIP or SIPS URI.
type SIP struct {
	Secured  bool
	User     string
	Password string
	Host     string
	// Port is zero when the URI carries no explicit port.
	Port uint16

	params  []Param
	headers string
}

// New returns a plain "sip:user@host" URI.
func New(user, host string) SIP { return SIP{User: user, Host: host} }

// Parse parses a sip: or sips: URI.
func Parse(s string) (SIP, error) {
	var u SIP

	scheme, rest, ok := strings.Cut(s, ":")
	switch {
	case !ok:
		return SIP{}, errtrace.Wrap(newMalformedURIError("missing scheme in %q", s))
	case strings.EqualFold(scheme, "sip"):
	case strings.EqualFold(scheme, "sips"):
		u.Secured = true
	default:
		return SIP{}, errtrace.Wrap(newMalformedURIError("unsupported scheme %q", scheme))
	}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		u.headers = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		u.User, u.Password, _ = strings.Cut(rest[:i], ":")
		if u.User == "" {
			return SIP{}, errtrace.Wrap(newMalformedURIError("empty user in %q", s))
		}
		rest = rest[i+1:]
	}

	hostport, params, _ := strings.Cut(rest, ";")
	host, port, err := splitHostPort(hostport)
	if err != nil {
		return SIP{}, errtrace.Wrap(newMalformedURIError(err))
	}
	u.Host, u.Port = host, port

	if params != "" {
		for _, p := range strings.Split(params, ";") {
			if p == "" {
				continue
			}
			name, val, _ := strings.Cut(p, "=")
			u.params = append(u.params, Param{Name: name, Value: val})
		}
	}
	return u, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(s string) SIP {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func splitHostPort(s string) (string, uint16, error) {
	if s == "" {
		return "", 0, errtrace.Wrap(errorutil.Error("empty host"))
	}

	host, portStr := s, ""
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", 0, errtrace.Wrap(fmt.Errorf("unterminated IPv6 reference %q", s))
		}
		host = s[:end+1]
		if rest := s[end+1:]; rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, errtrace.Wrap(fmt.Errorf("unexpected %q after IPv6 reference", rest))
			}
			portStr = rest[1:]
		}
	} else if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host, portStr = s[:i], s[i+1:]
	}

	if host == "" {
		return "", 0, errtrace.Wrap(errorutil.Error("empty host"))
	}
	if portStr == "" {
		return host, 0, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, errtrace.Wrap(fmt.Errorf("invalid port %q", portStr))
	}
	return host, uint16(port), nil
}

// IsZero reports whether u is the zero URI.
func (u SIP) IsZero() bool { return u.Host == "" && u.User == "" }

// Scheme returns "sip" or "sips".
func (u SIP) Scheme() string {
	if u.Secured {
		return "sips"
	}
	return "sip"
}

// Addr returns the host as an IP address when it is an IP literal.
func (u SIP) Addr() (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.Trim(u.Host, "[]"))
	return addr, err == nil
}

// Param returns the value of the first parameter named name (case-insensitive).
func (u SIP) Param(name string) (string, bool) {
	for _, p := range u.params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// HasParam reports whether the URI carries a parameter named name.
func (u SIP) HasParam(name string) bool {
	_, ok := u.Param(name)
	return ok
}

// Params returns a copy of the URI parameters in their original order.
func (u SIP) Params() []Param { return slices.Clone(u.params) }

// WithUser returns a copy of u with the user part replaced.
func (u SIP) WithUser(user string) SIP {
	u.params = slices.Clone(u.params)
	u.User = user
	return u
}

// WithHost returns a copy of u with the host and port replaced.
func (u SIP) WithHost(host string, port uint16) SIP {
	u.params = slices.Clone(u.params)
	u.Host, u.Port = host, port
	return u
}

// WithParam returns a copy of u where parameter name is set to val.
// An existing parameter keeps its position.
func (u SIP) WithParam(name, val string) SIP {
	params := slices.Clone(u.params)
	i := slices.IndexFunc(params, func(p Param) bool { return strings.EqualFold(p.Name, name) })
	if i >= 0 {
		params[i].Value = val
	} else {
		params = append(params, Param{Name: name, Value: val})
	}
	u.params = params
	return u
}

// WithoutParam returns a copy of u without any parameter named name.
func (u SIP) WithoutParam(name string) SIP {
	u.params = slices.DeleteFunc(slices.Clone(u.params), func(p Param) bool {
		return strings.EqualFold(p.Name, name)
	})
	return u
}

// String renders the URI.
func (u SIP) String() string {
	var sb strings.Builder
	sb.WriteString(u.Scheme())
	sb.WriteByte(':')
	if u.User != "" {
		sb.WriteString(u.User)
		if u.Password != "" {
			sb.WriteByte(':')
			sb.WriteString(u.Password)
		}
		sb.WriteByte('@')
	}
	sb.WriteString(u.Host)
	if u.Port != 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(u.Port), 10))
	}
	for _, p := range u.params {
		sb.WriteByte(';')
		sb.WriteString(p.Name)
		if p.Value != "" {
			sb.WriteByte('=')
			sb.WriteString(p.Value)
		}
	}
	if u.headers != "" {
		sb.WriteByte('?')
		sb.WriteString(u.headers)
	}
	return sb.String()
}

// Equal compares two SIP URIs following the RFC 3261 Section 19.1.4 rules
// the routing layer depends on: scheme, user and password are compared
// case-sensitively, host case-insensitively, ports must match, and the special
// parameters (transport, user, method, maddr, ttl) must agree when present in either URI.
func (u SIP) Equal(other SIP) bool {
	if u.Secured != other.Secured ||
		u.User != other.User ||
		u.Password != other.Password ||
		!strings.EqualFold(u.Host, other.Host) ||
		u.Port != other.Port {
		return false
	}
	for _, name := range specParams {
		v1, ok1 := u.Param(name)
		v2, ok2 := other.Param(name)
		if ok1 != ok2 || !strings.EqualFold(v1, v2) {
			return false
		}
	}
	return true
}

var specParams = []string{"transport", "user", "method", "maddr", "ttl"}

// MarshalText implements [encoding.TextMarshaler].
func (u SIP) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (u *SIP) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return errtrace.Wrap(err)
	}
	*u = v
	return nil
}

// LogValue implements [slog.LogValuer].
func (u SIP) LogValue() slog.Value { return slog.StringValue(u.String()) }
