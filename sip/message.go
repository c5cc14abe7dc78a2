package sip

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/neighborhoods/docker-oversip/uri"
)

// TransportProto is a transport protocol name ("UDP", "TCP", "TLS", ...).
type TransportProto string

func (p TransportProto) Equal(other TransportProto) bool {
	return strings.EqualFold(string(p), string(other))
}

// Reliable reports whether the protocol is connection oriented.
func (p TransportProto) Reliable() bool { return !p.Equal("UDP") }

//go:generate go tool mockgen -destination=../internal/testutil/sipmock/connection.go -package=sipmock . Connection

// Connection is a transport connection handle owned by the stack.
type Connection interface {
	// ID identifies the connection for as long as it is open.
	ID() string
	Transport() TransportProto
	RemoteAddr() netip.AddrPort
	Close() error
}

// Request is an inbound SIP request as exposed by the stack for the duration of
// one routing decision.
//
// URI accessors return values; rewriting a URI means storing a new value with
// the matching setter.
type Request interface {
	Method() RequestMethod
	// MethodName is the method token exactly as received.
	MethodName() string

	RequestURI() uri.SIP
	SetRequestURI(u uri.SIP)
	// From and To return the URI of the respective header.
	From() uri.SIP
	SetFrom(u uri.SIP)
	To() uri.SIP
	SetTo(u uri.SIP)
	// TopRoute returns the URI of the topmost Route header value.
	TopRoute() (uri.SIP, bool)

	// MaxForwards returns the Max-Forwards value, ok is false when the header is absent.
	MaxForwards() (n int, ok bool)
	SetMaxForwards(n int)

	// InDialog reports whether the request carries dialog-identifying headers (a To tag).
	InDialog() bool
	// FixNAT forces rport usage and requests Outbound keep-alives for the client.
	// It is idempotent.
	FixNAT()

	Header(name string) (string, bool)
	SetHeader(name, value string)
	// DelHeader removes every value of the header.
	DelHeader(name string)

	Transport() TransportProto
	Source() netip.AddrPort
	Connection() Connection

	// OutboundTarget returns the client connection the request must be delivered
	// through when an Outbound flow has been resolved for it.
	OutboundTarget() (Connection, bool)
	SetOutboundTarget(conn Connection)

	// Reply sends a locally generated final response for the request.
	Reply(ctx context.Context, status ResponseStatus, reason string) error
}

// Response is a response received by a proxy transaction.
// It is never modified by the routing core.
type Response struct {
	Status ResponseStatus
	Reason string
	// Request is the request the transaction forwarded.
	Request Request
}

// ReasonPhrase returns Reason or the default phrase of Status.
func (r *Response) ReasonPhrase() string {
	if r == nil {
		return ""
	}
	if r.Reason != "" {
		return r.Reason
	}
	return r.Status.Reason()
}

func (r *Response) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Any("status", r.Status),
		slog.String("reason", r.ReasonPhrase()),
	)
}
