// Package tlsauth reacts to completed TLS handshakes of SIP connections.
//
// A [Handler] validates the peer certificate chain, extracts the SIP identities
// of the peer and applies the configured [Policy] to invalid chains: keep the
// connection and log (fail open) or close it (fail closed).
package tlsauth

//go:generate errtrace -w .

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"strings"

	"braces.dev/errtrace"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/sip"
)

// Policy decides what happens to a connection with an invalid peer certificate.
type Policy uint8

const (
	// PolicyFailOpen keeps the connection open.
	PolicyFailOpen Policy = iota
	// PolicyFailClosed closes the connection.
	PolicyFailClosed
)

// ErrUnknownPolicy is returned when a policy name can not be parsed.
const ErrUnknownPolicy errorutil.Error = "unknown TLS policy"

// ParsePolicy parses "fail_open" or "fail_closed".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail_open", "":
		return PolicyFailOpen, nil
	case "fail_closed":
		return PolicyFailClosed, nil
	default:
		return 0, errtrace.Wrap(errorutil.NewWrapperError(ErrUnknownPolicy, "%q", s))
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyFailOpen:
		return "fail_open"
	case PolicyFailClosed:
		return "fail_closed"
	default:
		return fmt.Sprintf("Policy(%d)", p)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return errtrace.Wrap(err)
	}
	*p = v
	return nil
}

// Decision is the outcome of a handshake check.
type Decision struct {
	Valid      bool
	Identities []string
	// Closed reports whether the connection was closed by the policy.
	Closed bool
	Result Result
}

// HandlerOptions are options for [NewHandler].
type HandlerOptions struct {
	// Validator validates peer chains.
	// If nil, an [X509Validator] with the system roots is used.
	Validator Validator
	// Extractor extracts peer identities.
	// If nil, [SANExtractor] is used.
	Extractor IdentityExtractor
	// Policy applies to invalid chains.
	Policy Policy
	// Logger is the handler logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *HandlerOptions) validator() Validator {
	if o == nil || o.Validator == nil {
		return &X509Validator{}
	}
	return o.Validator
}

func (o *HandlerOptions) extractor() IdentityExtractor {
	if o == nil || o.Extractor == nil {
		return SANExtractor{}
	}
	return o.Extractor
}

func (o *HandlerOptions) policy() Policy {
	if o == nil {
		return PolicyFailOpen
	}
	return o.Policy
}

func (o *HandlerOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Handler checks the peer certificates of TLS connections.
// It is safe for concurrent use.
type Handler struct {
	validator Validator
	extractor IdentityExtractor
	policy    Policy
	log       *slog.Logger
}

// NewHandler creates a handler.
func NewHandler(opts *HandlerOptions) *Handler {
	return &Handler{
		validator: opts.validator(),
		extractor: opts.extractor(),
		policy:    opts.policy(),
		log:       opts.log(),
	}
}

// Policy returns the policy applied to invalid chains.
func (h *Handler) Policy() Policy { return h.policy }

// OnClientHandshake checks the chain of a client that connected to us.
func (h *Handler) OnClientHandshake(ctx context.Context, conn sip.Connection, chain []*x509.Certificate) Decision {
	return h.check(ctx, "client", conn, chain)
}

// OnServerHandshake checks the chain of a server we connected to.
func (h *Handler) OnServerHandshake(ctx context.Context, conn sip.Connection, chain []*x509.Certificate) Decision {
	return h.check(ctx, "server", conn, chain)
}

func (h *Handler) check(ctx context.Context, peer string, conn sip.Connection, chain []*x509.Certificate) Decision {
	raddr := conn.RemoteAddr()
	h.log.LogAttrs(ctx, slog.LevelInfo, "validating TLS connection",
		slog.String("peer", peer),
		slog.String("remote_addr", raddr.String()),
	)

	res := h.validator.Validate(chain)
	dec := Decision{
		Valid:      res.Valid,
		Identities: h.extractor.SIPIdentities(res.Leaf),
		Result:     res,
	}

	if res.Valid {
		h.log.LogAttrs(ctx, slog.LevelInfo, peer+" provides a valid TLS certificate",
			slog.String("remote_addr", raddr.String()),
			slog.Any("identities", dec.Identities),
		)
		return dec
	}

	h.log.LogAttrs(ctx, slog.LevelWarn, peer+" provides an invalid TLS certificate",
		slog.String("remote_addr", raddr.String()),
		slog.Any("identities", dec.Identities),
		slog.String("tls_error", res.ErrorCode),
		slog.String("tls_error_description", res.ErrorDescription),
		slog.Any("certificate", res.Leaf),
		slog.Any("policy", h.policy),
	)

	if h.policy == PolicyFailClosed {
		if err := conn.Close(); err != nil {
			h.log.LogAttrs(ctx, slog.LevelError, "failed to close TLS connection",
				slog.String("remote_addr", raddr.String()),
				slog.Any("error", err),
			)
		}
		dec.Closed = true
	}
	return dec
}
