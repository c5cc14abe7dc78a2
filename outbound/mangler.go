// Package outbound implements Outbound flow handling for registrars that do
// not support Path (RFC 5626 Section 5.3 without edge Path insertion).
//
// Forwarded REGISTER requests get a flow token identifying the client connection
// embedded into their Contact. Requests the registrar later routes back to that
// Contact carry the token in their Request-URI, which resolves them to the
// client connection again.
package outbound

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

// TokenParam is the URI parameter carrying the flow token.
const TokenParam = "ov-ob"

// ManglerOptions are options for [NewMangler].
type ManglerOptions struct {
	// Key is the flow token key, [KeySize] bytes.
	// If empty, a random key is generated.
	Key []byte
	// Registry tracks the client connections.
	// If nil, a new registry is created.
	Registry *Registry
	// Logger is the mangler logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *ManglerOptions) key() ([]byte, error) {
	if o == nil || len(o.Key) == 0 {
		return errtrace.Wrap2(GenerateKey())
	}
	return o.Key, nil
}

func (o *ManglerOptions) registry() *Registry {
	if o == nil || o.Registry == nil {
		return new(Registry)
	}
	return o.Registry
}

func (o *ManglerOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Mangler embeds and extracts flow tokens.
// It is safe for concurrent use.
type Mangler struct {
	codec *Codec
	reg   *Registry
	log   *slog.Logger
}

// NewMangler creates a mangler.
func NewMangler(opts *ManglerOptions) (*Mangler, error) {
	key, err := opts.key()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	codec, err := NewCodec(key)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &Mangler{
		codec: codec,
		reg:   opts.registry(),
		log:   opts.log(),
	}, nil
}

// Registry returns the registry of client connections.
func (m *Mangler) Registry() *Registry { return m.reg }

// ExtractFromRURI removes the flow token from the Request-URI and sets the
// connection it identifies as the request Outbound target.
// Invalid tokens and tokens of closed connections are removed too but resolve nothing.
func (m *Mangler) ExtractFromRURI(ctx context.Context, req sip.Request) bool {
	ruri := req.RequestURI()
	token, ok := ruri.Param(TokenParam)
	if !ok {
		return false
	}
	req.SetRequestURI(ruri.WithoutParam(TokenParam))

	connID, err := m.codec.Decode(token)
	if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "discarding Outbound flow token",
			slog.Any("ruri", ruri),
			slog.Any("error", err),
		)
		return false
	}
	conn, ok := m.reg.Lookup(connID)
	if !ok {
		m.log.LogAttrs(ctx, slog.LevelInfo, "Outbound flow is gone", slog.String("connection", connID))
		return false
	}

	req.SetOutboundTarget(conn)
	m.log.LogAttrs(ctx, slog.LevelDebug, "Outbound flow resolved",
		slog.String("connection", connID),
		slog.Any("remote_addr", conn.RemoteAddr()),
	)
	return true
}

// AddOutboundToContact installs a Contact rewriter on the transaction that
// embeds the flow token of the client connection and tracks the connection.
func (m *Mangler) AddOutboundToContact(tx *proxy.Transaction) {
	tx.SetContactRewriter(m.RewriteContact)
}

// RewriteContact returns contact carrying the flow token of conn.
// The contact is returned unchanged when there is no client connection.
func (m *Mangler) RewriteContact(contact uri.SIP, conn sip.Connection) uri.SIP {
	if conn == nil {
		return contact
	}
	m.reg.Add(conn)
	return contact.WithParam(TokenParam, m.codec.Encode(conn.ID()))
}

// ConnectionClosed forgets the client connection: tokens issued for it no
// longer resolve.
func (m *Mangler) ConnectionClosed(ctx context.Context, connID string) {
	if _, ok := m.reg.Remove(connID); ok {
		m.log.LogAttrs(ctx, slog.LevelDebug, "Outbound flow closed", slog.String("connection", connID))
	}
}
