// Package assertion tracks the SIP identity asserted for client connections.
//
// A connection becomes asserted when a REGISTER sent through it is accepted by
// the registrar, which only happens after the client authenticated. Requests
// later sent through the connection by the same user get a P-Asserted-Identity
// header so the proxy behind does not challenge them again. A failed REGISTER
// revokes the assertion. Only reliable transports are tracked, a UDP source
// address proves nothing about the sender.
package assertion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/neighborhoods/docker-oversip/internal/syncutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

// Identity header names (RFC 3325).
const (
	HeaderPAI = "P-Asserted-Identity"
	HeaderPPI = "P-Preferred-Identity"
)

// StoreOptions are options for [NewStore].
type StoreOptions struct {
	// Logger is the store logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *StoreOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Store keeps the asserted identity per connection ID.
// It is safe for concurrent use.
type Store struct {
	users syncutil.RWMap[string, string]
	log   *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts *StoreOptions) *Store {
	return &Store{log: opts.log()}
}

// AOR returns the address-of-record form of u: scheme, user and lower-cased host.
func AOR(u uri.SIP) string {
	var sb strings.Builder
	sb.WriteString(u.Scheme())
	sb.WriteByte(':')
	if u.User != "" {
		sb.WriteString(u.User)
		sb.WriteByte('@')
	}
	sb.WriteString(strings.ToLower(u.Host))
	return sb.String()
}

// AssertedUser returns the asserted AOR of the connection.
func (s *Store) AssertedUser(connID string) (string, bool) {
	return s.users.Get(connID)
}

// Forget drops the connection state.
func (s *Store) Forget(connID string) (user string, ok bool) {
	return s.users.GetAndDel(connID)
}

// ConnectionClosed forgets the identity asserted for a closed connection.
func (s *Store) ConnectionClosed(ctx context.Context, connID string) {
	if user, ok := s.Forget(connID); ok {
		s.log.LogAttrs(ctx, slog.LevelInfo, "closed connection assertion dropped",
			slog.String("connection", connID),
			slog.String("user", user),
		)
	}
}

func trackedConn(req sip.Request) (sip.Connection, bool) {
	if req == nil {
		return nil, false
	}
	conn := req.Connection()
	if conn == nil || !conn.Transport().Reliable() {
		return nil, false
	}
	return conn, true
}

// AddPAI sets P-Asserted-Identity on a request whose From matches the identity
// asserted for its connection. Identity headers sent by the client are always
// removed.
func (s *Store) AddPAI(ctx context.Context, req sip.Request) {
	if req == nil {
		return
	}
	for _, name := range []string{HeaderPAI, HeaderPPI} {
		if v, ok := req.Header(name); ok {
			s.log.LogAttrs(ctx, slog.LevelDebug, "removing client identity header",
				slog.String("header", name),
				slog.String("value", v),
			)
			req.DelHeader(name)
		}
	}

	conn, ok := trackedConn(req)
	if !ok {
		return
	}
	user, ok := s.users.Get(conn.ID())
	if !ok {
		return
	}
	if from := AOR(req.From()); from != user {
		s.log.LogAttrs(ctx, slog.LevelDebug, "From does not match the asserted user",
			slog.String("from", from),
			slog.String("asserted", user),
		)
		return
	}
	req.SetHeader(HeaderPAI, "<"+user+">")
}

// AssertConnection asserts the From identity of the REGISTER the response answers.
func (s *Store) AssertConnection(ctx context.Context, res *sip.Response) {
	if res == nil {
		return
	}
	conn, ok := trackedConn(res.Request)
	if !ok {
		return
	}
	user := AOR(res.Request.From())
	if prev, replaced := s.users.Set(conn.ID(), user); !replaced || prev != user {
		s.log.LogAttrs(ctx, slog.LevelInfo, "connection asserted",
			slog.String("connection", conn.ID()),
			slog.String("user", user),
		)
	}
}

// RevokeAssertion drops the identity asserted for the connection of the
// REGISTER the response answers.
func (s *Store) RevokeAssertion(ctx context.Context, res *sip.Response) {
	if res == nil {
		return
	}
	conn, ok := trackedConn(res.Request)
	if !ok {
		return
	}
	if user, ok := s.users.GetAndDel(conn.ID()); ok {
		s.log.LogAttrs(ctx, slog.LevelInfo, "connection assertion revoked",
			slog.String("connection", conn.ID()),
			slog.String("user", user),
			slog.Any("status", res.Status),
		)
	}
}
