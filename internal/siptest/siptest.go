// Package siptest provides in-memory implementations of the stack facing
// interfaces of package sip, for tests and dry runs.
package siptest

import (
	"context"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

var connSeq atomic.Uint64

// Conn is an in-memory [sip.Connection].
type Conn struct {
	id     string
	proto  sip.TransportProto
	raddr  netip.AddrPort
	closed atomic.Bool
}

// NewConn returns a connection with a process-unique ID.
func NewConn(proto sip.TransportProto, raddr netip.AddrPort) *Conn {
	return &Conn{
		id:    "conn-" + strconv.FormatUint(connSeq.Add(1), 10),
		proto: proto,
		raddr: raddr,
	}
}

func (c *Conn) ID() string                    { return c.id }
func (c *Conn) Transport() sip.TransportProto { return c.proto }
func (c *Conn) RemoteAddr() netip.AddrPort    { return c.raddr }

func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Reply is a locally generated response recorded by [Request].
type Reply struct {
	Status sip.ResponseStatus
	Reason string
}

// RequestOptions describe an inbound request.
type RequestOptions struct {
	// Method is the method token, e.g. "INVITE".
	Method      string
	RequestURI  uri.SIP
	From        uri.SIP
	To          uri.SIP
	ToTag       string
	Routes      []uri.SIP
	MaxForwards *int
	Headers     map[string]string
	Conn        sip.Connection
	// Source defaults to the connection remote address.
	Source netip.AddrPort
}

// Request is an in-memory [sip.Request] recording every mutation.
type Request struct {
	mu       sync.Mutex
	method   sip.RequestMethod
	mtdName  string
	ruri     uri.SIP
	from, to uri.SIP
	toTag    string
	routes   []uri.SIP
	maxFwd   int
	hasMaxFw bool
	natFixed bool
	hdrs     map[string]string
	conn     sip.Connection
	src      netip.AddrPort
	target   sip.Connection
	replies  []Reply
}

// NewRequest builds a request from opts.
func NewRequest(opts RequestOptions) *Request {
	req := &Request{
		method:  sip.ParseRequestMethod(opts.Method),
		mtdName: opts.Method,
		ruri:    opts.RequestURI,
		from:    opts.From,
		to:      opts.To,
		toTag:   opts.ToTag,
		routes:  append([]uri.SIP(nil), opts.Routes...),
		hdrs:    make(map[string]string, len(opts.Headers)),
		conn:    opts.Conn,
		src:     opts.Source,
	}
	if opts.MaxForwards != nil {
		req.maxFwd, req.hasMaxFw = *opts.MaxForwards, true
	}
	for k, v := range opts.Headers {
		req.hdrs[strings.ToLower(k)] = v
	}
	if !req.src.IsValid() && req.conn != nil {
		req.src = req.conn.RemoteAddr()
	}
	return req
}

func (r *Request) Method() sip.RequestMethod { return r.method }
func (r *Request) MethodName() string        { return r.mtdName }

func (r *Request) RequestURI() uri.SIP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ruri
}

func (r *Request) SetRequestURI(u uri.SIP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ruri = u
}

func (r *Request) From() uri.SIP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.from
}

func (r *Request) SetFrom(u uri.SIP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.from = u
}

func (r *Request) To() uri.SIP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.to
}

func (r *Request) SetTo(u uri.SIP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = u
}

func (r *Request) TopRoute() (uri.SIP, bool) {
	if len(r.routes) == 0 {
		return uri.SIP{}, false
	}
	return r.routes[0], true
}

func (r *Request) MaxForwards() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxFwd, r.hasMaxFw
}

func (r *Request) SetMaxForwards(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxFwd, r.hasMaxFw = n, true
}

func (r *Request) InDialog() bool { return r.toTag != "" }

func (r *Request) FixNAT() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.natFixed = true
}

// NATFixed reports whether FixNAT was called.
func (r *Request) NATFixed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.natFixed
}

func (r *Request) Header(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.hdrs[strings.ToLower(name)]
	return v, ok
}

func (r *Request) SetHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hdrs[strings.ToLower(name)] = value
}

func (r *Request) DelHeader(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hdrs, strings.ToLower(name))
}

func (r *Request) Transport() sip.TransportProto {
	if r.conn == nil {
		return "UDP"
	}
	return r.conn.Transport()
}

func (r *Request) Source() netip.AddrPort     { return r.src }
func (r *Request) Connection() sip.Connection { return r.conn }

func (r *Request) OutboundTarget() (sip.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target, r.target != nil
}

func (r *Request) SetOutboundTarget(conn sip.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = conn
}

func (r *Request) Reply(_ context.Context, status sip.ResponseStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, Reply{Status: status, Reason: reason})
	return nil
}

// Replies returns the responses generated for the request so far.
func (r *Request) Replies() []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reply(nil), r.replies...)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
