package routing

import (
	"context"

	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

//go:generate go tool mockgen -destination=../internal/testutil/sipmock/routing.go -package=sipmock . Locality,OutboundMangler,UserAsserter

// Locality answers whether a URI addresses this server.
type Locality interface {
	IsLocal(u uri.SIP) bool
}

// LocalityFunc adapts a function to [Locality].
type LocalityFunc func(u uri.SIP) bool

func (f LocalityFunc) IsLocal(u uri.SIP) bool { return f(u) }

// OutboundMangler maintains Outbound flow tokens for registrars without Path support.
type OutboundMangler interface {
	// ExtractFromRURI removes a flow token from the Request-URI and, when it
	// identifies a live client connection, sets it as the request Outbound target.
	// It reports whether a target was resolved.
	ExtractFromRURI(ctx context.Context, req sip.Request) bool
	// AddOutboundToContact arranges for a flow token identifying the client
	// connection to be embedded into the Contact of the forwarded request.
	AddOutboundToContact(tx *proxy.Transaction)
}

// UserAsserter maintains the asserted SIP identity of client connections.
type UserAsserter interface {
	// AddPAI adds a P-Asserted-Identity header when the request connection has
	// an asserted identity.
	AddPAI(ctx context.Context, req sip.Request)
	// AssertConnection trusts the identity of a successfully registered connection.
	AssertConnection(ctx context.Context, res *sip.Response)
	// RevokeAssertion drops the asserted identity after a failed REGISTER.
	RevokeAssertion(ctx context.Context, res *sip.Response)
}

// ConnectionObserver is implemented by collaborators keeping per-connection
// state. [Router.OnConnectionClosed] notifies the Mangler and the Asserter when
// they implement it.
type ConnectionObserver interface {
	ConnectionClosed(ctx context.Context, connID string)
}
