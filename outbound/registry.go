package outbound

import (
	"github.com/neighborhoods/docker-oversip/internal/syncutil"
	"github.com/neighborhoods/docker-oversip/sip"
)

// Registry tracks the client connections flow tokens were issued for.
// It is safe for concurrent use.
type Registry struct {
	conns syncutil.RWMap[string, sip.Connection]
}

// Add registers conn under its ID. It reports whether the ID was new.
func (r *Registry) Add(conn sip.Connection) bool {
	_, replaced := r.conns.Set(conn.ID(), conn)
	return !replaced
}

// Remove forgets the connection, typically when the stack closes it.
func (r *Registry) Remove(connID string) (sip.Connection, bool) {
	return r.conns.GetAndDel(connID)
}

// Lookup returns the live connection with the ID.
func (r *Registry) Lookup(connID string) (sip.Connection, bool) {
	return r.conns.Get(connID)
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int { return r.conns.Len() }
