// Package locality decides whether a SIP URI addresses this server.
//
// A [Set] is built once at startup from the configured domain names, listening
// addresses and ports. Domain names are resolved at build time, so the check
// itself never touches the network.
package locality

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"net/netip"
	"slices"
	"strings"

	"braces.dev/errtrace"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/uri"
)

// Default SIP ports.
const (
	DefaultPort    uint16 = 5060
	DefaultTLSPort uint16 = 5061
)

// HostResolver resolves a domain name to its addresses.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// Options describe the local identity of the server.
type Options struct {
	// Domains are the domain names this server answers for.
	Domains []string
	// Addresses are the IP addresses the server listens on.
	Addresses []netip.Addr
	// Ports are the listening ports. If empty, any port matches.
	Ports []uint16
	// Resolver resolves Domains. If nil, domains only match by name.
	Resolver HostResolver
	// Logger is the build logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Set is an immutable local identity. It is safe for concurrent use.
type Set struct {
	domains []string
	addrs   []netip.Addr
	ports   []uint16
}

// Build creates a set from opts, resolving every domain with opts.Resolver.
// Resolution failures of single domains are joined into the returned error
// together with a usable set.
func Build(ctx context.Context, opts *Options) (*Set, error) {
	if opts == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil options"))
	}

	s := &Set{ports: slices.Clone(opts.Ports)}
	for _, d := range opts.Domains {
		s.domains = append(s.domains, strings.ToLower(strings.TrimSuffix(d, ".")))
	}
	for _, a := range opts.Addresses {
		s.addrs = append(s.addrs, a.Unmap())
	}

	var errs []error
	if opts.Resolver != nil {
		for _, d := range s.domains {
			addrs, err := opts.Resolver.LookupHost(ctx, d)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			opts.log().LogAttrs(ctx, slog.LevelDebug, "local domain resolved",
				slog.String("domain", d),
				slog.Any("addresses", addrs),
			)
			for _, a := range addrs {
				s.addrs = append(s.addrs, a.Unmap())
			}
		}
	}

	slices.SortFunc(s.addrs, netip.Addr.Compare)
	s.addrs = slices.Compact(s.addrs)
	slices.Sort(s.domains)
	s.domains = slices.Compact(s.domains)

	return s, errtrace.Wrap(errorutil.JoinPrefix("resolve local domains", errs...))
}

// IsLocal reports whether u names this server by domain or address and port.
// A URI without a port matches on the default port of its scheme.
func (s *Set) IsLocal(u uri.SIP) bool {
	if s == nil || u.Host == "" {
		return false
	}
	if !s.portMatches(u) {
		return false
	}
	if addr, ok := u.Addr(); ok {
		_, found := slices.BinarySearchFunc(s.addrs, addr.Unmap(), netip.Addr.Compare)
		return found
	}
	_, found := slices.BinarySearch(s.domains, strings.ToLower(strings.TrimSuffix(u.Host, ".")))
	return found
}

func (s *Set) portMatches(u uri.SIP) bool {
	if len(s.ports) == 0 {
		return true
	}
	port := u.Port
	if port == 0 {
		port = DefaultPort
		if tr, _ := u.Param("transport"); u.Secured || strings.EqualFold(tr, "tls") {
			port = DefaultTLSPort
		}
	}
	return slices.Contains(s.ports, port)
}

// Domains returns the local domain names.
func (s *Set) Domains() []string { return slices.Clone(s.domains) }

// Addresses returns the local addresses, configured and resolved.
func (s *Set) Addresses() []netip.Addr { return slices.Clone(s.addrs) }
