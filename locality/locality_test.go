package locality_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/neighborhoods/docker-oversip/locality"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/uri"
)

type fakeResolver map[string][]netip.Addr

func (r fakeResolver) LookupHost(_ context.Context, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host " + host)
	}
	return addrs, nil
}

func TestBuild(t *testing.T) {
	t.Parallel()

	s, err := locality.Build(t.Context(), &locality.Options{
		Domains:   []string{"Proxy.Example.NET.", "sip.example.net", "gone.example.net"},
		Addresses: []netip.Addr{netip.MustParseAddr("::ffff:192.0.2.1")},
		Resolver: fakeResolver{
			"proxy.example.net": {netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("2001:db8::10")},
			"sip.example.net":   {netip.MustParseAddr("192.0.2.10")},
		},
		Logger: log.Noop,
	})
	if err == nil {
		t.Error("locality.Build() error = nil, want resolution error")
	}
	if s == nil {
		t.Fatal("locality.Build() = nil, want usable set")
	}

	if diff := cmp.Diff(s.Domains(), []string{"gone.example.net", "proxy.example.net", "sip.example.net"}); diff != "" {
		t.Errorf("s.Domains() mismatch (-got +want):\n%s", diff)
	}
	var addrs []string
	for _, a := range s.Addresses() {
		addrs = append(addrs, a.String())
	}
	if diff := cmp.Diff(addrs, []string{"192.0.2.1", "192.0.2.10", "2001:db8::10"}); diff != "" {
		t.Errorf("s.Addresses() mismatch (-got +want):\n%s", diff)
	}

	if _, err := locality.Build(t.Context(), nil); err == nil {
		t.Error("locality.Build(nil) error = nil, want error")
	}
}

func TestSet_IsLocal(t *testing.T) {
	t.Parallel()

	s, err := locality.Build(t.Context(), &locality.Options{
		Domains:   []string{"proxy.example.net"},
		Addresses: []netip.Addr{netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("2001:db8::1")},
		Ports:     []uint16{5060, 5061},
		Logger:    log.Noop,
	})
	if err != nil {
		t.Fatalf("locality.Build() error = %v, want nil", err)
	}

	cases := []struct {
		uri  string
		want bool
	}{
		{"sip:proxy.example.net;lr", true},
		{"sip:PROXY.example.net.:5060;lr", true},
		{"sips:proxy.example.net", true},
		{"sip:bob@proxy.example.net:5061;transport=tls", true},
		{"sip:proxy.example.net:5080;lr", false},
		{"sip:192.0.2.1;lr", true},
		{"sip:[2001:db8::1]:5060", true},
		{"sip:[2001:db8::2]:5060", false},
		{"sip:192.0.2.2", false},
		{"sip:example.net", false},
		{"sip:edge.proxy.example.net", false},
	}
	for _, c := range cases {
		if got := s.IsLocal(uri.MustParse(c.uri)); got != c.want {
			t.Errorf("s.IsLocal(%q) = %v, want %v", c.uri, got, c.want)
		}
	}

	if s.IsLocal(uri.SIP{}) {
		t.Error("s.IsLocal(zero URI) = true, want false")
	}
	var nilSet *locality.Set
	if nilSet.IsLocal(uri.MustParse("sip:proxy.example.net")) {
		t.Error("nil set reports a local URI")
	}
}

func TestSet_IsLocalAnyPort(t *testing.T) {
	t.Parallel()

	s, err := locality.Build(t.Context(), &locality.Options{Domains: []string{"proxy.example.net"}, Logger: log.Noop})
	if err != nil {
		t.Fatalf("locality.Build() error = %v, want nil", err)
	}
	if !s.IsLocal(uri.MustParse("sip:proxy.example.net:15060")) {
		t.Error("s.IsLocal() = false for a port without port restrictions, want true")
	}
}
