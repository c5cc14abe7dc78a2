package main

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neighborhoods/docker-oversip/internal/siptest"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

// fixture is a file of request descriptions.
type fixture struct {
	Requests []requestFixture `yaml:"requests"`
}

// requestFixture describes one inbound request and, optionally, the response
// the next hop answers with.
type requestFixture struct {
	Name        string            `yaml:"name"`
	Method      string            `yaml:"method"`
	RequestURI  uri.SIP           `yaml:"ruri"`
	From        uri.SIP           `yaml:"from"`
	To          uri.SIP           `yaml:"to"`
	ToTag       string            `yaml:"to_tag"`
	Routes      []uri.SIP         `yaml:"routes"`
	MaxForwards *int              `yaml:"max_forwards"`
	Headers     map[string]string `yaml:"headers"`
	// Connection names the client connection, requests with the same name
	// share it. Empty means a fresh connection.
	Connection string         `yaml:"connection"`
	Transport  string         `yaml:"transport"`
	Source     netip.AddrPort `yaml:"source"`
	// Contact is rewritten by the routed transaction and printed.
	Contact *uri.SIP `yaml:"contact"`
	// Response is the final status reported to the routed transaction.
	Response sip.ResponseStatus `yaml:"response"`
	// Close closes the connection once the request is handled.
	Close bool `yaml:"close"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requests file: %w", err)
	}

	var fx fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("parse requests file: %w", err)
	}
	for i, rf := range fx.Requests {
		if rf.Method == "" {
			return nil, fmt.Errorf("requests[%d]: method is required", i)
		}
		if rf.RequestURI.IsZero() {
			return nil, fmt.Errorf("requests[%d]: ruri is required", i)
		}
		if rf.Response != 0 && !rf.Response.IsFinal() {
			return nil, fmt.Errorf("requests[%d]: response %d is not a final status", i, rf.Response)
		}
		if fx.Requests[i].Name == "" {
			fx.Requests[i].Name = fmt.Sprintf("%s#%d", rf.Method, i+1)
		}
	}
	return &fx, nil
}

// connections hands out named client connections.
type connections map[string]*siptest.Conn

var defaultSource = netip.MustParseAddrPort("192.0.2.100:5060")

func (cs connections) get(rf requestFixture) *siptest.Conn {
	if c, ok := cs[rf.Connection]; ok && rf.Connection != "" {
		return c
	}

	proto := sip.TransportProto(strings.ToUpper(rf.Transport))
	if proto == "" {
		proto = "UDP"
	}
	src := rf.Source
	if !src.IsValid() {
		src = defaultSource
	}
	c := siptest.NewConn(proto, src)
	if rf.Connection != "" {
		cs[rf.Connection] = c
	}
	return c
}

// drop forgets the named connection, the next request with the name gets a
// fresh one.
func (cs connections) drop(name string) { delete(cs, name) }

func (rf requestFixture) request(conn *siptest.Conn) *siptest.Request {
	return siptest.NewRequest(siptest.RequestOptions{
		Method:      rf.Method,
		RequestURI:  rf.RequestURI,
		From:        rf.From,
		To:          rf.To,
		ToTag:       rf.ToTag,
		Routes:      rf.Routes,
		MaxForwards: rf.MaxForwards,
		Headers:     rf.Headers,
		Conn:        conn,
		Source:      rf.Source,
	})
}
