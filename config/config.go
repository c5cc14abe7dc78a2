// Package config loads the YAML configuration of the routing core.
package config

//go:generate errtrace -w .

import (
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"

	"braces.dev/errtrace"
	"gopkg.in/yaml.v3"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/outbound"
	"github.com/neighborhoods/docker-oversip/routing"
	"github.com/neighborhoods/docker-oversip/tlsauth"
)

// ErrInvalidConfig is returned when a configuration fails validation.
const ErrInvalidConfig errorutil.Error = "invalid config"

// Config is the top-level configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Routing  routing.Config `yaml:"routing"`
	Local    LocalConfig    `yaml:"local"`
	Outbound OutboundConfig `yaml:"outbound"`
	TLS      TLSConfig      `yaml:"tls"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Format is "console" (default), "dev" or "json".
	Format log.Format `yaml:"format"`
	// Level is "debug", "info" (default), "warn" or "error".
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"add_source"`
}

// LocalConfig describes how the server recognizes itself in URIs.
type LocalConfig struct {
	// Domains are the domain names of the server, resolved at startup.
	Domains []string `yaml:"domains"`
	// Addresses are the listening IP addresses.
	Addresses []netip.Addr `yaml:"addresses"`
	// Ports are the listening ports. Empty means any port.
	Ports []uint16 `yaml:"ports"`
	// NameServer resolves Domains. Empty means the system resolver configuration.
	NameServer string `yaml:"nameserver"`
}

// OutboundConfig configures Outbound flow tokens.
type OutboundConfig struct {
	// FlowTokenKey is the hex encoded 32 byte token key.
	// When empty a random key is generated at startup and tokens issued before a
	// restart become invalid.
	FlowTokenKey string `yaml:"flow_token_key"`
}

// Key decodes FlowTokenKey, nil when unset.
func (c OutboundConfig) Key() ([]byte, error) {
	if c.FlowTokenKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.FlowTokenKey)
	if err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("flow_token_key: %w", err))
	}
	if len(key) != outbound.KeySize {
		return nil, errtrace.Wrap(fmt.Errorf("flow_token_key: want %d bytes, got %d", outbound.KeySize, len(key)))
	}
	return key, nil
}

// TLSConfig configures peer certificate checks.
type TLSConfig struct {
	// Policy is "fail_open" (default) or "fail_closed".
	Policy tlsauth.Policy `yaml:"policy"`
	// CAFile is a PEM bundle of trusted CAs. Empty means the system pool.
	CAFile string `yaml:"ca_file"`
}

// RootPool loads CAFile, nil when unset.
func (c TLSConfig) RootPool() (*x509.CertPool, error) {
	if c.CAFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("ca_file: %w", err))
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errtrace.Wrap(fmt.Errorf("ca_file: no certificates in %q", c.CAFile))
	}
	return pool, nil
}

// Default returns the configuration used for omitted values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Format: log.FormatConsole,
			Level:  "info",
		},
		Routing: routing.Config{
			MaxForwards: routing.DefaultMaxForwards,
		},
		TLS: TLSConfig{
			Policy: tlsauth.PolicyFailOpen,
		},
	}
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("read config file: %w", err))
	}
	return errtrace.Wrap2(Parse(data))
}

// Parse decodes, defaults and validates a YAML configuration.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errtrace.Wrap(fmt.Errorf("parse config: %w", err))
	}
	if cfg.Routing.MaxForwards == 0 {
		cfg.Routing.MaxForwards = routing.DefaultMaxForwards
	}

	if err := cfg.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Format {
	case "", log.FormatConsole, log.FormatDev, log.FormatJSON:
	default:
		errs = append(errs, errorutil.NewWrapperError(log.ErrUnknownFormat, "log.format %q", c.Log.Format))
	}
	if _, err := log.New(&log.Options{Level: c.Log.Level, Output: io.Discard}); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := c.Routing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("routing: %w", err))
	}
	for i, d := range c.Local.Domains {
		if d == "" {
			errs = append(errs, fmt.Errorf("local.domains[%d]: empty domain", i))
		}
	}
	for i, p := range c.Local.Ports {
		if p == 0 {
			errs = append(errs, fmt.Errorf("local.ports[%d]: port 0", i))
		}
	}
	if _, err := c.Outbound.Key(); err != nil {
		errs = append(errs, fmt.Errorf("outbound.%w", err))
	}
	if c.TLS.Policy != tlsauth.PolicyFailOpen && c.TLS.Policy != tlsauth.PolicyFailClosed {
		errs = append(errs, fmt.Errorf("tls.policy: %w", tlsauth.ErrUnknownPolicy))
	}

	if len(errs) == 0 {
		return nil
	}
	return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, errors.Join(errs...)))
}

// LogOptions returns the logger options for out.
func (c *Config) LogOptions(out io.Writer) *log.Options {
	return &log.Options{
		Format:    c.Log.Format,
		Level:     c.Log.Level,
		Output:    out,
		AddSource: c.Log.AddSource,
	}
}
