// oversip-route evaluates routing decisions without a SIP stack.
//
// It loads the proxy configuration, builds the router exactly as the proxy
// does, and feeds it the requests described in a YAML file. Routed requests
// go to a dry-run engine that reports the configured final response back to
// the transaction, so the per-response handlers (assertion state, Outbound
// Contact rewriting) run as well. A PEM certificate chain can be checked
// against the TLS policy in the same run.
//
// Usage:
//
//	oversip-route --config oversip.yaml --requests requests.yaml [--tls-chain peer.pem]
package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/neighborhoods/docker-oversip/assertion"
	"github.com/neighborhoods/docker-oversip/config"
	"github.com/neighborhoods/docker-oversip/dns"
	"github.com/neighborhoods/docker-oversip/internal/siptest"
	"github.com/neighborhoods/docker-oversip/locality"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/outbound"
	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/routing"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/tlsauth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath   string
		requestsPath string
		chainPath    string
		logLevel     string
	)

	flagSet := pflag.NewFlagSet("oversip-route", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the proxy configuration file (default: built-in defaults)")
	flagSet.StringVarP(&requestsPath, "requests", "r", "", "path to the YAML file describing the requests to route")
	flagSet.StringVar(&chainPath, "tls-chain", "", "PEM file with a peer certificate chain to check, leaf first")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if requestsPath == "" && chainPath == "" {
		return errors.New("nothing to do: pass --requests and/or --tls-chain")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := log.New(cfg.LogOptions(stderr))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	log.SetDefault(logger)

	if chainPath != "" {
		if err := checkChain(ctx, cfg, chainPath, stdout, logger); err != nil {
			return err
		}
	}
	if requestsPath != "" {
		return routeFixture(ctx, cfg, requestsPath, stdout, logger)
	}
	return nil
}

func checkChain(ctx context.Context, cfg *config.Config, path string, stdout io.Writer, logger *slog.Logger) error {
	chain, err := readChain(path)
	if err != nil {
		return err
	}
	roots, err := cfg.TLS.RootPool()
	if err != nil {
		return err
	}

	h := tlsauth.NewHandler(&tlsauth.HandlerOptions{
		Validator: &tlsauth.X509Validator{Roots: roots},
		Policy:    cfg.TLS.Policy,
		Logger:    logger,
	})
	conn := siptest.NewConn("TLS", netip.AddrPortFrom(netip.IPv4Unspecified(), 5061))
	dec := h.OnClientHandshake(ctx, conn, chain)

	fmt.Fprintf(stdout, "tls: valid=%t identities=[%s] closed=%t", dec.Valid, strings.Join(dec.Identities, " "), dec.Closed)
	if !dec.Valid {
		fmt.Fprintf(stdout, " error=%s", dec.Result.ErrorCode)
	}
	fmt.Fprintln(stdout)
	return nil
}

func readChain(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate chain: %w", err)
	}

	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		crt, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate chain: %w", err)
		}
		chain = append(chain, crt)
	}
	return chain, nil
}

func newRouter(ctx context.Context, cfg *config.Config, engine proxy.Engine, logger *slog.Logger) (*routing.Router, error) {
	local, err := locality.Build(ctx, &locality.Options{
		Domains:   cfg.Local.Domains,
		Addresses: cfg.Local.Addresses,
		Ports:     cfg.Local.Ports,
		Resolver:  &dns.Resolver{NameServer: cfg.Local.NameServer},
		Logger:    logger,
	})
	if err != nil {
		// Unresolved domains still match by name.
		logger.LogAttrs(ctx, slog.LevelWarn, "local domains not fully resolved", slog.Any("error", err))
	}

	opts := &routing.RouterOptions{
		Config:   cfg.Routing,
		Engine:   engine,
		Locality: local,
		Logger:   logger,
	}
	if cfg.Routing.OutboundMangling {
		key, err := cfg.Outbound.Key()
		if err != nil {
			return nil, err
		}
		if opts.Mangler, err = outbound.NewMangler(&outbound.ManglerOptions{Key: key, Logger: logger}); err != nil {
			return nil, err
		}
	}
	if cfg.Routing.UserAssertion {
		opts.Asserter = assertion.NewStore(&assertion.StoreOptions{Logger: logger})
	}
	return routing.NewRouter(opts)
}

func routeFixture(ctx context.Context, cfg *config.Config, path string, stdout io.Writer, logger *slog.Logger) error {
	fx, err := loadFixture(path)
	if err != nil {
		return err
	}

	engine := new(dryRunEngine)
	router, err := newRouter(ctx, cfg, engine, logger)
	if err != nil {
		return err
	}

	conns := make(connections)
	for _, rf := range fx.Requests {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn := conns.get(rf)
		req := rf.request(conn)
		outcome := router.OnRequest(ctx, req)

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %s", rf.Name, outcome)
		for _, r := range req.Replies() {
			fmt.Fprintf(&sb, " reply=%q", fmt.Sprintf("%d %s", r.Status, r.Reason))
		}
		if tx, ok := engine.take(); ok {
			fmt.Fprintf(&sb, " mode=%s ruri=%s", tx.Mode(), req.RequestURI())
			if conn, ok := req.OutboundTarget(); ok {
				fmt.Fprintf(&sb, " flow=%s", conn.ID())
			}
			if rf.Contact != nil {
				fmt.Fprintf(&sb, " contact=%s", tx.RewriteContact(*rf.Contact, req.Connection()))
			}
			if rf.Response != 0 {
				res := &sip.Response{Status: rf.Response, Request: req}
				if err := tx.RecvResponse(ctx, res); err != nil {
					return fmt.Errorf("%s: report response: %w", rf.Name, err)
				}
				fmt.Fprintf(&sb, " response=%d", rf.Response)
			}
		}
		if pai, ok := req.Header(assertion.HeaderPAI); ok {
			fmt.Fprintf(&sb, " pai=%s", pai)
		}
		if rf.Close {
			_ = conn.Close()
			router.OnConnectionClosed(ctx, conn)
			conns.drop(rf.Connection)
			sb.WriteString(" closed")
		}
		fmt.Fprintln(stdout, sb.String())
	}
	return nil
}
