// Package log provides the slog loggers used across the routing core.
package log

//go:generate errtrace -w .

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
)

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByType(func(c net.Conn) slog.Value {
		return slog.GroupValue(
			slog.String("type", fmt.Sprintf("%T", c)),
			slog.String("ptr", fmt.Sprintf("%p", c)),
			slog.Any("local_addr", c.LocalAddr()),
			slog.Any("remote_addr", c.RemoteAddr()),
		)
	}),
	slogformatter.FormatByType(func(crt *x509.Certificate) slog.Value {
		if crt == nil {
			return slog.StringValue("<nil>")
		}
		return slog.GroupValue(
			slog.String("subject", crt.Subject.String()),
			slog.String("issuer", crt.Issuer.String()),
			slog.String("serial", crt.SerialNumber.String()),
			slog.Time("not_after", crt.NotAfter),
		)
	}),
)

// Def is the default console logger.
var Def = slog.New(newHandler(
	console.NewHandler(os.Stdout, &console.HandlerOptions{
		AddSource:  true,
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339Nano,
	}),
))

// Dev is a developer logger.
var Dev = slog.New(newHandler(
	devslog.NewHandler(os.Stdout, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		},
		SortKeys:   true,
		TimeFormat: time.RFC3339Nano,
	}),
))

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// Noop is a noop logger.
var Noop = slog.New(noopHandler{})

var defLogger atomic.Pointer[slog.Logger]

func init() { defLogger.Store(Def) }

// Default returns the package-wide logger used when an options struct leaves Logger nil.
func Default() *slog.Logger { return defLogger.Load() }

// SetDefault replaces the logger returned by [Default].
func SetDefault(l *slog.Logger) {
	if l == nil {
		l = Noop
	}
	defLogger.Store(l)
}

// Format selects the handler flavour built by [New].
type Format string

const (
	FormatConsole Format = "console"
	FormatDev     Format = "dev"
	FormatJSON    Format = "json"
)

// ErrUnknownFormat is returned by [New] for an unsupported [Format].
const ErrUnknownFormat errorutil.Error = "unknown log format"

// Options configures a logger built with [New].
type Options struct {
	// Format is the output format. Empty means [FormatConsole].
	Format Format
	// Level is the minimal level, one of "debug", "info", "warn", "error".
	// Empty means "info".
	Level string
	// Output is the destination. Nil means os.Stdout.
	Output io.Writer
	// AddSource adds the caller location to every record.
	AddSource bool
}

func (o *Options) output() io.Writer {
	if o == nil || o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

func (o *Options) level() (slog.Level, error) {
	var lvl slog.Level
	if o == nil || o.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(o.Level))); err != nil {
		return 0, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	return lvl, nil
}

// New builds a logger from opts. Nil opts produce an info-level console logger.
func New(opts *Options) (*slog.Logger, error) {
	lvl, err := opts.level()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var (
		out       = opts.output()
		addSource = opts != nil && opts.AddSource
		format    = FormatConsole
	)
	if opts != nil && opts.Format != "" {
		format = opts.Format
	}

	var h slog.Handler
	switch format {
	case FormatConsole:
		h = console.NewHandler(out, &console.HandlerOptions{
			AddSource:  addSource,
			Level:      lvl,
			TimeFormat: time.RFC3339Nano,
		})
	case FormatDev:
		h = devslog.NewHandler(out, &devslog.Options{
			HandlerOptions: &slog.HandlerOptions{AddSource: addSource, Level: lvl},
			SortKeys:       true,
			TimeFormat:     time.RFC3339Nano,
		})
	case FormatJSON:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{AddSource: addSource, Level: lvl})
	default:
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnknownFormat, "%q", format))
	}
	return slog.New(newHandler(h)), nil
}

type fmtValue struct {
	v        any
	goSyntax bool
}

func (v fmtValue) LogValue() slog.Value {
	if v.goSyntax {
		return slog.StringValue(fmt.Sprintf("%#v", v.v))
	}
	return slog.StringValue(fmt.Sprintf("%+v", v.v))
}

// FmtValue returns a value logger that formats values using '%+v' or '%#v' syntax.
func FmtValue(v any, goSyntax bool) slog.LogValuer { return fmtValue{v, goSyntax} }

type stringerValue struct{ v fmt.Stringer }

func (v stringerValue) LogValue() slog.Value { return slog.StringValue(v.v.String()) }

// StringValue returns a value logger that renders v with its String method.
func StringValue(v fmt.Stringer) slog.LogValuer { return stringerValue{v} }
