package routing

//go:generate errtrace -w .

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/neighborhoods/docker-oversip/dialplan"
	"github.com/neighborhoods/docker-oversip/internal/errorutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/sip"
)

// Outcome is the result of one routing decision.
type Outcome uint8

const (
	// OutcomeRouted means a proxy transaction was handed to the engine.
	OutcomeRouted Outcome = iota + 1
	// OutcomeReplied means the request was answered locally (404 for requests to this server).
	OutcomeReplied
	// OutcomeRejected means a policy rejection was replied (403, 483, 501).
	OutcomeRejected
	// OutcomeDropped means the request was silently discarded.
	OutcomeDropped
	// OutcomeFailed means the reply could not be sent or the engine refused the transaction.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeReplied:
		return "replied"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (o Outcome) LogValue() slog.Value { return slog.StringValue(o.String()) }

// Reason phrases of the locally generated responses.
const (
	ReasonForbiddenInDialog = "forbidden in-dialog request without top Route pointing to us"
	ReasonPreloadedRoute    = "Pre-loaded Route not allowed"
	ReasonDestinationMyself = "Ok, I'm here"
	ReasonNotImplemented    = "Not Implemented"
	ReasonTooManyHops       = "Too Many Hops"
)

const headerUserAgent = "User-Agent"

// RouterOptions are options for [NewRouter].
type RouterOptions struct {
	// Config holds the feature toggles.
	Config Config
	// Engine executes the created transactions. Required.
	Engine proxy.Engine
	// Locality decides whether a URI addresses this server. Required.
	Locality Locality
	// Mangler is required when Config.OutboundMangling is set.
	Mangler OutboundMangler
	// Asserter is required when Config.UserAssertion is set.
	Asserter UserAsserter
	// Logger is the router logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *RouterOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

func (o *RouterOptions) validate() error {
	if o == nil {
		return errtrace.Wrap(sip.NewInvalidArgumentError("nil options"))
	}

	var errs []error
	if err := o.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.Engine == nil {
		errs = append(errs, sip.NewInvalidArgumentError("engine is required"))
	}
	if o.Locality == nil {
		errs = append(errs, sip.NewInvalidArgumentError("locality is required"))
	}
	if o.Config.OutboundMangling && o.Mangler == nil {
		errs = append(errs, sip.NewInvalidArgumentError("outbound mangling enabled without a mangler"))
	}
	if o.Config.UserAssertion && o.Asserter == nil {
		errs = append(errs, sip.NewInvalidArgumentError("user assertion enabled without an asserter"))
	}
	return errtrace.Wrap(errorutil.JoinPrefix("invalid router options", errs...))
}

// Router is the request decision layer.
// It holds no per-request state and is safe for concurrent use.
type Router struct {
	cfg      Config
	engine   proxy.Engine
	locality Locality
	mangler  OutboundMangler
	asserter UserAsserter
	log      *slog.Logger
}

// NewRouter creates a router.
func NewRouter(opts *RouterOptions) (*Router, error) {
	if err := opts.validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &Router{
		cfg:      opts.Config,
		engine:   opts.Engine,
		locality: opts.Locality,
		mangler:  opts.Mangler,
		asserter: opts.Asserter,
		log:      opts.log(),
	}, nil
}

// Config returns the router configuration.
func (r *Router) Config() Config { return r.cfg }

// OnRequest decides what happens to an inbound request and carries it out:
// a local reply, a silent drop or a proxy transaction handed to the engine.
// It never blocks on I/O of its own.
func (r *Router) OnRequest(ctx context.Context, req sip.Request) Outcome {
	r.log.LogAttrs(ctx, slog.LevelInfo, "request received",
		slog.String("method", req.MethodName()),
		slog.Any("from", req.From()),
		slog.String("user_agent", headerValue(req, headerUserAgent)),
		slog.Any("ruri", req.RequestURI()),
		slog.String("transport", string(req.Transport())),
		slog.String("source", req.Source().String()),
	)

	outcome := r.classify(ctx, req)

	r.log.LogAttrs(ctx, slog.LevelDebug, "request decided",
		slog.String("method", req.MethodName()),
		slog.Any("outcome", outcome),
	)
	return outcome
}

func (r *Router) classify(ctx context.Context, req sip.Request) Outcome {
	if !r.checkMaxForwards(ctx, req) {
		return r.reply(ctx, req, sip.ResponseStatusTooManyHops, ReasonTooManyHops, OutcomeRejected)
	}

	// All the traffic is assumed to come from clients.
	req.FixNAT()

	route, hasRoute := req.TopRoute()
	routeToUs := hasRoute && r.locality.IsLocal(route)

	if req.InDialog() {
		if routeToUs {
			r.log.LogAttrs(ctx, slog.LevelDebug, "proxying in-dialog request", slog.String("method", req.MethodName()))
			return r.route(ctx, req, proxy.ModeInDialog, proxy.Handlers{})
		}
		if req.Method() == sip.MethodAck {
			r.log.LogAttrs(ctx, slog.LevelWarn, "ignoring not loose routing ACK")
			return OutcomeDropped
		}
		r.log.LogAttrs(ctx, slog.LevelWarn, "forbidden in-dialog request without top Route pointing to us",
			slog.String("method", req.MethodName()),
			slog.Any("route", route),
		)
		return r.reply(ctx, req, sip.ResponseStatusForbidden, ReasonForbiddenInDialog, OutcomeRejected)
	}

	if hasRoute && !routeToUs {
		if req.Method() == sip.MethodAck {
			r.log.LogAttrs(ctx, slog.LevelWarn, "ignoring ACK initial request", slog.Any("route", route))
			return OutcomeDropped
		}
		r.log.LogAttrs(ctx, slog.LevelWarn, "pre-loaded Route not allowed",
			slog.String("method", req.MethodName()),
			slog.Any("route", route),
		)
		return r.reply(ctx, req, sip.ResponseStatusForbidden, ReasonPreloadedRoute, OutcomeRejected)
	}

	return r.routeInitial(ctx, req)
}

// OnConnectionClosed drops the state the collaborators keep for a client
// connection. The stack calls it once the connection is gone, so that flow
// tokens stop resolving to it and its asserted identity is forgotten.
func (r *Router) OnConnectionClosed(ctx context.Context, conn sip.Connection) {
	if conn == nil {
		return
	}

	r.log.LogAttrs(ctx, slog.LevelDebug, "client connection closed",
		slog.String("connection", conn.ID()),
		slog.Any("remote_addr", conn.RemoteAddr()),
	)
	for _, c := range []any{r.mangler, r.asserter} {
		if obs, ok := c.(ConnectionObserver); ok {
			obs.ConnectionClosed(ctx, conn.ID())
		}
	}
}

// checkMaxForwards lowers Max-Forwards to the configured ceiling.
// It returns false when the hop budget of the request is exhausted.
func (r *Router) checkMaxForwards(ctx context.Context, req sip.Request) bool {
	ceiling := r.cfg.maxForwards()

	n, ok := req.MaxForwards()
	if !ok {
		req.SetMaxForwards(ceiling)
		return true
	}
	if n <= 0 {
		r.log.LogAttrs(ctx, slog.LevelWarn, "Max-Forwards exhausted", slog.String("method", req.MethodName()))
		return false
	}
	req.SetMaxForwards(min(n-1, ceiling))
	return true
}

func (r *Router) routeInitial(ctx context.Context, req sip.Request) Outcome {
	if r.cfg.OutboundMangling {
		r.mangler.ExtractFromRURI(ctx, req)
	}

	if conn, ok := req.OutboundTarget(); ok {
		r.log.LogAttrs(ctx, slog.LevelInfo, "routing initial request to an Outbound client",
			slog.String("method", req.MethodName()),
			slog.String("connection", conn.ID()),
		)
		return r.route(ctx, req, proxy.ModeOutboundFlow, outboundFlowHandlers(r.log))
	}

	if r.destinationMyself(req) {
		r.log.LogAttrs(ctx, slog.LevelInfo, "request for myself", slog.String("method", req.MethodName()))
		return r.reply(ctx, req, sip.ResponseStatusNotFound, ReasonDestinationMyself, OutcomeReplied)
	}

	if req.Method() == sip.MethodInvite {
		r.normalizeInvite(ctx, req)
	}

	switch req.Method() {
	case sip.MethodInvite, sip.MethodMessage, sip.MethodOptions, sip.MethodSubscribe, sip.MethodPublish, sip.MethodRefer:
		if r.cfg.UserAssertion {
			r.asserter.AddPAI(ctx, req)
		}
		return r.route(ctx, req, proxy.ModeGeneric, genericHandlers(r.log))
	case sip.MethodRegister:
		return r.routeRegister(ctx, req)
	case sip.MethodAck:
		r.log.LogAttrs(ctx, slog.LevelInfo, "ignoring initial ACK")
		return OutcomeDropped
	case sip.MethodBye, sip.MethodCancel, sip.MethodOther:
		r.log.LogAttrs(ctx, slog.LevelInfo, "method not implemented", slog.String("method", req.MethodName()))
		return r.reply(ctx, req, sip.ResponseStatusNotImplemented, ReasonNotImplemented, OutcomeRejected)
	default:
		r.log.LogAttrs(ctx, slog.LevelError, "unexpected request method", slog.Any("method", req.Method()))
		return r.reply(ctx, req, sip.ResponseStatusNotImplemented, ReasonNotImplemented, OutcomeRejected)
	}
}

func (r *Router) routeRegister(ctx context.Context, req sip.Request) Outcome {
	tx, err := proxy.NewTransaction(proxy.ModeRegister, req.Method(), registerHandlers(r.log, r.registerAsserter()), r.txOpts())
	if err != nil {
		return r.failed(ctx, req, err)
	}
	if r.cfg.OutboundMangling {
		// Contact mangling for registrars without Path support.
		r.mangler.AddOutboundToContact(tx)
	}
	return r.start(ctx, req, tx)
}

func (r *Router) registerAsserter() UserAsserter {
	if !r.cfg.UserAssertion {
		return nil
	}
	return r.asserter
}

// destinationMyself reports whether the request is addressed to this server.
// The To URI is consulted only when the Request-URI carries no user part.
func (r *Router) destinationMyself(req sip.Request) bool {
	ruri := req.RequestURI()
	if r.locality.IsLocal(ruri) {
		return true
	}
	return ruri.User == "" && r.locality.IsLocal(req.To())
}

func (r *Router) normalizeInvite(ctx context.Context, req sip.Request) {
	ruri, from, to := req.RequestURI(), req.From(), req.To()
	r.log.LogAttrs(ctx, slog.LevelDebug, "normalizing INVITE identifiers",
		slog.Any("ruri", ruri),
		slog.Any("from", from),
		slog.Any("to", to),
	)

	ruri, from, to = dialplan.Normalize(ruri), dialplan.Normalize(from), dialplan.Normalize(to)
	req.SetRequestURI(ruri)
	req.SetTo(to)
	req.SetFrom(from)

	r.log.LogAttrs(ctx, slog.LevelDebug, "normalized INVITE identifiers",
		slog.Any("ruri", ruri),
		slog.Any("from", from),
		slog.Any("to", to),
	)
}

func (r *Router) txOpts() *proxy.TransactionOptions {
	return &proxy.TransactionOptions{Logger: r.log}
}

func (r *Router) route(ctx context.Context, req sip.Request, mode proxy.Mode, hdlrs proxy.Handlers) Outcome {
	tx, err := proxy.NewTransaction(mode, req.Method(), hdlrs, r.txOpts())
	if err != nil {
		return r.failed(ctx, req, err)
	}
	return r.start(ctx, req, tx)
}

func (r *Router) start(ctx context.Context, req sip.Request, tx *proxy.Transaction) Outcome {
	if err := r.engine.Route(ctx, tx, req); err != nil {
		return r.failed(ctx, req, err)
	}
	return OutcomeRouted
}

func (r *Router) reply(
	ctx context.Context,
	req sip.Request,
	status sip.ResponseStatus,
	reason string,
	outcome Outcome,
) Outcome {
	if req.Method() == sip.MethodAck {
		r.log.LogAttrs(ctx, slog.LevelInfo, "ignoring ACK instead of replying",
			slog.Any("status", status),
			slog.String("reason", reason),
		)
		return OutcomeDropped
	}
	if err := req.Reply(ctx, status, reason); err != nil {
		return r.failed(ctx, req, err)
	}
	return outcome
}

func (r *Router) failed(ctx context.Context, req sip.Request, err error) Outcome {
	r.log.LogAttrs(ctx, slog.LevelError, "failed to handle request",
		slog.String("method", req.MethodName()),
		slog.Any("error", err),
	)
	return OutcomeFailed
}

func headerValue(req sip.Request, name string) string {
	v, _ := req.Header(name)
	return v
}
