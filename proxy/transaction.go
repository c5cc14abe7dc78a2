package proxy

//go:generate errtrace -w .

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/neighborhoods/docker-oversip/internal/errorutil"
	"github.com/neighborhoods/docker-oversip/log"
	"github.com/neighborhoods/docker-oversip/sip"
	"github.com/neighborhoods/docker-oversip/uri"
)

// ErrTransactionTerminated is returned when an event is reported to a transaction
// that already ran its terminal handler.
const ErrTransactionTerminated errorutil.Error = "transaction terminated"

// TransactionState is the state of a [Transaction].
type TransactionState string

const (
	TransactionStatePending    TransactionState = "pending"
	TransactionStateProceeding TransactionState = "proceeding"
	TransactionStateTerminated TransactionState = "terminated"
)

//go:generate go tool mockgen -destination=../internal/testutil/sipmock/engine.go -package=sipmock . Engine

// Engine executes proxy transactions: it forwards the request, handles
// retransmissions and branches, and reports the outcome back through the
// [Transaction] event methods.
type Engine interface {
	// Route starts the attempt and returns without waiting for any response.
	Route(ctx context.Context, tx *Transaction, req sip.Request) error
}

// EngineFunc adapts a function to [Engine].
type EngineFunc func(ctx context.Context, tx *Transaction, req sip.Request) error

func (f EngineFunc) Route(ctx context.Context, tx *Transaction, req sip.Request) error {
	return errtrace.Wrap(f(ctx, tx, req))
}

// ContactRewriter rewrites the Contact URI of a forwarded request.
// conn is the client connection the request was received on.
type ContactRewriter = func(contact uri.SIP, conn sip.Connection) uri.SIP

// TransactionOptions are options for [NewTransaction].
type TransactionOptions struct {
	// Logger is the transaction logger.
	// If nil, the [log.Default] is used.
	Logger *slog.Logger
}

func (o *TransactionOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Transaction is one outbound routing attempt of a request.
// Its event methods are safe for concurrent use by the engine. Events are
// delivered one at a time: a handler returns before the next event fires, so
// handlers must not report events to their own transaction.
type Transaction struct {
	id     uint64
	mode   Mode
	method sip.RequestMethod
	hdlrs  Handlers
	log    *slog.Logger

	// evMu serialises event delivery, firing and handler run together.
	evMu sync.Mutex

	mu       sync.Mutex
	fsm      *stateless.StateMachine
	terminal EventKind
	rewriter ContactRewriter
}

var txSeq atomic.Uint64

// NewTransaction creates a pending transaction of the given mode for a request
// with the given method. hdlrs is copied and can not be changed afterwards.
func NewTransaction(mode Mode, method sip.RequestMethod, hdlrs Handlers, opts *TransactionOptions) (*Transaction, error) {
	if mode < ModeInDialog || mode > ModeRegister {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("invalid mode %d", mode))
	}

	tx := &Transaction{
		id:     txSeq.Add(1),
		mode:   mode,
		method: method,
		hdlrs:  hdlrs,
	}
	tx.log = opts.log().With("transaction", tx)
	tx.initFSM()
	return tx, nil
}

const (
	txEvtRecv1xx       = "recv_1xx"
	txEvtRecv2xx       = "recv_2xx"
	txEvtRecv300699    = "recv_300-699"
	txEvtFail          = "fail"
	txEvtInviteTimeout = "invite_timeout"
)

func (tx *Transaction) initFSM() {
	tx.fsm = stateless.NewStateMachine(TransactionStatePending)

	tx.fsm.Configure(TransactionStatePending).
		Permit(txEvtRecv1xx, TransactionStateProceeding).
		Permit(txEvtRecv2xx, TransactionStateTerminated).
		Permit(txEvtRecv300699, TransactionStateTerminated).
		Permit(txEvtFail, TransactionStateTerminated).
		Permit(txEvtInviteTimeout, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateProceeding).
		InternalTransition(txEvtRecv1xx, actNoop).
		Permit(txEvtRecv2xx, TransactionStateTerminated).
		Permit(txEvtRecv300699, TransactionStateTerminated).
		Permit(txEvtFail, TransactionStateTerminated).
		Permit(txEvtInviteTimeout, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateTerminated).
		OnEntryFrom(txEvtRecv2xx, tx.actTerminated(EventSuccess)).
		OnEntryFrom(txEvtRecv300699, tx.actTerminated(EventFailure)).
		OnEntryFrom(txEvtFail, tx.actTerminated(EventError)).
		OnEntryFrom(txEvtInviteTimeout, tx.actTerminated(EventInviteTimeout))
}

func actNoop(context.Context, ...any) error { return nil }

func (tx *Transaction) actTerminated(kind EventKind) stateless.ActionFunc {
	return func(context.Context, ...any) error {
		tx.terminal = kind
		return nil
	}
}

func (tx *Transaction) fire(ctx context.Context, trigger string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.fsm.MustState() == TransactionStateTerminated {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrTransactionTerminated,
			"%s after %s", trigger, tx.terminal))
	}
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, trigger))
}

// ID is a process-unique transaction number, used in logs.
func (tx *Transaction) ID() uint64 { return tx.id }

func (tx *Transaction) Mode() Mode { return tx.mode }

// Method is the method of the routed request.
func (tx *Transaction) Method() sip.RequestMethod { return tx.method }

// Handlers returns the handler table of the transaction.
func (tx *Transaction) Handlers() Handlers { return tx.hdlrs }

func (tx *Transaction) State() TransactionState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.fsm.MustState().(TransactionState) //nolint:forcetypeassert
}

// Terminal returns the terminal event of the transaction, ok is false while
// the transaction is still running.
func (tx *Transaction) Terminal() (kind EventKind, ok bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.terminal, tx.terminal != 0
}

// SetContactRewriter installs fn as the Contact rewriter of the transaction.
// It must be called before the transaction is routed.
func (tx *Transaction) SetContactRewriter(fn ContactRewriter) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.rewriter = fn
}

// RewriteContact applies the installed Contact rewriter.
// The contact is returned unchanged when no rewriter is installed.
func (tx *Transaction) RewriteContact(contact uri.SIP, conn sip.Connection) uri.SIP {
	tx.mu.Lock()
	fn := tx.rewriter
	tx.mu.Unlock()

	if fn == nil {
		return contact
	}
	return fn(contact, conn)
}

// RecvResponse reports a response received from the next hop.
// 1xx responses run the provisional handler, 2xx the success handler and
// 3xx-6xx the failure handler.
func (tx *Transaction) RecvResponse(ctx context.Context, res *sip.Response) error {
	if res == nil || !res.Status.IsValid() {
		return errtrace.Wrap(sip.NewInvalidArgumentError("invalid response"))
	}

	var (
		trigger string
		kind    EventKind
		hdlr    ResponseHandler
	)
	switch {
	case res.Status.IsProvisional():
		trigger, kind, hdlr = txEvtRecv1xx, EventProvisional, tx.hdlrs.OnProvisional
	case res.Status.IsSuccessful():
		trigger, kind, hdlr = txEvtRecv2xx, EventSuccess, tx.hdlrs.OnSuccess
	default:
		trigger, kind, hdlr = txEvtRecv300699, EventFailure, tx.hdlrs.OnFailure
	}

	tx.evMu.Lock()
	defer tx.evMu.Unlock()

	if err := tx.fire(ctx, trigger); err != nil {
		return errtrace.Wrap(err)
	}

	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction event", slog.Any("event", kind), slog.Any("response", res))

	if hdlr != nil {
		hdlr(ctx, res)
	}
	return nil
}

// Fail reports that the attempt ended without a response from the next hop.
func (tx *Transaction) Fail(ctx context.Context, status sip.ResponseStatus, reason string) error {
	tx.evMu.Lock()
	defer tx.evMu.Unlock()

	if err := tx.fire(ctx, txEvtFail); err != nil {
		return errtrace.Wrap(err)
	}

	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction event",
		slog.Any("event", EventError),
		slog.Any("status", status),
		slog.String("reason", reason),
	)

	if tx.hdlrs.OnError != nil {
		tx.hdlrs.OnError(ctx, status, reason)
	}
	return nil
}

// TimeoutInvite reports that no final response arrived before the INVITE
// final response timer fired. It is only valid for INVITE transactions.
func (tx *Transaction) TimeoutInvite(ctx context.Context) error {
	if tx.method != sip.MethodInvite {
		return errtrace.Wrap(errorutil.NewWrapperError(sip.ErrMethodNotAllowed, "INVITE timeout for %s", tx.method))
	}

	tx.evMu.Lock()
	defer tx.evMu.Unlock()

	if err := tx.fire(ctx, txEvtInviteTimeout); err != nil {
		return errtrace.Wrap(err)
	}

	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction event", slog.Any("event", EventInviteTimeout))

	if tx.hdlrs.OnInviteTimeout != nil {
		tx.hdlrs.OnInviteTimeout(ctx)
	}
	return nil
}

func (tx *Transaction) LogValue() slog.Value {
	if tx == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("id", strconv.FormatUint(tx.id, 10)),
		slog.Any("mode", tx.mode),
		slog.Any("method", tx.method),
	)
}
