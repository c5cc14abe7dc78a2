package proxy

import (
	"context"
	"log/slog"

	"github.com/neighborhoods/docker-oversip/sip"
)

// Mode is the target selection mode of a proxy transaction.
type Mode uint8

const (
	// ModeInDialog forwards an in-dialog request following its Route set.
	ModeInDialog Mode = iota + 1
	// ModeOutboundFlow delivers an initial request through a resolved Outbound flow.
	ModeOutboundFlow
	// ModeGeneric forwards an initial request out.
	ModeGeneric
	// ModeRegister forwards a REGISTER out.
	ModeRegister
)

func (m Mode) String() string {
	switch m {
	case ModeInDialog:
		return "in_dialog"
	case ModeOutboundFlow:
		return "outbound_flow"
	case ModeGeneric:
		return "generic"
	case ModeRegister:
		return "register"
	default:
		return "unknown"
	}
}

func (m Mode) LogValue() slog.Value { return slog.StringValue(m.String()) }

// EventKind enumerates the events a proxy transaction reports.
type EventKind uint8

const (
	EventProvisional EventKind = iota + 1
	EventSuccess
	EventFailure
	EventError
	EventInviteTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventProvisional:
		return "provisional"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventError:
		return "error"
	case EventInviteTimeout:
		return "invite_timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether the event ends the transaction.
func (k EventKind) Terminal() bool { return k >= EventSuccess && k <= EventInviteTimeout }

func (k EventKind) LogValue() slog.Value { return slog.StringValue(k.String()) }

type (
	// ResponseHandler handles a response received by the transaction.
	ResponseHandler = func(ctx context.Context, res *sip.Response)
	// ErrorHandler handles an attempt terminated without a response
	// (timeout, connection failure, name resolution failure).
	ErrorHandler = func(ctx context.Context, status sip.ResponseStatus, reason string)
	// TimeoutHandler handles the expiry of the INVITE final response timer (Timer C).
	TimeoutHandler = func(ctx context.Context)
)

// Handlers is the handler table of a transaction, one optional handler per [EventKind].
// A nil handler means the event is not observed.
type Handlers struct {
	OnProvisional   ResponseHandler
	OnSuccess       ResponseHandler
	OnFailure       ResponseHandler
	OnError         ErrorHandler
	OnInviteTimeout TimeoutHandler
}

// Kinds returns the registered event kinds in [EventKind] order.
func (h Handlers) Kinds() []EventKind {
	var kinds []EventKind
	if h.OnProvisional != nil {
		kinds = append(kinds, EventProvisional)
	}
	if h.OnSuccess != nil {
		kinds = append(kinds, EventSuccess)
	}
	if h.OnFailure != nil {
		kinds = append(kinds, EventFailure)
	}
	if h.OnError != nil {
		kinds = append(kinds, EventError)
	}
	if h.OnInviteTimeout != nil {
		kinds = append(kinds, EventInviteTimeout)
	}
	return kinds
}

// Has reports whether a handler is registered for kind.
func (h Handlers) Has(kind EventKind) bool {
	switch kind {
	case EventProvisional:
		return h.OnProvisional != nil
	case EventSuccess:
		return h.OnSuccess != nil
	case EventFailure:
		return h.OnFailure != nil
	case EventError:
		return h.OnError != nil
	case EventInviteTimeout:
		return h.OnInviteTimeout != nil
	default:
		return false
	}
}
