package sip

import "log/slog"

// RequestMethod is the closed set of request methods the routing core distinguishes.
// Every method outside the set maps to [MethodOther]; the original token is
// still available from [Request.MethodName].
type RequestMethod uint8

const (
	MethodOther RequestMethod = iota
	MethodInvite
	MethodAck
	MethodBye
	MethodCancel
	MethodMessage
	MethodOptions
	MethodSubscribe
	MethodPublish
	MethodRefer
	MethodRegister
)

var methodNames = [...]string{
	MethodOther:     "OTHER",
	MethodInvite:    "INVITE",
	MethodAck:       "ACK",
	MethodBye:       "BYE",
	MethodCancel:    "CANCEL",
	MethodMessage:   "MESSAGE",
	MethodOptions:   "OPTIONS",
	MethodSubscribe: "SUBSCRIBE",
	MethodPublish:   "PUBLISH",
	MethodRefer:     "REFER",
	MethodRegister:  "REGISTER",
}

// ParseRequestMethod maps a method token to a [RequestMethod].
// Method names are case-sensitive (RFC 3261 Section 7.1).
func ParseRequestMethod(token string) RequestMethod {
	for m, name := range methodNames {
		if m != int(MethodOther) && name == token {
			return RequestMethod(m)
		}
	}
	return MethodOther
}

func (m RequestMethod) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return methodNames[MethodOther]
}

func (m RequestMethod) LogValue() slog.Value { return slog.StringValue(m.String()) }
