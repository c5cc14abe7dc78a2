// Package routing implements the request decision layer of the proxy.
//
// A [Router] takes every inbound request through two stages. The classifier
// enforces the hop budget, applies NAT fixups and sorts the request into
// in-dialog or initial handling, rejecting routing headers that do not point to
// this server. Initial requests then reach the decision engine, which picks
// between Outbound flow delivery, a local 404, the generic forward-out and the
// REGISTER forward-out, and configures the per-response handlers of the
// resulting [proxy.Transaction] before handing it to the [proxy.Engine].
//
// The outcome of every decision is reported by [Router.OnRequest] as an [Outcome].
package routing
