// Package proxy describes a proxy transaction as seen by the routing core:
// the target selection [Mode], the typed [Handlers] table attached before the
// transaction is handed to an [Engine], and the [Transaction] that dispatches
// engine events to those handlers.
//
// A [Transaction] runs exactly one terminal handler (success, failure, error or
// INVITE timeout). Provisional responses may be reported any number of times
// before that. Every event reported after the terminal one is rejected with
// [ErrTransactionTerminated] and reaches no handler.
package proxy
