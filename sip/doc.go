// Package sip defines the SIP types the routing core exchanges with the
// external SIP stack: request methods, response statuses, the [Request]
// accessor interface, [Response] values and transport [Connection] handles.
//
// Parsing, serialization and socket I/O live in the stack; this package only
// describes what the decision layer reads and which operations it may trigger.
package sip
