// Package uri provides the SIP URI value type handled by the routing core.
//
// [SIP] is an immutable value: every modification helper ([SIP.WithUser],
// [SIP.WithParam], [SIP.WithoutParam], ...) returns a new value and leaves the
// receiver untouched. There is no render cache, so a rewritten URI is always
// rendered from its current fields.
//
//	u := uri.MustParse("sip:12125551234@example.com;user=phone")
//	u2 := u.WithUser("+12125551234")
//	// u still renders as sip:12125551234@example.com;user=phone
//
// Parsing covers the parts the routing decisions look at (scheme, user info,
// host, port, parameters); URI headers are kept verbatim.
package uri
