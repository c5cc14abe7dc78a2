// Package dialplan canonicalizes phone-number-shaped SIP URI user parts into a
// dialable form before requests are forwarded.
//
// Rules, applied only to all-digit user parts:
//   - an optional leading "1" followed by a ten digit North American number
//     whose first digit is 2-9 becomes "+1" and the ten digits;
//   - the international dialing prefix "011" followed by digits becomes "+" and
//     the digits after the prefix;
//   - everything else (short codes, emergency numbers) is left as is.
package dialplan

import (
	"regexp"

	"github.com/neighborhoods/docker-oversip/uri"
)

var (
	allDigits     = regexp.MustCompile(`^\d+$`)
	northAmerican = regexp.MustCompile(`^1?([2-9]\d{9})$`)
	international = regexp.MustCompile(`^011(\d+)$`)
)

// NormalizeUser rewrites a user part according to the package rules.
func NormalizeUser(user string) string {
	if !allDigits.MatchString(user) {
		return user
	}
	if m := northAmerican.FindStringSubmatch(user); m != nil {
		return "+1" + m[1]
	}
	if m := international.FindStringSubmatch(user); m != nil {
		return "+" + m[1]
	}
	return user
}

// Normalize returns u with its user part normalized.
// The result equals u when no rule applies.
func Normalize(u uri.SIP) uri.SIP {
	user := NormalizeUser(u.User)
	if user == u.User {
		return u
	}
	return u.WithUser(user)
}
