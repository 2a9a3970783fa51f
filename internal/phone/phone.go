// Package phone normalizes phone numbers to E.164.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// Format normalizes raw to canonical E.164 form (e.g. +14155552671). Numbers
// without a country prefix are parsed as US. Unparseable or invalid input
// returns ok=false, never an error.
func Format(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	num, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// IsValid reports whether raw parses as a valid US or international number.
func IsValid(raw string) bool {
	_, ok := Format(raw)
	return ok
}
