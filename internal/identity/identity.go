// Package identity canonicalizes phone-derived WhatsApp identifiers.
//
// The same physical number reaches the controller in many shapes: bare digits,
// digits with the country code, JIDs with a server suffix, and masked relay
// identifiers that hide the number entirely. Every in-memory lookup keys on the
// canonical form produced here; the display format is only used when writing a
// lead's phone back to the CRM.
package identity

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Key is the canonical comparison form of a phone-derived identifier: digits
// only, country code stripped, mobile ninth digit stripped. It is used solely
// for session and cache lookup, never persisted as a contact value.
type Key string

const (
	// countryCode is the Brazilian country calling code.
	countryCode = "55"
	// defaultRegion is the region hint passed to the phone number parser.
	defaultRegion = "BR"
)

// Normalize canonicalizes any raw identifier into a Key. It is pure and total:
// unparseable input degrades to a best-effort digits-only form instead of
// erroring, because mis-bucketing a rare malformed identifier is preferable to
// dropping the message.
func Normalize(raw string) Key {
	digits := Digits(raw)

	// Country code present: 55 + DDD (2) + 8 or 9 subscriber digits.
	if strings.HasPrefix(digits, countryCode) && len(digits) >= 12 {
		digits = digits[len(countryCode):]
	}

	// Mobile numbers carry an optional ninth digit after the area code. Both
	// representations must collide to the same key.
	if len(digits) == 11 && digits[2] == '9' {
		digits = digits[:2] + digits[3:]
	}

	return Key(digits)
}

// Digits strips the transport suffix (anything from '@' on) and every
// non-digit character from a raw identifier.
func Digits(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsReal reports whether an identifier looks like an actual phone number
// rather than a masked relay identifier. Relay identifiers are either
// explicitly tagged with the lid server or carry user parts far longer than
// any phone number.
func IsReal(raw string) bool {
	if raw == "" {
		return false
	}
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		server := raw[at+1:]
		if server != "" && server != "s.whatsapp.net" && server != "c.us" {
			return false
		}
	}
	n := len(Digits(raw))
	return n >= 10 && n <= 13
}

// ResolveReal recovers the real identifier from an event delivered through a
// masking relay. Candidate locations are tried in fixed priority order: the
// transport's alternative sender field first, then the nested context senders
// attached to the message sub-payloads. The first candidate with a real shape
// wins; when none match, the masked identifier is returned and deduplication
// degrades for that message.
func ResolveReal(sender, senderAlt string, contextSenders []string) string {
	if IsReal(sender) {
		return sender
	}
	if IsReal(senderAlt) {
		return senderAlt
	}
	for _, candidate := range contextSenders {
		if IsReal(candidate) {
			return candidate
		}
	}
	return sender
}

// Variants generates the plausible stored representations of the number behind
// a raw identifier: bare digits with and without the country code, with and
// without the mobile ninth digit, plus the display-formatted forms. Lead
// lookups match against any of these so that format drift in the CRM never
// hides an active lead.
func Variants(raw string) []string {
	digits := Digits(raw)
	if strings.HasPrefix(digits, countryCode) && len(digits) >= 12 {
		digits = digits[len(countryCode):]
	}
	if digits == "" {
		return nil
	}

	local := map[string]bool{digits: true}
	if len(digits) == 11 && digits[2] == '9' {
		local[digits[:2]+digits[3:]] = true
	}
	if len(digits) == 10 {
		local[digits[:2]+"9"+digits[2:]] = true
	}

	var variants []string
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}
	for l := range local {
		add(l)
		add(countryCode + l)
		add(formatLocal(l))
	}
	return variants
}

// DisplayFormat renders a raw identifier in the CRM's canonical display form,
// e.g. "(11) 98765-4321". Falls back to a hand-built rendering when the phone
// number library rejects the input.
func DisplayFormat(raw string) string {
	digits := Digits(raw)
	if !strings.HasPrefix(digits, countryCode) || len(digits) < 12 {
		digits = countryCode + digits
	}
	if num, err := phonenumbers.Parse("+"+digits, defaultRegion); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.NATIONAL)
	}
	return formatLocal(strings.TrimPrefix(digits, countryCode))
}

// formatLocal renders a local (DDD + subscriber) digit string with parentheses
// and dash. Unrecognized lengths come back unchanged.
func formatLocal(local string) string {
	switch len(local) {
	case 11:
		return fmt.Sprintf("(%s) %s-%s", local[:2], local[2:7], local[7:])
	case 10:
		return fmt.Sprintf("(%s) %s-%s", local[:2], local[2:6], local[6:])
	default:
		return local
	}
}
