// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity normalizes the member identifier formats surfaced by the
// messaging bridge into one comparable canonical form.
//
// Three surface formats exist in the wild:
//
//   - phone-addressed identifiers: "972545831336@s.whatsapp.net"
//   - linked-device identifiers:   "66846921380038@lid"
//   - raw phone strings:           "+972-54-583-1336", "0545831336"
//
// Two identifiers refer to the same member iff their canonical forms are
// equal. Phone-addressed identifiers and raw phone strings share the
// digits-only canonical space; linked-device identifiers keep their domain
// suffix in the canonical key because their local part is an opaque device
// key, not a phone number, and digit collisions across the two spaces would
// otherwise produce false matches. Cross-space equivalence is resolved later
// by the reconciler through the contact directory, never here.
//
// Normalize is total: input that fits no known format canonicalizes to
// itself tagged KindRaw, so it still participates in set accounting.
package identity

import "strings"

// =============================================================================
// Kinds and Domains
// =============================================================================

// Kind identifies which surface format an identifier was parsed from.
type Kind int

const (
	// KindRaw is the fallback for bare phone strings and unparseable input.
	KindRaw Kind = iota

	// KindPhone is a platform address in the phone-number space.
	KindPhone

	// KindLinkedDevice is a platform address in the linked-device space.
	// Its local part is an opaque key with no derivable phone number.
	KindLinkedDevice
)

// String returns the kind name used in logs and serialized artifacts.
func (k Kind) String() string {
	switch k {
	case KindPhone:
		return "phone"
	case KindLinkedDevice:
		return "linked-device"
	default:
		return "raw"
	}
}

// Domain suffixes used by the bridge. DomainGroup is not a member space but
// shows up in group keys and is recognized so group keys round-trip cleanly.
const (
	DomainPhone        = "s.whatsapp.net"
	DomainLinkedDevice = "lid"
	DomainGroup        = "g.us"
)

// =============================================================================
// MemberIdentifier
// =============================================================================

// MemberIdentifier is the normalized form of one member identifier.
//
// Canonical is the equality key: a digits-only phone number for the phone
// space, "<localpart>@lid" for the linked-device space, or the verbatim
// input for unparseable values. Raw always preserves the original string
// for display and ledger records.
type MemberIdentifier struct {
	// Raw is the identifier exactly as received.
	Raw string `json:"raw"`

	// Canonical is the comparable key. Never empty.
	Canonical string `json:"canonical"`

	// Kind tags which union variant this identifier is.
	Kind Kind `json:"kind"`

	// Domain is the retained role-domain suffix ("s.whatsapp.net", "lid"),
	// empty for bare input.
	Domain string `json:"domain,omitempty"`

	// AmbiguousCountry marks a phone-like value whose digits carry no
	// recognized country-code prefix. The normalizer does not guess a
	// default country; the reconciler may still match these through the
	// contact directory.
	AmbiguousCountry bool `json:"ambiguous_country,omitempty"`
}

// Same reports whether two identifiers refer to the same member.
func (m MemberIdentifier) Same(other MemberIdentifier) bool {
	return m.Canonical == other.Canonical
}

// String returns the original input, which is what operators recognize.
func (m MemberIdentifier) String() string { return m.Raw }

// =============================================================================
// Normalization
// =============================================================================

// countryPrefixes are calling codes the normalizer accepts as evidence that
// a bare digit string is already internationally qualified. The list covers
// the codes observed in production rosters; anything else stays ambiguous
// rather than being guessed at.
var countryPrefixes = []string{
	"972", "971", "970", "966", "961",
	"380", "358", "351", "234",
	"90", "86", "81", "66", "61", "55", "52", "49", "48", "44",
	"39", "34", "33", "31", "30", "27", "20",
	"7", "1",
}

// Normalize canonicalizes a raw identifier string. It never fails: worst
// case the verbatim input comes back tagged KindRaw.
func Normalize(raw string) MemberIdentifier {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MemberIdentifier{Raw: raw, Canonical: raw, Kind: KindRaw}
	}

	if local, domain, ok := strings.Cut(trimmed, "@"); ok {
		return normalizeAddress(raw, local, domain)
	}

	digits := stripNonDigits(trimmed)
	if digits == "" {
		// No digits at all: not phone-like, canonicalize verbatim.
		return MemberIdentifier{Raw: raw, Canonical: trimmed, Kind: KindRaw}
	}
	return MemberIdentifier{
		Raw:              raw,
		Canonical:        digits,
		Kind:             KindRaw,
		AmbiguousCountry: !hasCountryPrefix(digits),
	}
}

// normalizeAddress handles platform-qualified input. Only the local part
// participates in canonicalization; the domain suffix is retained as the
// role-domain tag.
func normalizeAddress(raw, local, domain string) MemberIdentifier {
	switch domain {
	case DomainPhone:
		digits := stripNonDigits(local)
		if digits == "" {
			return MemberIdentifier{Raw: raw, Canonical: local, Kind: KindRaw, Domain: domain}
		}
		// Bridge-issued phone addresses are always fully qualified.
		return MemberIdentifier{Raw: raw, Canonical: digits, Kind: KindPhone, Domain: domain}
	case DomainLinkedDevice:
		return MemberIdentifier{
			Raw:       raw,
			Canonical: local + "@" + DomainLinkedDevice,
			Kind:      KindLinkedDevice,
			Domain:    domain,
		}
	default:
		// Unknown space: keep the full address as the opaque key so it
		// never collides with the phone space.
		return MemberIdentifier{Raw: raw, Canonical: local + "@" + domain, Kind: KindRaw, Domain: domain}
	}
}

// hasCountryPrefix reports whether digits start with a recognized calling
// code and are long enough to be an international number. National formats
// with a trunk zero are never treated as qualified.
func hasCountryPrefix(digits string) bool {
	if strings.HasPrefix(digits, "0") || len(digits) < 10 {
		return false
	}
	for _, p := range countryPrefixes {
		if strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
