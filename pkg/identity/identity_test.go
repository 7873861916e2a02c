// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneAddress(t *testing.T) {
	m := Normalize("972545831336@s.whatsapp.net")
	assert.Equal(t, "972545831336", m.Canonical)
	assert.Equal(t, KindPhone, m.Kind)
	assert.Equal(t, DomainPhone, m.Domain)
	assert.False(t, m.AmbiguousCountry)
	assert.Equal(t, "972545831336@s.whatsapp.net", m.Raw)
}

func TestNormalizeLinkedDevice(t *testing.T) {
	m := Normalize("66846921380038@lid")
	assert.Equal(t, "66846921380038@lid", m.Canonical)
	assert.Equal(t, KindLinkedDevice, m.Kind)

	// A phone number with the same digits must not collide with the
	// linked-device key.
	phone := Normalize("66846921380038@s.whatsapp.net")
	assert.False(t, m.Same(phone))
}

func TestNormalizeRawPhoneFormats(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		canonical string
		ambiguous bool
	}{
		{"international with separators", "+972-52-345-1451", "972523451451", false},
		{"international bare", "972523451451", "972523451451", false},
		{"national trunk zero", "0523451451", "0523451451", true},
		{"short local number", "523451451", "523451451", true},
		{"us number", "14155552671", "14155552671", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Normalize(tt.input)
			assert.Equal(t, tt.canonical, m.Canonical)
			assert.Equal(t, KindRaw, m.Kind)
			assert.Equal(t, tt.ambiguous, m.AmbiguousCountry)
		})
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	// Unparseable inputs must still canonicalize to something stable so
	// they never vanish from set accounting.
	for _, input := range []string{"", "not-a-number", "???", "status@broadcast"} {
		m := Normalize(input)
		require.NotNil(t, m.Canonical)
		assert.Equal(t, input, m.Raw)
	}

	m := Normalize("status@broadcast")
	assert.Equal(t, "status@broadcast", m.Canonical)
	assert.Equal(t, KindRaw, m.Kind)
}

func TestNormalizeIdempotent(t *testing.T) {
	// Normalizing an already-canonical form yields the same form.
	inputs := []string{
		"972545831336@s.whatsapp.net",
		"66846921380038@lid",
		"+972 52 345 1451",
		"0523451451",
		"garbage-input",
	}
	for _, input := range inputs {
		first := Normalize(input)
		second := Normalize(first.Canonical)
		assert.Equal(t, first.Canonical, second.Canonical, "input %q", input)
	}
}

func TestSameAcrossFormats(t *testing.T) {
	// A raw international phone string and the bridge's phone address for
	// the same number are the same member.
	a := Normalize("+972523451451")
	b := Normalize("972523451451@s.whatsapp.net")
	assert.True(t, a.Same(b))
}
