// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile compares two roster snapshots and partitions their
// members into common, only-A, only-B, and ambiguous sets.
//
// Matching happens in canonical identifier space, so an entry that one
// roster reports as "+972-54-583-1336" and the other as
// "972545831336@s.whatsapp.net" counts as the same member. Entries whose
// phone digits carry no recognized country prefix cannot be matched by
// equality alone; those are retried through an auxiliary phone-to-device
// directory, and any hit lands in the ambiguous set rather than common,
// because directory inference is a weaker claim than canonical equality.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/groupline/rosterctl/pkg/identity"
	"github.com/groupline/rosterctl/pkg/roster"
)

// Directory resolves a digit string to the canonical identifiers the
// contact book records for it. history.Contacts satisfies this.
type Directory interface {
	Resolve(ctx context.Context, digits string) ([]string, error)
}

// Match is one member present in both rosters. ID is the A-side identifier;
// Role is the higher privilege either side reported, for display only.
type Match struct {
	ID   identity.MemberIdentifier `json:"id"`
	Role roster.Role               `json:"role"`
}

// AmbiguousMatch is a cross-format match established through the directory
// rather than canonical equality. Via records the B-side canonical the
// directory surfaced, so an operator can audit the inference.
type AmbiguousMatch struct {
	A   roster.Entry `json:"a"`
	B   roster.Entry `json:"b"`
	Via string       `json:"via"`
}

// Result is the outcome of one reconciliation.
type Result struct {
	GroupA     string    `json:"group_a"`
	GroupB     string    `json:"group_b"`
	ComparedAt time.Time `json:"compared_at"`

	// CompletenessCaveat is set whenever either input roster was partial.
	// Absence from a partial roster proves nothing, and every consumer of
	// only-A/only-B must see that caveat.
	CompletenessCaveat bool `json:"completeness_caveat"`

	Common    []Match          `json:"common"`
	OnlyA     []roster.Entry   `json:"only_a"`
	OnlyB     []roster.Entry   `json:"only_b"`
	Ambiguous []AmbiguousMatch `json:"ambiguous"`
}

// Set names accepted by Members.
const (
	SetCommon    = "common"
	SetOnlyA     = "only-a"
	SetOnlyB     = "only-b"
	SetAmbiguous = "ambiguous"
)

// Members returns the identifiers of one named set, in result order.
// Ambiguous contributes the A-side identifier.
func (r *Result) Members(set string) ([]identity.MemberIdentifier, error) {
	var out []identity.MemberIdentifier
	switch set {
	case SetCommon:
		for _, m := range r.Common {
			out = append(out, m.ID)
		}
	case SetOnlyA:
		for _, e := range r.OnlyA {
			out = append(out, e.ID)
		}
	case SetOnlyB:
		for _, e := range r.OnlyB {
			out = append(out, e.ID)
		}
	case SetAmbiguous:
		for _, m := range r.Ambiguous {
			out = append(out, m.A.ID)
		}
	default:
		return nil, fmt.Errorf("unknown set %q", set)
	}
	return out, nil
}

// Reconcile partitions the members of rosters a and b. Output ordering is
// deterministic: common, only-A, and ambiguous follow a's entry order;
// only-B follows b's. dir may be nil, which disables ambiguous matching.
func Reconcile(ctx context.Context, a, b *roster.Roster, dir Directory) (*Result, error) {
	res := &Result{
		GroupA:             a.Group,
		GroupB:             b.Group,
		ComparedAt:         time.Now().UTC(),
		CompletenessCaveat: a.Partial || b.Partial,
	}

	// Index B by canonical form, keeping the first occurrence. A roster
	// read back from a hand-edited result file can carry duplicate
	// canonicals, and matching must claim them all or the repeat leaks
	// into only-B.
	bIndex := make(map[string]int, len(b.Entries))
	for i, e := range b.Entries {
		if _, ok := bIndex[e.ID.Canonical]; ok {
			continue
		}
		bIndex[e.ID.Canonical] = i
	}
	claimed := make(map[string]bool)

	for _, ea := range a.Entries {
		if i, ok := bIndex[ea.ID.Canonical]; ok {
			claimed[ea.ID.Canonical] = true
			res.Common = append(res.Common, Match{
				ID:   ea.ID,
				Role: ea.Role.Max(b.Entries[i].Role),
			})
			continue
		}

		if ea.ID.AmbiguousCountry && dir != nil {
			i, via, err := resolveThroughDirectory(ctx, dir, ea.ID.Canonical, bIndex, claimed)
			if err != nil {
				return nil, err
			}
			if i >= 0 {
				claimed[via] = true
				res.Ambiguous = append(res.Ambiguous, AmbiguousMatch{
					A: ea, B: b.Entries[i], Via: via,
				})
				continue
			}
		}

		res.OnlyA = append(res.OnlyA, ea)
	}

	emitted := make(map[string]bool)
	for _, eb := range b.Entries {
		if claimed[eb.ID.Canonical] || emitted[eb.ID.Canonical] {
			continue
		}
		emitted[eb.ID.Canonical] = true
		res.OnlyB = append(res.OnlyB, eb)
	}
	return res, nil
}

// resolveThroughDirectory looks the digit fragment up in the contact
// directory and returns the index of the first unclaimed B canonical among
// the resolved ones, or -1 when none matches.
func resolveThroughDirectory(ctx context.Context, dir Directory, digits string, bIndex map[string]int, claimed map[string]bool) (int, string, error) {
	resolved, err := dir.Resolve(ctx, digits)
	if err != nil {
		return -1, "", fmt.Errorf("directory lookup for %s: %w", digits, err)
	}
	for _, canon := range resolved {
		if i, ok := bIndex[canon]; ok && !claimed[canon] {
			return i, canon, nil
		}
	}
	return -1, "", nil
}
