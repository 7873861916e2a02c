// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package roster acquires group membership snapshots from the two available
// sources: the bridge's live member-listing API (authoritative) and the
// local message history (best-effort, marked partial because lurkers who
// never sent a message are invisible to it).
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groupline/rosterctl/pkg/bridge"
	"github.com/groupline/rosterctl/pkg/history"
	"github.com/groupline/rosterctl/pkg/identity"
)

// =============================================================================
// Roles
// =============================================================================

// Role is a member's privilege level within a group. The zero value means
// the source did not report one. Higher values carry strictly more
// privilege, so ordinary integer comparison orders roles.
type Role int

const (
	RoleUnknown Role = iota
	RoleMember
	RoleAdmin
	RoleSuperAdmin
)

// ParseRole maps a source's role string onto the closed enum. Unrecognized
// strings map to RoleUnknown rather than failing; roster acquisition must
// not abort over a new role name.
func ParseRole(s string) Role {
	switch s {
	case "member":
		return RoleMember
	case "admin":
		return RoleAdmin
	case "superadmin", "super-admin", "super_admin":
		return RoleSuperAdmin
	default:
		return RoleUnknown
	}
}

// String returns the role name used in serialized artifacts.
func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "super-admin"
	default:
		return "unknown"
	}
}

// Max returns the higher-privilege of two roles.
func (r Role) Max(other Role) Role {
	if other > r {
		return other
	}
	return r
}

// =============================================================================
// Roster
// =============================================================================

// Entry is one member of a roster.
type Entry struct {
	ID   identity.MemberIdentifier `json:"id"`
	Role Role                      `json:"role"`
}

// Roster is one membership snapshot for a group.
type Roster struct {
	// Group is the group key the snapshot was taken for.
	Group string `json:"group"`

	// Source names the acquisition path ("api" or "history").
	Source string `json:"source"`

	// FetchedAt is when acquisition completed, UTC.
	FetchedAt time.Time `json:"fetched_at"`

	// Partial marks a roster that structurally under-reports membership.
	// History-derived rosters are always partial; every comparison that
	// consumes one must carry this caveat through to its output.
	Partial bool `json:"partial"`

	// Entries preserves source order with duplicates (by canonical form)
	// collapsed.
	Entries []Entry `json:"entries"`
}

// Lookup returns the entry whose canonical form matches, if any.
func (r *Roster) Lookup(canonical string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.ID.Canonical == canonical {
			return e, true
		}
	}
	return Entry{}, false
}

// Source produces a membership snapshot for a group.
type Source interface {
	// Name identifies the acquisition path in logs and snapshots.
	Name() string

	// Fetch acquires the roster. Failures from the bridge arrive already
	// classified; callers switch on bridge.Classify, not error text.
	Fetch(ctx context.Context, group string) (*Roster, error)
}

// =============================================================================
// API source
// =============================================================================

// memberLister is the slice of the bridge client this source needs.
type memberLister interface {
	ListMembers(ctx context.Context, group string) ([]bridge.Member, error)
}

// Fetch retry defaults. A dead or flapping bridge gets a few paced
// attempts; reconciling must never silently proceed on a failed fetch.
const (
	DefaultFetchAttempts = 3
	DefaultFetchDelay    = 2 * time.Second
)

// APISource acquires rosters from the bridge's member-listing endpoint.
// This is the authoritative source: it sees every member, including those
// who never sent a message.
type APISource struct {
	client   memberLister
	attempts int
	delay    time.Duration
}

// APIOption configures an APISource.
type APIOption func(*APISource)

// WithFetchRetry sets how many paced attempts a fetch gets before the
// failure is surfaced. Non-positive values keep the defaults.
func WithFetchRetry(attempts int, delay time.Duration) APIOption {
	return func(s *APISource) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if delay > 0 {
			s.delay = delay
		}
	}
}

// NewAPISource creates a roster source backed by a bridge client.
func NewAPISource(client *bridge.Client, opts ...APIOption) *APISource {
	s := &APISource{
		client:   client,
		attempts: DefaultFetchAttempts,
		delay:    DefaultFetchDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *APISource) Name() string { return "api" }

// Fetch implements Source. Retryable failures (unreachable bridge,
// transient errors) are retried up to the configured attempts with the
// configured pause between them; exhaustion surfaces the classified error
// so the run aborts instead of comparing against a view it never saw.
// Listings occasionally repeat a member across page boundaries; duplicates
// collapse onto the first occurrence, keeping the higher-privilege role
// when the repeats disagree.
func (s *APISource) Fetch(ctx context.Context, group string) (*Roster, error) {
	attempts := s.attempts
	if attempts < 1 {
		attempts = 1
	}

	var members []bridge.Member
	for attempt := 1; ; attempt++ {
		var err error
		members, err = s.client.ListMembers(ctx, group)
		if err == nil {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !bridge.Classify(err).Retryable() || attempt >= attempts {
			return nil, fmt.Errorf("fetch roster for %s: %w", group, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	roster := &Roster{Group: group, Source: s.Name(), FetchedAt: time.Now().UTC()}
	seen := make(map[string]int, len(members))
	for _, m := range members {
		id := identity.Normalize(m.Identifier)
		role := ParseRole(m.Role)
		if i, ok := seen[id.Canonical]; ok {
			roster.Entries[i].Role = roster.Entries[i].Role.Max(role)
			continue
		}
		seen[id.Canonical] = len(roster.Entries)
		roster.Entries = append(roster.Entries, Entry{ID: id, Role: role})
	}
	return roster, nil
}

// =============================================================================
// History source
// =============================================================================

// senderLister is the slice of the history store this source needs.
type senderLister interface {
	Senders(ctx context.Context, group string, window time.Duration) ([]history.Sender, error)
}

// HistorySource derives a roster from locally stored message history. It
// only sees members who have sent at least one message, so every roster it
// produces is marked Partial. Roles are not recorded in message metadata
// and come back RoleUnknown.
type HistorySource struct {
	store  senderLister
	window time.Duration
}

// NewHistorySource creates a history-backed roster source. A zero window
// considers the full stored history.
func NewHistorySource(store *history.Store, window time.Duration) *HistorySource {
	return &HistorySource{store: store, window: window}
}

// Name implements Source.
func (s *HistorySource) Name() string { return "history" }

// Fetch implements Source.
func (s *HistorySource) Fetch(ctx context.Context, group string) (*Roster, error) {
	senders, err := s.store.Senders(ctx, group, s.window)
	if err != nil {
		return nil, fmt.Errorf("derive roster for %s from history: %w", group, err)
	}

	roster := &Roster{
		Group:     group,
		Source:    s.Name(),
		FetchedAt: time.Now().UTC(),
		Partial:   true,
	}
	seen := make(map[string]struct{}, len(senders))
	for _, snd := range senders {
		id := identity.Normalize(snd.Identifier)
		if _, ok := seen[id.Canonical]; ok {
			continue
		}
		seen[id.Canonical] = struct{}{}
		roster.Entries = append(roster.Entries, Entry{ID: id, Role: RoleUnknown})
	}
	return roster, nil
}
