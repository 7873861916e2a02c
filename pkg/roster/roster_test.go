// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupline/rosterctl/pkg/bridge"
	"github.com/groupline/rosterctl/pkg/history"
	"github.com/groupline/rosterctl/pkg/identity"
)

type stubLister struct {
	members []bridge.Member
	err     error
}

func (s *stubLister) ListMembers(ctx context.Context, group string) ([]bridge.Member, error) {
	return s.members, s.err
}

// flakyLister fails the first N calls, then serves the members.
type flakyLister struct {
	failures int
	err      error
	calls    int
	members  []bridge.Member
}

func (f *flakyLister) ListMembers(ctx context.Context, group string) ([]bridge.Member, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.members, nil
}

type stubSenders struct {
	senders []history.Sender
	err     error
}

func (s *stubSenders) Senders(ctx context.Context, group string, window time.Duration) ([]history.Sender, error) {
	return s.senders, s.err
}

func TestParseRoleRoundTrip(t *testing.T) {
	assert.Equal(t, RoleMember, ParseRole("member"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleSuperAdmin, ParseRole("superadmin"))
	assert.Equal(t, RoleSuperAdmin, ParseRole("super-admin"))
	assert.Equal(t, RoleUnknown, ParseRole("owner"), "new role names must not abort acquisition")

	assert.True(t, RoleSuperAdmin > RoleAdmin)
	assert.True(t, RoleAdmin > RoleMember)
	assert.Equal(t, RoleAdmin, RoleMember.Max(RoleAdmin))
}

func TestAPISourceDedupesKeepingHigherRole(t *testing.T) {
	src := &APISource{client: &stubLister{members: []bridge.Member{
		{Identifier: "972500000001@s.whatsapp.net", Role: "member"},
		{Identifier: "972500000002@s.whatsapp.net", Role: "admin"},
		// Same member repeated across a page boundary, once with more
		// privilege.
		{Identifier: "972500000001@s.whatsapp.net", Role: "admin"},
	}}}

	r, err := src.Fetch(context.Background(), "g1@g.us")
	require.NoError(t, err)

	assert.Equal(t, "g1@g.us", r.Group)
	assert.Equal(t, "api", r.Source)
	assert.False(t, r.Partial, "API rosters are authoritative")
	require.Len(t, r.Entries, 2)
	assert.Equal(t, "972500000001", r.Entries[0].ID.Canonical)
	assert.Equal(t, RoleAdmin, r.Entries[0].Role, "duplicate keeps the higher role")
	assert.Equal(t, RoleAdmin, r.Entries[1].Role)
}

func TestAPISourcePropagatesClassifiedErrors(t *testing.T) {
	src := &APISource{client: &stubLister{
		err: &bridge.Error{Kind: bridge.KindNotAuthorized, StatusCode: 403, Message: "forbidden"},
	}}

	_, err := src.Fetch(context.Background(), "g1@g.us")
	require.Error(t, err)
	assert.Equal(t, bridge.KindNotAuthorized, bridge.Classify(err),
		"classification must survive wrapping")
}

func TestAPISourceRetriesUnreachableBridge(t *testing.T) {
	lister := &flakyLister{
		failures: 2,
		err:      &bridge.Error{Kind: bridge.KindUnreachable, Message: "connection refused"},
		members:  []bridge.Member{{Identifier: "972500000001@s.whatsapp.net", Role: "member"}},
	}
	src := &APISource{client: lister, attempts: 3, delay: time.Millisecond}

	r, err := src.Fetch(context.Background(), "g1@g.us")
	require.NoError(t, err)
	assert.Equal(t, 3, lister.calls, "two refused attempts, then success")
	require.Len(t, r.Entries, 1)
}

func TestAPISourceAbortsWhenRetriesExhausted(t *testing.T) {
	lister := &flakyLister{
		failures: 100,
		err:      &bridge.Error{Kind: bridge.KindUnreachable, Message: "connection refused"},
	}
	src := &APISource{client: lister, attempts: 2, delay: time.Millisecond}

	_, err := src.Fetch(context.Background(), "g1@g.us")
	require.Error(t, err)
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, bridge.KindUnreachable, bridge.Classify(err),
		"exhaustion surfaces the classified error, it never degrades silently")
}

func TestAPISourceDoesNotRetryTerminalErrors(t *testing.T) {
	lister := &flakyLister{
		failures: 100,
		err:      &bridge.Error{Kind: bridge.KindNotAuthorized, StatusCode: 403, Message: "forbidden"},
	}
	src := &APISource{client: lister, attempts: 3, delay: time.Millisecond}

	_, err := src.Fetch(context.Background(), "g1@g.us")
	require.Error(t, err)
	assert.Equal(t, 1, lister.calls, "authorization failures are not retryable")
}

func TestHistorySourceIsAlwaysPartial(t *testing.T) {
	src := &HistorySource{store: &stubSenders{senders: []history.Sender{
		{Identifier: "972500000001@s.whatsapp.net", FirstSeen: "2024-06-01 10:00:00"},
		{Identifier: "55000000000099@lid", FirstSeen: "2024-06-02 10:00:00"},
		// Same phone in a different surface format: one member, one entry.
		{Identifier: "+972-50-000-0001", FirstSeen: "2024-06-03 10:00:00"},
	}}}

	r, err := src.Fetch(context.Background(), "g1@g.us")
	require.NoError(t, err)

	assert.True(t, r.Partial, "history can never prove completeness")
	assert.Equal(t, "history", r.Source)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, identity.KindPhone, r.Entries[0].ID.Kind)
	assert.Equal(t, RoleUnknown, r.Entries[0].Role, "history carries no role data")
	assert.Equal(t, identity.KindLinkedDevice, r.Entries[1].ID.Kind)
}

func TestRosterLookup(t *testing.T) {
	r := &Roster{Entries: []Entry{
		{ID: identity.Normalize("972500000001@s.whatsapp.net"), Role: RoleMember},
	}}

	e, ok := r.Lookup("972500000001")
	require.True(t, ok)
	assert.Equal(t, RoleMember, e.Role)

	_, ok = r.Lookup("972500000002")
	assert.False(t, ok)
}
