// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMembersPagination(t *testing.T) {
	// 5 members with page size 2: three pages, last one short.
	members := []Member{
		{Identifier: "1@s.whatsapp.net", Role: "member"},
		{Identifier: "2@s.whatsapp.net", Role: "admin"},
		{Identifier: "3@s.whatsapp.net", Role: "member"},
		{Identifier: "4@lid", Role: "member"},
		{Identifier: "5@s.whatsapp.net", Role: "superadmin"},
	}

	var pagesServed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/members", r.URL.Path)
		require.Equal(t, "g1@g.us", r.URL.Query().Get("group"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		pagesServed++

		start := page * size
		end := start + size
		if start > len(members) {
			start = len(members)
		}
		if end > len(members) {
			end = len(members)
		}
		json.NewEncoder(w).Encode(map[string]any{"members": members[start:end]})
	}))
	defer srv.Close()

	c := New(srv.URL, WithPageSize(2))
	got, err := c.ListMembers(context.Background(), "g1@g.us")
	require.NoError(t, err)
	assert.Equal(t, members, got)
	assert.Equal(t, 3, pagesServed)
}

func TestListMembersEmptyGroupIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"members": []Member{}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.ListMembers(context.Background(), "g1@g.us")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusForbidden, KindNotAuthorized},
		{http.StatusUnauthorized, KindNotAuthorized},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindInvalidGroup},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.ListMembers(context.Background(), "g1@g.us")
			require.Error(t, err)
			assert.Equal(t, tt.kind, Classify(err))

			var be *Error
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.status, be.StatusCode)
		})
	}
}

func TestUnreachableBridge(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	_, err := c.ListMembers(context.Background(), "g1@g.us")
	require.Error(t, err)
	assert.Equal(t, KindUnreachable, Classify(err))
	assert.True(t, Classify(err).Retryable())
}

func TestUpdateParticipantsPerTargetResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/group/g1@g.us/participants/remove", r.URL.Path)

		var req struct {
			Participants []string `json:"participants"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"1@s.whatsapp.net", "2@s.whatsapp.net"}, req.Participants)

		// Overall success with one per-target failure.
		json.NewEncoder(w).Encode(map[string]any{
			"per_target": []TargetResult{
				{Identifier: "1@s.whatsapp.net", Success: true},
				{Identifier: "2@s.whatsapp.net", Success: false, ErrorCode: "not-in-group"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	results, err := c.UpdateParticipants(context.Background(), "g1@g.us", "remove",
		[]string{"1@s.whatsapp.net", "2@s.whatsapp.net"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "not-in-group", results[1].ErrorCode)
}

func TestUpdateParticipantsRejectsEmptyInput(t *testing.T) {
	c := New("http://localhost:0")

	_, err := c.UpdateParticipants(context.Background(), "", "remove", []string{"x"})
	assert.Equal(t, KindInvalidGroup, Classify(err))

	_, err = c.UpdateParticipants(context.Background(), "g", "remove", nil)
	assert.Equal(t, KindInvalidGroup, Classify(err))
}

func TestContextCancellationPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL)
	_, err := c.ListMembers(ctx, "g1@g.us")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
