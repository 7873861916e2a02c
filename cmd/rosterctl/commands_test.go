// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupline/rosterctl/cmd/rosterctl/config"
	"github.com/groupline/rosterctl/pkg/bridge"
	"github.com/groupline/rosterctl/pkg/logging"
)

// newChatDirectory writes a fixture messages database and points the
// global config at it.
func newChatDirectory(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE chats (jid TEXT PRIMARY KEY, name TEXT);
		CREATE TABLE messages (chat_jid TEXT, sender TEXT, timestamp TEXT);
		INSERT INTO chats VALUES
			('g1@g.us', 'Board Games - General'),
			('g2@g.us', 'Board Games - General 2');
	`)
	require.NoError(t, err)

	old := config.Global
	t.Cleanup(func() { config.Global = old })
	config.Global.Stores.MessagesDB = path

	if logger == nil {
		logger = logging.New(logging.Config{Quiet: true})
	}
}

func TestResolveGroupKeyPassesThroughKeys(t *testing.T) {
	newChatDirectory(t)

	key, err := resolveGroupKey(context.Background(), "anything@g.us")
	require.NoError(t, err)
	assert.Equal(t, "anything@g.us", key)
}

func TestResolveGroupKeyByUniqueName(t *testing.T) {
	newChatDirectory(t)

	key, err := resolveGroupKey(context.Background(), "general 2")
	require.NoError(t, err)
	assert.Equal(t, "g2@g.us", key)
}

func TestResolveGroupKeyAmbiguousNameFails(t *testing.T) {
	newChatDirectory(t)

	_, err := resolveGroupKey(context.Background(), "board games")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches 2 groups")
}

func TestResolveGroupKeyUnknownNameFails(t *testing.T) {
	newChatDirectory(t)

	_, err := resolveGroupKey(context.Background(), "no such group")
	assert.Error(t, err)
}

func TestFetchRosterAutoAbortsWhenBridgeUnreachable(t *testing.T) {
	newChatDirectory(t)

	// Every connection is dropped before a response is written, so each
	// attempt fails at the transport level.
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	config.Global.Bridge.BaseURL = srv.URL
	config.Global.Bridge.Timeout = config.Duration(time.Second)
	config.Global.Run.MaxAttempts = 2
	config.Global.Run.Delay = config.Duration(time.Millisecond)
	config.Global.Stores.SnapshotDir = t.TempDir()

	_, err := fetchRoster(context.Background(), "auto", "g1@g.us", 0)
	require.Error(t, err)
	assert.Equal(t, bridge.KindUnreachable, bridge.Classify(err))
	assert.Contains(t, err.Error(), "--source history",
		"the failure must point at the explicit fallback instead of taking it")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "one retry, then abort")
}
