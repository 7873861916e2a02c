// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history reads the bridge's local SQLite stores. Both databases are
// owned and written by the bridge process; this package opens them strictly
// read-only and never migrates or mutates them.
//
// messages.db holds message metadata (chat key, sender, timestamp) and the
// chat directory. It is the source for message-history-derived rosters,
// which by construction only see members who have ever sent something.
//
// The contacts database holds the bridge's contact book, including entries
// that map phone numbers to linked-device identifiers. That mapping is the
// auxiliary directory the reconciler consults for cross-format matches.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// broadcastSender is the platform's system pseudo-sender; it is never a
// group member and is filtered from every sender enumeration.
const broadcastSender = "status@broadcast"

// timeLayout is the timestamp format the bridge writes. Stored values may
// append fraction/zone suffixes; lexicographic comparison against this
// prefix form is still correct for cutoffs.
const timeLayout = "2006-01-02 15:04:05"

// Store reads the message-history database.
type Store struct {
	db *sql.DB
}

// Open opens a message-history database read-only.
func Open(path string) (*Store, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open message history %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Sender is one distinct message sender observed in a group.
type Sender struct {
	Identifier string
	FirstSeen  string // bridge-format timestamp of the earliest message
}

// Senders returns the distinct senders seen in a group within the trailing
// window. A zero window means unbounded. The broadcast pseudo-sender and
// empty senders are excluded.
func (s *Store) Senders(ctx context.Context, group string, window time.Duration) ([]Sender, error) {
	query := `
		SELECT sender, MIN(timestamp)
		FROM messages
		WHERE chat_jid = ? AND sender IS NOT NULL AND sender != '' AND sender != ?`
	args := []any{group, broadcastSender}

	if window > 0 {
		query += ` AND timestamp >= ?`
		args = append(args, time.Now().Add(-window).UTC().Format(timeLayout))
	}
	query += ` GROUP BY sender ORDER BY MIN(timestamp)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query senders for %s: %w", group, err)
	}
	defer rows.Close()

	var out []Sender
	for rows.Next() {
		var snd Sender
		if err := rows.Scan(&snd.Identifier, &snd.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan sender row: %w", err)
		}
		out = append(out, snd)
	}
	return out, rows.Err()
}

// Group is one group chat known to the bridge.
type Group struct {
	Key  string
	Name string
}

// Groups lists every group chat in the store, ordered by display name.
func (s *Store) Groups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT jid, COALESCE(name, '')
		FROM chats
		WHERE jid LIKE '%@g.us'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// FindGroups returns groups whose display name contains the given fragment,
// case-insensitively. Multiple matches are expected; the caller decides.
func (s *Store) FindGroups(ctx context.Context, name string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT jid, COALESCE(name, '')
		FROM chats
		WHERE jid LIKE '%@g.us' AND LOWER(name) LIKE LOWER(?)
		ORDER BY name`, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("find groups %q: %w", name, err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

func scanGroups(rows *sql.Rows) ([]Group, error) {
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Key, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// The bridge may hold the write lock; reads are still fine, but a
	// broken file should surface now rather than mid-run.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
