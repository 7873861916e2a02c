// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/groupline/rosterctl/pkg/roster"
)

// ErrNotFound is returned when a group has no stored snapshots.
var ErrNotFound = errors.New("no snapshot for group")

const keyPrefix = "roster/"

// keyTimeLayout is a fixed-width RFC 3339 form. RFC3339Nano trims trailing
// fractional zeros, which breaks lexicographic ordering within a second
// ("...05Z" sorts after "...05.5Z"); padding to full nanoseconds keeps key
// order chronological so reverse iteration really finds the latest snapshot.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists roster snapshots.
type Store struct {
	db *badger.DB
}

// Open opens a snapshot store with the given configuration.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenDir opens a persistent snapshot store at the given directory with
// production defaults.
func OpenDir(dir string) (*Store, error) {
	cfg := DefaultConfig()
	cfg.Path = dir
	return Open(cfg)
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func groupKey(group string, at time.Time) []byte {
	return []byte(keyPrefix + group + "/" + at.UTC().Format(keyTimeLayout))
}

// Save persists one roster snapshot keyed by group and fetch time.
func (s *Store) Save(r *roster.Roster) error {
	if r.Group == "" {
		return errors.New("roster has no group key")
	}
	at := r.FetchedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", r.Group, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(r.Group, at), data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", r.Group, err)
	}
	return nil
}

// Latest returns the most recent snapshot stored for a group, or
// ErrNotFound when none exists.
func (s *Store) Latest(group string) (*roster.Roster, error) {
	var out *roster.Roster
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix + group + "/")
		// Reverse iteration needs a seek key past the last possible
		// timestamp under this prefix. 0xFF sorts after every RFC3339
		// byte.
		seek := append(append([]byte{}, prefix...), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return ErrNotFound
		}
		return it.Item().Value(func(val []byte) error {
			var r roster.Roster
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode snapshot %s: %w", it.Item().Key(), err)
			}
			out = &r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Taken lists the snapshot timestamps stored for a group, oldest first.
func (s *Store) Taken(group string) ([]time.Time, error) {
	var out []time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix + group + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stamp := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			at, err := time.Parse(keyTimeLayout, stamp)
			if err != nil {
				return fmt.Errorf("malformed snapshot key %s: %w", it.Item().Key(), err)
			}
			out = append(out, at)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
