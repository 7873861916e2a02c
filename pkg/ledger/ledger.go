// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger is the durable, append-only record of every planned and
// executed mutation. The ledger file is the source of truth for "has this
// target already been attempted": the planner reads it once at startup to
// skip targets in a terminal state, and the executor appends one record per
// task transition. Records are JSON, one per line, so the file stays
// re-parseable with standard tooling.
//
// Writer discipline: the executor is the only writer, and execution is
// single-threaded, so no cross-process locking is attempted. An unparseable
// line on open is fatal by design — proceeding against a ledger we cannot
// read risks duplicate mutations.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// =============================================================================
// Record Model
// =============================================================================

// Action is the mutation applied to a target.
type Action string

const (
	ActionRemove Action = "remove"
	ActionAdd    Action = "add"
)

// ParseAction validates an operator-supplied action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionRemove, ActionAdd:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q (want %q or %q)", s, ActionRemove, ActionAdd)
	}
}

// State is the lifecycle state of a mutation task as projected into the
// ledger. Terminal states are never revisited by a later run.
type State string

const (
	StatePending   State = "pending"
	StateInFlight  State = "in-flight"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Terminal reports whether the state ends a task's lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

// Key identifies a task: re-running the pipeline must not duplicate a task
// whose key already has a terminal record.
type Key struct {
	Group      string
	Identifier string // canonical form
	Action     Action
}

// Record is the durable projection of one task transition.
type Record struct {
	Group      string    `json:"group"`
	Identifier string    `json:"identifier"`
	Display    string    `json:"display,omitempty"` // raw form for humans
	Action     Action    `json:"action"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key returns the task identity of the record.
func (r Record) Key() Key {
	return Key{Group: r.Group, Identifier: r.Identifier, Action: r.Action}
}

// =============================================================================
// Corruption Error
// =============================================================================

// CorruptError reports an unparseable ledger line. The run refuses to
// proceed rather than risk re-mutating targets it cannot account for.
type CorruptError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s corrupt at line %d: %v", e.Path, e.Line, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a ledger corruption error.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger is an open ledger file plus an in-memory index of the latest record
// per task key. Lookup answers resumption queries; Append is write-through.
type Ledger struct {
	path    string
	file    *os.File
	index   map[Key]Record
	records []Record
}

// Open reads an existing ledger (creating the file if absent) and builds the
// key index. Every line must parse; the first bad line aborts with a
// CorruptError naming it.
func Open(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	l := &Ledger{path: path, file: f, index: make(map[Key]Record)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			f.Close()
			return nil, &CorruptError{Path: path, Line: line, Err: err}
		}
		if rec.Group == "" || rec.Identifier == "" || rec.Action == "" {
			f.Close()
			return nil, &CorruptError{Path: path, Line: line, Err: errors.New("record missing group, identifier, or action")}
		}
		l.records = append(l.records, rec)
		l.index[rec.Key()] = rec
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	// Position at end for appends.
	if _, err := f.Seek(0, 2); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek ledger %s: %w", path, err)
	}
	return l, nil
}

// Lookup returns the latest record for a key, if any.
func (l *Ledger) Lookup(k Key) (Record, bool) {
	rec, ok := l.index[k]
	return rec, ok
}

// Append writes a record and syncs it to disk before returning, so a crash
// between tasks loses at most the in-flight one.
func (l *Ledger) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append ledger %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger %s: %w", l.path, err)
	}
	l.records = append(l.records, rec)
	l.index[rec.Key()] = rec
	return nil
}

// Records returns all records in file order. The slice is a copy.
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records read or appended so far.
func (l *Ledger) Len() int { return len(l.records) }

// Close releases the underlying file.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
