// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/groupline/rosterctl/pkg/identity"
	"github.com/groupline/rosterctl/pkg/roster"
)

// The on-disk format is JSONL: a meta line followed by one line per member.
// Line-per-record keeps the file greppable and lets apply stream it without
// loading huge results at once.

type metaLine struct {
	Type               string    `json:"type"` // "meta"
	GroupA             string    `json:"group_a"`
	GroupB             string    `json:"group_b"`
	ComparedAt         time.Time `json:"compared_at"`
	CompletenessCaveat bool      `json:"completeness_caveat"`
}

type memberLine struct {
	Type string                    `json:"type"` // "member"
	Set  string                    `json:"set"`
	ID   identity.MemberIdentifier `json:"id"`
	Role roster.Role               `json:"role,omitempty"`

	// B and Via are populated for ambiguous entries only.
	B   *identity.MemberIdentifier `json:"b,omitempty"`
	Via string                     `json:"via,omitempty"`
}

// Write serializes a result to w.
func (r *Result) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(metaLine{
		Type:               "meta",
		GroupA:             r.GroupA,
		GroupB:             r.GroupB,
		ComparedAt:         r.ComparedAt,
		CompletenessCaveat: r.CompletenessCaveat,
	}); err != nil {
		return fmt.Errorf("write meta line: %w", err)
	}

	emit := func(l memberLine) error {
		l.Type = "member"
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("write member line for %s: %w", l.ID.Canonical, err)
		}
		return nil
	}
	for _, m := range r.Common {
		if err := emit(memberLine{Set: SetCommon, ID: m.ID, Role: m.Role}); err != nil {
			return err
		}
	}
	for _, e := range r.OnlyA {
		if err := emit(memberLine{Set: SetOnlyA, ID: e.ID, Role: e.Role}); err != nil {
			return err
		}
	}
	for _, e := range r.OnlyB {
		if err := emit(memberLine{Set: SetOnlyB, ID: e.ID, Role: e.Role}); err != nil {
			return err
		}
	}
	for _, m := range r.Ambiguous {
		b := m.B.ID
		if err := emit(memberLine{Set: SetAmbiguous, ID: m.A.ID, Role: m.A.Role, B: &b, Via: m.Via}); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile persists a result to path, replacing any existing file.
func (r *Result) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := r.Write(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush result file %s: %w", path, err)
	}
	return f.Sync()
}

// Read parses a result previously produced by Write. A malformed line is an
// error with its line number; apply must not run against a half-understood
// result file.
func Read(r io.Reader) (*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty result file")
	}
	var meta metaLine
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || meta.Type != "meta" {
		return nil, fmt.Errorf("line 1: not a result meta line")
	}
	res := &Result{
		GroupA:             meta.GroupA,
		GroupB:             meta.GroupB,
		ComparedAt:         meta.ComparedAt,
		CompletenessCaveat: meta.CompletenessCaveat,
	}

	for line := 2; sc.Scan(); line++ {
		var ml memberLine
		if err := json.Unmarshal(sc.Bytes(), &ml); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch ml.Set {
		case SetCommon:
			res.Common = append(res.Common, Match{ID: ml.ID, Role: ml.Role})
		case SetOnlyA:
			res.OnlyA = append(res.OnlyA, roster.Entry{ID: ml.ID, Role: ml.Role})
		case SetOnlyB:
			res.OnlyB = append(res.OnlyB, roster.Entry{ID: ml.ID, Role: ml.Role})
		case SetAmbiguous:
			am := AmbiguousMatch{A: roster.Entry{ID: ml.ID, Role: ml.Role}, Via: ml.Via}
			if ml.B != nil {
				am.B = roster.Entry{ID: *ml.B}
			}
			res.Ambiguous = append(res.Ambiguous, am)
		default:
			return nil, fmt.Errorf("line %d: unknown set %q", line, ml.Set)
		}
	}
	return res, sc.Err()
}

// ReadFile parses a result file from path.
func ReadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result file %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
