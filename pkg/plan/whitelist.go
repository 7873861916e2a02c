// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/groupline/rosterctl/pkg/identity"
)

// Whitelist is a set of members that must never be mutated. Entries are
// compared in canonical space, so a whitelist line in any surface format
// protects the member in every format. A nil Whitelist contains nothing.
type Whitelist struct {
	canonical map[string]bool
}

// Contains reports whether an identifier is protected.
func (w *Whitelist) Contains(id identity.MemberIdentifier) bool {
	return w != nil && w.canonical[id.Canonical]
}

// Len returns the number of distinct protected members.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.canonical)
}

// LoadWhitelist reads a whitelist file: one identifier per line, blank
// lines and '#' comments ignored.
func LoadWhitelist(path string) (*Whitelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open whitelist %s: %w", path, err)
	}
	defer f.Close()

	w := &Whitelist{canonical: make(map[string]bool)}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w.canonical[identity.Normalize(line).Canonical] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read whitelist %s: %w", path, err)
	}
	return w, nil
}
