// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/groupline/rosterctl/pkg/identity"
)

// Contacts reads the bridge's contact database. Beyond display names it
// doubles as the phone-to-device directory: the bridge records a contact row
// for both the phone-addressed and the linked-device identifier of the same
// person, which is the only place that equivalence is written down.
type Contacts struct {
	db *sql.DB
}

// OpenContacts opens a contact database read-only.
func OpenContacts(path string) (*Contacts, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open contacts %s: %w", path, err)
	}
	return &Contacts{db: db}, nil
}

// Close releases the database handle.
func (c *Contacts) Close() error { return c.db.Close() }

// DisplayName resolves the best available name for an identifier: full name,
// then push name, then first name. Empty string when unknown.
func (c *Contacts) DisplayName(ctx context.Context, rawIdentifier string) (string, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(full_name, ''), COALESCE(push_name, ''), COALESCE(first_name, '')
		FROM whatsmeow_contacts
		WHERE their_jid = ?`, rawIdentifier)

	var full, push, first string
	if err := row.Scan(&full, &push, &first); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup name for %s: %w", rawIdentifier, err)
	}
	if full != "" {
		return full, nil
	}
	if push != "" {
		return push, nil
	}
	return first, nil
}

// Resolve returns the canonical forms of every contact entry whose
// identifier contains the given digit fragment. This powers the
// reconciler's cross-format inference: a country-ambiguous phone fragment
// can surface the linked-device identifier recorded for the same person.
//
// Matching is by digit suffix, never by guessed country code. Fragments
// shorter than 7 digits return nothing; they would match half the contact
// book.
func (c *Contacts) Resolve(ctx context.Context, digits string) ([]string, error) {
	if len(digits) < 7 {
		return nil, nil
	}
	// National formats carry a trunk zero that platform addresses never
	// have; the significant suffix is what survives both formats.
	suffix := digits
	if len(suffix) > 9 {
		suffix = suffix[len(suffix)-9:]
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT their_jid
		FROM whatsmeow_contacts
		WHERE their_jid LIKE ?
		LIMIT 20`, "%"+suffix+"%")
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", digits, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		out = append(out, identity.Normalize(jid).Canonical)
	}
	return out, rows.Err()
}
