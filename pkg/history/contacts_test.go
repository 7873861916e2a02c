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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContactsDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE whatsmeow_contacts (
			their_jid TEXT PRIMARY KEY,
			first_name TEXT,
			full_name TEXT,
			push_name TEXT
		);
		INSERT INTO whatsmeow_contacts VALUES
			('972523451451@s.whatsapp.net', 'Dana', 'Dana Levi', 'dana.l'),
			('8811523451451@lid',          NULL,   NULL,        'dana-device'),
			('972540000000@s.whatsapp.net', NULL,   NULL,        'push-only');
	`)
	require.NoError(t, err)
	return path
}

func TestDisplayNamePreference(t *testing.T) {
	c, err := OpenContacts(newContactsDB(t))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	name, err := c.DisplayName(ctx, "972523451451@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Dana Levi", name, "full name wins")

	name, err = c.DisplayName(ctx, "972540000000@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "push-only", name, "push name is the fallback")

	name, err = c.DisplayName(ctx, "unknown@s.whatsapp.net")
	require.NoError(t, err)
	assert.Empty(t, name, "unknown contacts are not an error")
}

func TestResolveBySuffix(t *testing.T) {
	c, err := OpenContacts(newContactsDB(t))
	require.NoError(t, err)
	defer c.Close()

	// A national-format number with trunk zero shares its significant
	// suffix with both the phone address and the linked-device entry.
	got, err := c.Resolve(context.Background(), "0523451451")
	require.NoError(t, err)
	assert.Contains(t, got, "972523451451")
	assert.Contains(t, got, "8811523451451@lid")
}

func TestResolveShortFragmentReturnsNothing(t *testing.T) {
	c, err := OpenContacts(newContactsDB(t))
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Resolve(context.Background(), "451451")
	require.NoError(t, err)
	assert.Empty(t, got)
}
