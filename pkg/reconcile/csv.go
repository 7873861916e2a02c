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
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/groupline/rosterctl/pkg/identity"
)

// NameResolver looks up a display name for an identifier. The contact store
// satisfies this; a nil resolver leaves the name column empty.
type NameResolver interface {
	DisplayName(ctx context.Context, rawIdentifier string) (string, error)
}

// ExportCSV writes one named set of the result as CSV for spreadsheet
// review. Columns are phone_number, name, identifier, source. phone_number
// is blank for linked-device members, whose identifiers carry no phone.
func (r *Result) ExportCSV(ctx context.Context, w io.Writer, set string, names NameResolver) error {
	members, err := r.Members(set)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"phone_number", "name", "identifier", "source"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, id := range members {
		phone := ""
		if id.Kind == identity.KindPhone || (id.Kind == identity.KindRaw && id.Domain == "") {
			phone = id.Canonical
		}
		name := ""
		if names != nil {
			if name, err = names.DisplayName(ctx, id.Raw); err != nil {
				return fmt.Errorf("resolve name for %s: %w", id.Raw, err)
			}
		}
		if err := cw.Write([]string{phone, name, id.Raw, id.Kind.String()}); err != nil {
			return fmt.Errorf("write csv row for %s: %w", id.Raw, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
