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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groupline/rosterctl/pkg/identity"
)

// lookupCmd resolves a phone number or identifier through normalization
// and the local contact directory.
var lookupCmd = &cobra.Command{
	Use:   "lookup <identifier>",
	Short: "Show how an identifier normalizes and what the contact book knows about it",
	Long: `Normalizes the given identifier and searches the local contact
directory for entries sharing its significant digits, including the
linked-device identifiers recorded for the same person.

Examples:
  rosterctl lookup "+972-54-583-1336"
  rosterctl lookup 0545831336
  rosterctl lookup 972545831336@s.whatsapp.net`,
	Args: cobra.ExactArgs(1),
	RunE: runLookupCommand,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

func runLookupCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id := identity.Normalize(args[0])
	fmt.Printf("input:     %s\n", id.Raw)
	fmt.Printf("canonical: %s\n", id.Canonical)
	fmt.Printf("kind:      %s\n", id.Kind)
	if id.AmbiguousCountry {
		fmt.Println("note: no recognized country code, matching relies on the contact directory")
	}

	contacts, err := openContacts()
	if err != nil {
		logger.Warn("contact directory unavailable", "error", err)
		return nil
	}
	defer contacts.Close()

	matches, err := contacts.Resolve(ctx, id.Canonical)
	if err != nil {
		return err
	}
	if name, err := contacts.DisplayName(ctx, id.Raw); err == nil && name != "" {
		fmt.Printf("name:      %s\n", name)
	}
	if len(matches) == 0 {
		fmt.Println("No directory matches.")
		return nil
	}
	fmt.Println("directory matches:")
	for _, m := range matches {
		fmt.Printf("  %s\n", m)
	}
	return nil
}
