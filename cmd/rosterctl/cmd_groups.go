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

	"github.com/groupline/rosterctl/pkg/history"
)

var (
	groupsMatch string
	groupsJSON  bool
)

// groupsCmd lists the groups known to the local chat directory.
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List known groups, optionally filtered by name",
	Long: `Lists the group chats recorded in the local message store, with their
keys. Keys are what compare and apply want when name fragments are
ambiguous.

Examples:
  rosterctl groups
  rosterctl groups --match "board games"`,
	RunE: runGroupsCommand,
}

func init() {
	groupsCmd.Flags().StringVar(&groupsMatch, "match", "", "only groups whose name contains this, case-insensitive")
	groupsCmd.Flags().BoolVar(&groupsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(groupsCmd)
}

func runGroupsCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openMessages()
	if err != nil {
		return err
	}
	defer store.Close()

	var groups []history.Group
	if groupsMatch != "" {
		groups, err = store.FindGroups(ctx, groupsMatch)
	} else {
		groups, err = store.Groups(ctx)
	}
	if err != nil {
		return err
	}

	if groupsJSON {
		return OutputJSON(groups)
	}
	if len(groups) == 0 {
		fmt.Println("No groups found.")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("%-40s %s\n", g.Name, g.Key)
	}
	return nil
}
