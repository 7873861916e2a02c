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
	"time"

	"github.com/spf13/cobra"
)

var (
	membersGroup  string
	membersSource string
	membersWindow time.Duration
	membersJSON   bool
)

// membersCmd dumps one group's roster.
var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the members of a group",
	Long: `Fetches and prints one group's roster.

Examples:
  rosterctl members --group "Board Games"
  rosterctl members --group g1@g.us --source history --window 720h
  rosterctl members --group g1@g.us --json`,
	RunE: runMembersCommand,
}

func init() {
	membersCmd.Flags().StringVar(&membersGroup, "group", "", "group key or name (required)")
	membersCmd.Flags().StringVar(&membersSource, "source", "auto", "roster source: api, history, or auto")
	membersCmd.Flags().DurationVar(&membersWindow, "window", 0, "history window for history-sourced rosters (0 = all)")
	membersCmd.Flags().BoolVar(&membersJSON, "json", false, "output as JSON")
	membersCmd.MarkFlagRequired("group")
	rootCmd.AddCommand(membersCmd)
}

func runMembersCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	group, err := resolveGroupKey(ctx, membersGroup)
	if err != nil {
		return err
	}
	r, err := fetchRoster(ctx, membersSource, group, membersWindow)
	if err != nil {
		return err
	}

	if membersJSON {
		return OutputJSON(r)
	}

	fmt.Printf("%s: %d member(s) via %s\n", r.Group, len(r.Entries), r.Source)
	for _, e := range r.Entries {
		fmt.Printf("  %-40s %s\n", e.ID.Raw, e.Role)
	}
	if r.Partial {
		fmt.Println("note: history-derived roster, silent members are missing")
	}
	return nil
}
