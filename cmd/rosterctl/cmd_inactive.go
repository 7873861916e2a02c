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

	"github.com/groupline/rosterctl/pkg/reconcile"
	"github.com/groupline/rosterctl/pkg/roster"
)

var (
	inactiveGroup  string
	inactiveWindow time.Duration
	inactiveOut    string
)

// inactiveCmd finds members with no message in the window: the API roster
// reconciled against the history-derived one, where only-A is exactly the
// silent membership.
var inactiveCmd = &cobra.Command{
	Use:   "inactive",
	Short: "List group members who have not sent a message in the window",
	Long: `Fetches the authoritative roster from the bridge, derives the active
senders from local message history, and reports the difference.

The result is written as a reconciliation file, so it can feed apply
directly with --set only-a.

Examples:
  rosterctl inactive --group g1@g.us --window 2160h
  rosterctl inactive --group "Board Games" --out inactive.jsonl`,
	RunE: runInactiveCommand,
}

func init() {
	inactiveCmd.Flags().StringVar(&inactiveGroup, "group", "", "group key or name (required)")
	inactiveCmd.Flags().DurationVar(&inactiveWindow, "window", 90*24*time.Hour, "activity window")
	inactiveCmd.Flags().StringVar(&inactiveOut, "out", "", "also write the result as a reconciliation file")
	inactiveCmd.MarkFlagRequired("group")
	rootCmd.AddCommand(inactiveCmd)
}

func runInactiveCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	group, err := resolveGroupKey(ctx, inactiveGroup)
	if err != nil {
		return err
	}

	full, err := roster.NewAPISource(newBridgeClient()).Fetch(ctx, group)
	if err != nil {
		return fmt.Errorf("fetch roster: %w", err)
	}
	active, err := fetchHistoryRoster(ctx, group, inactiveWindow)
	if err != nil {
		return fmt.Errorf("derive active senders: %w", err)
	}
	saveSnapshot(full)

	// Suppress the partial caveat on purpose: "active" being incomplete is
	// the whole point of the query, only-A is silent members by definition.
	result, err := reconcile.Reconcile(ctx, full, active, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d member(s), %d active in the last %s, %d silent\n",
		group, len(full.Entries), len(result.Common), inactiveWindow, len(result.OnlyA))
	for _, e := range result.OnlyA {
		fmt.Printf("  %s\n", e.ID.Raw)
	}

	if inactiveOut != "" {
		if err := result.WriteFile(inactiveOut); err != nil {
			return err
		}
		fmt.Printf("Result written to %s (silent members are the only-a set)\n", inactiveOut)
	}
	return nil
}
