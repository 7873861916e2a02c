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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/groupline/rosterctl/pkg/reconcile"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	compareGroupA string // First group (key or name fragment)
	compareGroupB string // Second group (key or name fragment)
	compareSource string // Roster source: api, history, or auto
	compareWindow time.Duration
	compareOut    string // Reconciliation output file (JSONL)
	compareCSV    string // Optional CSV export of the common set
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// compareCmd reconciles the member rosters of two groups.
//
// The common set is what the bulk-remove workflow feeds on: members of
// group A who are also in group B. Ambiguous matches are reported
// separately and never sneak into common.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two group rosters and partition their members",
	Long: `Fetches the rosters of two groups and partitions the members into
common, only-A, only-B, and ambiguous sets.

Matching happens on normalized identifiers, so the same member listed as a
phone address in one group and a raw phone number in the other still
matches. Numbers without a recognizable country code are matched through
the local contact directory and reported as ambiguous.

Examples:
  rosterctl compare --group-a "Board Games" --group-b "Board Games 2"
  rosterctl compare --group-a a@g.us --group-b b@g.us --source history --window 720h
  rosterctl compare --group-a a@g.us --group-b b@g.us --csv common.csv`,
	RunE: runCompareCommand,
}

func init() {
	compareCmd.Flags().StringVar(&compareGroupA, "group-a", "", "first group key or name (required)")
	compareCmd.Flags().StringVar(&compareGroupB, "group-b", "", "second group key or name (required)")
	compareCmd.Flags().StringVar(&compareSource, "source", "auto", "roster source: api, history, or auto")
	compareCmd.Flags().DurationVar(&compareWindow, "window", 0, "history window for history-sourced rosters (0 = all)")
	compareCmd.Flags().StringVar(&compareOut, "out", "reconciliation.jsonl", "path for the reconciliation result file")
	compareCmd.Flags().StringVar(&compareCSV, "csv", "", "also export the common set as CSV to this path")
	compareCmd.MarkFlagRequired("group-a")
	compareCmd.MarkFlagRequired("group-b")
	rootCmd.AddCommand(compareCmd)
}

func runCompareCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	groupA, err := resolveGroupKey(ctx, compareGroupA)
	if err != nil {
		return err
	}
	groupB, err := resolveGroupKey(ctx, compareGroupB)
	if err != nil {
		return err
	}

	rosterA, err := fetchRoster(ctx, compareSource, groupA, compareWindow)
	if err != nil {
		return fmt.Errorf("fetch roster A: %w", err)
	}
	rosterB, err := fetchRoster(ctx, compareSource, groupB, compareWindow)
	if err != nil {
		return fmt.Errorf("fetch roster B: %w", err)
	}
	logger.Info("rosters fetched",
		"group_a", groupA, "members_a", len(rosterA.Entries), "source_a", rosterA.Source,
		"group_b", groupB, "members_b", len(rosterB.Entries), "source_b", rosterB.Source)

	// The contact directory enables ambiguous matching and CSV names; a
	// missing contacts database degrades to equality-only matching.
	var (
		dir   reconcile.Directory
		names reconcile.NameResolver
	)
	contacts, err := openContacts()
	if err != nil {
		logger.Warn("contact directory unavailable, ambiguous matching disabled", "error", err)
	} else {
		defer contacts.Close()
		dir = contacts
		names = contacts
	}

	result, err := reconcile.Reconcile(ctx, rosterA, rosterB, dir)
	if err != nil {
		return err
	}
	if err := result.WriteFile(compareOut); err != nil {
		return err
	}

	if compareCSV != "" {
		f, err := os.Create(compareCSV)
		if err != nil {
			return fmt.Errorf("create csv %s: %w", compareCSV, err)
		}
		defer f.Close()
		if err := result.ExportCSV(ctx, f, reconcile.SetCommon, names); err != nil {
			return err
		}
	}

	fmt.Printf("Compared %s (%d members) with %s (%d members)\n",
		groupA, len(rosterA.Entries), groupB, len(rosterB.Entries))
	fmt.Printf("  common:    %d\n", len(result.Common))
	fmt.Printf("  only A:    %d\n", len(result.OnlyA))
	fmt.Printf("  only B:    %d\n", len(result.OnlyB))
	fmt.Printf("  ambiguous: %d\n", len(result.Ambiguous))
	if result.CompletenessCaveat {
		fmt.Println("  note: at least one roster came from message history and may be incomplete")
	}
	fmt.Printf("Result written to %s\n", compareOut)
	return nil
}
