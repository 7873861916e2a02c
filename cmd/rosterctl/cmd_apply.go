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

	"github.com/groupline/rosterctl/cmd/rosterctl/config"
	"github.com/groupline/rosterctl/pkg/execute"
	"github.com/groupline/rosterctl/pkg/ledger"
	"github.com/groupline/rosterctl/pkg/plan"
	"github.com/groupline/rosterctl/pkg/reconcile"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	applyGroup      string // Target group (key or name fragment)
	applyAction     string // remove or add
	applyFrom       string // Reconciliation result file
	applySet        string // Which result set to act on
	applyLedger     string // Ledger path override
	applyDelay      time.Duration
	applyMaxRetries int
	applyDryRun     bool
	applyYes        bool
	applyWhitelist  string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// applyCmd plans and executes a mutation batch from a reconciliation file.
//
// Resumption is free: the ledger remembers every target that reached a
// terminal state, and rerunning the same apply skips them.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply membership mutations from a reconciliation result",
	Long: `Plans and executes remove or add mutations against one group, taking
targets from a set of a previously written reconciliation result.

Execution is strictly sequential with a mandatory pause between calls.
Every task transition is appended to the ledger before the next call, so
an interrupted run can simply be rerun: finished targets are skipped.

Examples:
  rosterctl apply --group b@g.us --action remove --from reconciliation.jsonl --dry-run
  rosterctl apply --group b@g.us --action remove --from reconciliation.jsonl --whitelist keep.txt --yes
  rosterctl apply --group b@g.us --action add --from reconciliation.jsonl --set only-a`,
	RunE: runApplyCommand,
}

func init() {
	applyCmd.Flags().StringVar(&applyGroup, "group", "", "group to mutate (required)")
	applyCmd.Flags().StringVar(&applyAction, "action", "", "mutation: remove or add (required)")
	applyCmd.Flags().StringVar(&applyFrom, "from", "", "reconciliation result file (required)")
	applyCmd.Flags().StringVar(&applySet, "set", reconcile.SetCommon, "result set to act on: common, only-a, only-b, or ambiguous")
	applyCmd.Flags().StringVar(&applyLedger, "ledger", "", "ledger file (default from config)")
	applyCmd.Flags().DurationVar(&applyDelay, "delay", 0, "pause between mutation calls (default from config)")
	applyCmd.Flags().IntVar(&applyMaxRetries, "max-retries", 0, "attempts per target for transient failures (default from config)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "record what would happen without calling the bridge")
	applyCmd.Flags().BoolVar(&applyYes, "yes", false, "skip the interactive confirmation")
	applyCmd.Flags().StringVar(&applyWhitelist, "whitelist", "", "file of identifiers that must never be mutated")
	applyCmd.MarkFlagRequired("group")
	applyCmd.MarkFlagRequired("action")
	applyCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(applyCmd)
}

func runApplyCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	action, err := ledger.ParseAction(applyAction)
	if err != nil {
		return err
	}
	group, err := resolveGroupKey(ctx, applyGroup)
	if err != nil {
		return err
	}

	result, err := reconcile.ReadFile(applyFrom)
	if err != nil {
		return err
	}
	members, err := result.Members(applySet)
	if err != nil {
		return err
	}
	if result.CompletenessCaveat {
		fmt.Println("note: the reconciliation was built from a possibly incomplete roster")
	}

	var wl *plan.Whitelist
	if applyWhitelist != "" {
		if wl, err = plan.LoadWhitelist(applyWhitelist); err != nil {
			return err
		}
		logger.Info("whitelist loaded", "path", applyWhitelist, "entries", wl.Len())
	}

	ledgerPath := applyLedger
	if ledgerPath == "" {
		ledgerPath = config.Global.Run.LedgerPath
	}
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		// Corruption is deliberately fatal: mutating on top of a ledger
		// we cannot read risks doing the same removal twice.
		return err
	}
	defer led.Close()

	p := plan.Build(group, action, members, led, wl)
	fmt.Printf("Planned %d task(s) for %s %s (%d already done, %d whitelisted)\n",
		len(p.Tasks), action, group, p.AlreadyDone, len(p.Tasks)-p.Runnable())
	if len(p.Tasks) == 0 {
		fmt.Println("Nothing to do.")
		return nil
	}

	if !applyYes && !applyDryRun {
		if !confirm(fmt.Sprintf("Execute %d %s task(s) against %s?", p.Runnable(), action, group)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	delay := applyDelay
	if delay == 0 {
		delay = config.Global.Run.Delay.Std()
	}
	maxAttempts := applyMaxRetries
	if maxAttempts == 0 {
		maxAttempts = config.Global.Run.MaxAttempts
	}

	ex := execute.New(newBridgeClient(), led, execute.Config{
		Delay:       delay,
		MaxAttempts: maxAttempts,
		DryRun:      applyDryRun,
	}, logger.Slog())

	sum, err := ex.Run(ctx, p)
	if err != nil {
		return fmt.Errorf("run aborted (rerun to resume): %w", err)
	}

	fmt.Printf("Run %s finished: %d succeeded, %d failed, %d skipped\n",
		sum.RunID, sum.Succeeded, sum.Failed, sum.Skipped)
	if sum.Failed > 0 {
		fmt.Printf("Inspect failures with: rosterctl ledger --file %s\n", ledgerPath)
	}
	return nil
}
