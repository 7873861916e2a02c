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

	"github.com/groupline/rosterctl/cmd/rosterctl/config"
	"github.com/groupline/rosterctl/pkg/ledger"
)

var (
	ledgerFile  string
	ledgerJSON  bool
	ledgerState string
)

// ledgerCmd audits the mutation ledger.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the mutation ledger",
	Long: `Prints the ledger records in file order. The ledger is the audit
trail of every planned and executed mutation, including dry runs.

Examples:
  rosterctl ledger
  rosterctl ledger --state failed
  rosterctl ledger --file ./ledger.jsonl --json`,
	RunE: runLedgerCommand,
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerFile, "file", "", "ledger file (default from config)")
	ledgerCmd.Flags().BoolVar(&ledgerJSON, "json", false, "output as JSON")
	ledgerCmd.Flags().StringVar(&ledgerState, "state", "", "only records in this state")
	rootCmd.AddCommand(ledgerCmd)
}

func runLedgerCommand(cmd *cobra.Command, args []string) error {
	path := ledgerFile
	if path == "" {
		path = config.Global.Run.LedgerPath
	}

	led, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer led.Close()

	records := led.Records()
	if ledgerState != "" {
		filtered := records[:0]
		for _, r := range records {
			if string(r.State) == ledgerState {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if ledgerJSON {
		return OutputJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No records.")
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-9s %-6s %-20s %s",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.State, r.Action, r.Identifier, r.Group)
		if r.Detail != "" {
			line += "  (" + r.Detail + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}
