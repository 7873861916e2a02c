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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/groupline/rosterctl/cmd/rosterctl/config"
	"github.com/groupline/rosterctl/pkg/bridge"
	"github.com/groupline/rosterctl/pkg/history"
	"github.com/groupline/rosterctl/pkg/logging"
	"github.com/groupline/rosterctl/pkg/roster"
	"github.com/groupline/rosterctl/pkg/snapshot"
)

// --- Global Command Variables ---
var (
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "rosterctl",
		Short: "Reconcile and bulk-edit group memberships through a local messaging bridge",
		Long: `rosterctl compares the member rosters of messaging groups, plans
membership mutations from the comparison, and executes them sequentially
against the local bridge with durable, resumable bookkeeping.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(config.Global.Logging.Level),
				LogDir:  config.Global.Logging.LogDir,
				Service: "rosterctl",
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}
)

// newBridgeClient builds the bridge client from the loaded config.
func newBridgeClient() *bridge.Client {
	return bridge.New(config.Global.Bridge.BaseURL,
		bridge.WithTimeout(config.Global.Bridge.Timeout.Std()),
		bridge.WithPageSize(config.Global.Bridge.PageSize),
	)
}

func openMessages() (*history.Store, error) {
	return history.Open(config.Global.Stores.MessagesDB)
}

func openContacts() (*history.Contacts, error) {
	return history.OpenContacts(config.Global.Stores.ContactsDB)
}

// resolveGroupKey accepts either a full group key or a display-name
// fragment, resolved through the local chat directory. A fragment matching
// several groups is an error listing the candidates; guessing which group
// to mutate is not this tool's call.
func resolveGroupKey(ctx context.Context, arg string) (string, error) {
	if strings.HasSuffix(arg, "@g.us") {
		return arg, nil
	}

	store, err := openMessages()
	if err != nil {
		return "", fmt.Errorf("group %q is not a key and the chat directory is unavailable: %w", arg, err)
	}
	defer store.Close()

	groups, err := store.FindGroups(ctx, arg)
	if err != nil {
		return "", err
	}
	switch len(groups) {
	case 0:
		return "", fmt.Errorf("no group matches %q", arg)
	case 1:
		logger.Info("resolved group name", "name", arg, "key", groups[0].Key)
		return groups[0].Key, nil
	default:
		names := make([]string, 0, len(groups))
		for _, g := range groups {
			names = append(names, fmt.Sprintf("%s (%s)", g.Name, g.Key))
		}
		return "", fmt.Errorf("%q matches %d groups: %s", arg, len(groups), strings.Join(names, ", "))
	}
}

// fetchRoster acquires a roster from the named source. "api" and "auto"
// fetch from the bridge with paced retries; when those are exhausted the
// run aborts rather than quietly degrading to a partial history view.
// Message history is only ever used when the operator asks for it with
// --source history. Successful fetches are snapshotted for later audit;
// snapshot failures only warn.
func fetchRoster(ctx context.Context, source, group string, window time.Duration) (*roster.Roster, error) {
	var (
		r   *roster.Roster
		err error
	)
	switch source {
	case "api", "auto":
		src := roster.NewAPISource(newBridgeClient(),
			roster.WithFetchRetry(config.Global.Run.MaxAttempts, config.Global.Run.Delay.Std()))
		r, err = src.Fetch(ctx, group)
		if err != nil && bridge.Classify(err) == bridge.KindUnreachable {
			err = fmt.Errorf("bridge unreachable after retries; rerun with --source history to compare from local history instead: %w", err)
		}
	case "history":
		r, err = fetchHistoryRoster(ctx, group, window)
	default:
		return nil, fmt.Errorf("unknown source %q (want api, history, or auto)", source)
	}
	if err != nil {
		return nil, err
	}

	saveSnapshot(r)
	return r, nil
}

func fetchHistoryRoster(ctx context.Context, group string, window time.Duration) (*roster.Roster, error) {
	store, err := openMessages()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return roster.NewHistorySource(store, window).Fetch(ctx, group)
}

func saveSnapshot(r *roster.Roster) {
	store, err := snapshot.OpenDir(config.Global.Stores.SnapshotDir)
	if err != nil {
		logger.Warn("snapshot store unavailable", "error", err)
		return
	}
	defer store.Close()
	if err := store.Save(r); err != nil {
		logger.Warn("failed to snapshot roster", "group", r.Group, "error", err)
		return
	}
	logger.Debug("roster snapshotted", "group", r.Group, "source", r.Source,
		"members", len(r.Entries))
}
