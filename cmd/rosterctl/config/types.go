// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that round-trips through YAML as a string
// ("2s", "30m"). Plain integers are accepted as nanoseconds.
type Duration time.Duration

// Std returns the standard-library value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	*d = Duration(n)
	return nil
}

// RosterctlConfig is the on-disk configuration, ~/.rosterctl/rosterctl.yaml.
type RosterctlConfig struct {
	// Bridge: the local group-management HTTP API
	Bridge BridgeConfig `yaml:"bridge"`

	// Stores: paths to the bridge's SQLite databases and our local state
	Stores StoresConfig `yaml:"stores"`

	// Run: mutation execution pacing and resumption
	Run RunConfig `yaml:"run"`

	// Logging: stderr verbosity and the run-log directory
	Logging LoggingConfig `yaml:"logging"`
}

type BridgeConfig struct {
	BaseURL  string   `yaml:"base_url" validate:"required,url"`
	Timeout  Duration `yaml:"timeout" validate:"gt=0"`
	PageSize int      `yaml:"page_size" validate:"gt=0,lte=1000"`
}

type StoresConfig struct {
	MessagesDB  string `yaml:"messages_db" validate:"required"`
	ContactsDB  string `yaml:"contacts_db" validate:"required"`
	SnapshotDir string `yaml:"snapshot_dir" validate:"required"`
}

type RunConfig struct {
	// Delay is the minimum pause between mutation calls. The platform
	// rate-limits membership changes; going below ~2s risks the account.
	Delay       Duration `yaml:"delay" validate:"gte=1s"`
	MaxAttempts int      `yaml:"max_attempts" validate:"gte=1,lte=10"`
	LedgerPath  string   `yaml:"ledger_path" validate:"required"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	LogDir string `yaml:"log_dir"`
}

// DefaultConfig returns the configuration written on first run. Paths land
// under ~/.rosterctl except the bridge databases, which live wherever the
// bridge keeps them and usually need editing.
func DefaultConfig() RosterctlConfig {
	base := ".rosterctl"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".rosterctl")
	}
	return RosterctlConfig{
		Bridge: BridgeConfig{
			BaseURL:  "http://localhost:8080",
			Timeout:  Duration(30 * time.Second),
			PageSize: 200,
		},
		Stores: StoresConfig{
			MessagesDB:  filepath.Join(base, "store", "messages.db"),
			ContactsDB:  filepath.Join(base, "store", "contacts.db"),
			SnapshotDir: filepath.Join(base, "snapshots"),
		},
		Run: RunConfig{
			Delay:       Duration(2 * time.Second),
			MaxAttempts: 3,
			LedgerPath:  filepath.Join(base, "ledger.jsonl"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			LogDir: filepath.Join(base, "logs"),
		},
	}
}
