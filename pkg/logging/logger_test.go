// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelParsing(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""), "unknown strings default to info")
	assert.Equal(t, "ERROR", LevelError.String())
}

func TestBufferedHandlerCapturesRecords(t *testing.T) {
	buf := NewBufferedHandler()
	logger := New(Config{Level: LevelInfo, Quiet: true, Service: "test", Handler: buf})
	defer logger.Close()

	logger.Info("task recorded", "group", "g1@g.us", "state", "succeeded")
	logger.Warn("retrying", "attempt", 2)

	recs := buf.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "task recorded", recs[0].Message)
	assert.Equal(t, "g1@g.us", recs[0].Attrs["group"])
	assert.Equal(t, "test", recs[0].Attrs["service"], "service attr stamped on every record")
	assert.Equal(t, slog.LevelWarn, recs[1].Level)
}

func TestWithAddsAttributes(t *testing.T) {
	buf := NewBufferedHandler()
	logger := New(Config{Quiet: true, Handler: buf})
	defer logger.Close()

	runLogger := logger.With("run_id", "r1")
	runLogger.Info("started")

	recs := buf.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].Attrs["run_id"])
}

func TestRunLogFileIsJSONPerDay(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "rosterctl", Quiet: true})

	logger.Info("batch complete", "succeeded", 3)
	require.NoError(t, logger.Close())

	name := "rosterctl_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	line := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "batch complete", entry["msg"])
	assert.Equal(t, float64(3), entry["succeeded"])
	assert.Equal(t, "rosterctl", entry["service"])
}

func TestRunLogLevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelWarn, LogDir: dir, Service: "rosterctl", Quiet: true})

	logger.Debug("noise")
	logger.Info("also noise")
	logger.Error("kept")
	require.NoError(t, logger.Close())

	name := "rosterctl_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	content := strings.TrimSpace(string(data))
	assert.Equal(t, 1, strings.Count(content, "\"msg\""))
	assert.Contains(t, content, "kept")
}

func TestCloseWithoutFileIsNil(t *testing.T) {
	logger := New(Config{Quiet: true})
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "double close is safe")
}
