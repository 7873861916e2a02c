// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execute runs a mutation plan against the bridge, strictly one
// task at a time with a mandatory pause between remote calls. The platform
// throttles and eventually flags accounts that mutate group membership too
// fast, so pacing is a correctness requirement here, not an optimization.
//
// Crash safety comes from ledger write ordering: an in-flight record lands
// before the first attempt and a terminal record after the last, each
// synced before the next task starts. A run killed mid-task leaves that
// task in-flight, which the planner treats as still to do.
package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/groupline/rosterctl/pkg/bridge"
	"github.com/groupline/rosterctl/pkg/ledger"
	"github.com/groupline/rosterctl/pkg/plan"
)

// Caller is the slice of the bridge client the executor needs.
type Caller interface {
	UpdateParticipants(ctx context.Context, group, action string, participants []string) ([]bridge.TargetResult, error)
}

// Config controls one run.
type Config struct {
	// Delay is the minimum time between remote calls, including retries.
	// Zero means DefaultDelay.
	Delay time.Duration

	// MaxAttempts bounds retries of transient failures per task. Zero
	// means DefaultMaxAttempts.
	MaxAttempts int

	// DryRun records every task as skipped without any remote call.
	DryRun bool

	// RunID stamps this run's ledger records. Generated when empty.
	RunID string
}

const (
	DefaultDelay       = 2 * time.Second
	DefaultMaxAttempts = 3
)

// Summary is the outcome tally of one run.
type Summary struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
}

// Executor runs plans.
type Executor struct {
	caller  Caller
	led     *ledger.Ledger
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates an executor writing to the given ledger.
func New(caller Caller, led *ledger.Ledger, cfg Config, log *slog.Logger) *Executor {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		caller: caller,
		led:    led,
		cfg:    cfg,
		// Burst 1: the first call goes immediately, every later call
		// (retries included) waits out the full delay.
		limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1),
		log:     log,
	}
}

// Run executes every task in order. It returns early only for context
// cancellation or a ledger write failure; per-task bridge failures are
// recorded and counted, never fatal to the batch.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) (Summary, error) {
	sum := Summary{RunID: e.cfg.RunID}

	for _, task := range p.Tasks {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if task.SkipReason != "" {
			if err := e.record(task, ledger.StateSkipped, 0, "", task.SkipReason); err != nil {
				return sum, err
			}
			sum.Skipped++
			continue
		}
		if e.cfg.DryRun {
			if err := e.record(task, ledger.StateSkipped, 0, "", "dry-run"); err != nil {
				return sum, err
			}
			sum.Skipped++
			continue
		}

		if err := e.record(task, ledger.StateInFlight, 0, "", ""); err != nil {
			return sum, err
		}

		state, attempts, kind, detail, err := e.attempt(ctx, task)
		if err != nil {
			// Cancellation mid-attempt: the in-flight record stands and
			// the next run replans this task.
			return sum, err
		}
		if err := e.record(task, state, attempts, kind, detail); err != nil {
			return sum, err
		}
		if state == ledger.StateSucceeded {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	return sum, nil
}

// attempt drives one task to a terminal state. The returned error is
// non-nil only for context cancellation.
func (e *Executor) attempt(ctx context.Context, task plan.Task) (ledger.State, int, string, string, error) {
	for attempts := 1; ; attempts++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", attempts, "", "", err
		}

		results, err := e.caller.UpdateParticipants(ctx, task.Group, string(task.Action), []string{task.ID.Raw})
		if err == nil {
			if kind, detail, ok := targetFailure(results, task.ID.Raw); ok {
				e.log.Warn("target failed within successful call",
					"group", task.Group, "target", task.ID.Raw, "code", detail)
				return ledger.StateFailed, attempts, kind, detail, nil
			}
			return ledger.StateSucceeded, attempts, "", "", nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", attempts, "", "", err
		}

		kind := bridge.Classify(err)
		switch kind {
		case bridge.KindNotAuthorized:
			return ledger.StateFailed, attempts, kind.String(), "insufficient privilege", nil
		case bridge.KindNotFound:
			return ledger.StateFailed, attempts, kind.String(), "target or group no longer exists", nil
		case bridge.KindInvalidGroup:
			return ledger.StateFailed, attempts, kind.String(), err.Error(), nil
		}

		if attempts >= e.cfg.MaxAttempts {
			return ledger.StateFailed, attempts, kind.String(),
				fmt.Sprintf("transient-exhausted after %d attempts: %v", attempts, err), nil
		}
		e.log.Warn("transient failure, will retry",
			"group", task.Group, "target", task.ID.Raw, "attempt", attempts, "error", err)
	}
}

// targetFailure scans per-target results for this task's target. A missing
// entry counts as success; the bridge omits targets it had nothing to say
// about.
func targetFailure(results []bridge.TargetResult, target string) (kind, detail string, failed bool) {
	for _, r := range results {
		if r.Identifier == target && !r.Success {
			return "per-target", r.ErrorCode, true
		}
	}
	return "", "", false
}

func (e *Executor) record(task plan.Task, state ledger.State, attempts int, kind, detail string) error {
	return e.led.Append(ledger.Record{
		Group:      task.Group,
		Identifier: task.ID.Canonical,
		Display:    task.ID.Raw,
		Action:     task.Action,
		State:      state,
		Attempts:   attempts,
		ErrorKind:  kind,
		Detail:     detail,
		RunID:      e.cfg.RunID,
	})
}
