// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan turns a member set into an ordered list of mutation tasks,
// consulting the ledger so that rerunning a batch after a crash or abort
// never re-emits work that already reached a terminal state.
package plan

import (
	"github.com/groupline/rosterctl/pkg/identity"
	"github.com/groupline/rosterctl/pkg/ledger"
)

// Task is one planned mutation against one target.
type Task struct {
	Group  string
	ID     identity.MemberIdentifier
	Action ledger.Action

	// SkipReason is non-empty for tasks the planner already decided not to
	// execute (whitelisted targets). The executor records them as skipped
	// without calling the bridge.
	SkipReason string
}

// Key returns the ledger identity of the task.
func (t Task) Key() ledger.Key {
	return ledger.Key{Group: t.Group, Identifier: t.ID.Canonical, Action: t.Action}
}

// Plan is an ordered batch of tasks for one group and action.
type Plan struct {
	Group  string
	Action ledger.Action
	Tasks  []Task

	// AlreadyDone counts members dropped because the ledger holds a
	// terminal record for their key.
	AlreadyDone int
}

// Runnable counts tasks that will actually reach the bridge.
func (p *Plan) Runnable() int {
	n := 0
	for _, t := range p.Tasks {
		if t.SkipReason == "" {
			n++
		}
	}
	return n
}

// Build plans a batch over members in their given order. led may be nil for
// a fresh run with no ledger history. Members whose key already has a
// terminal ledger record are dropped; whitelisted members stay in the plan
// as skip tasks so the ledger ends up accounting for them too.
func Build(group string, action ledger.Action, members []identity.MemberIdentifier, led *ledger.Ledger, wl *Whitelist) *Plan {
	p := &Plan{Group: group, Action: action}

	seen := make(map[string]bool, len(members))
	for _, id := range members {
		if seen[id.Canonical] {
			continue
		}
		seen[id.Canonical] = true

		key := ledger.Key{Group: group, Identifier: id.Canonical, Action: action}
		if led != nil {
			if rec, ok := led.Lookup(key); ok && rec.State.Terminal() {
				p.AlreadyDone++
				continue
			}
		}

		task := Task{Group: group, ID: id, Action: action}
		if wl.Contains(id) {
			task.SkipReason = "whitelisted"
		}
		p.Tasks = append(p.Tasks, task)
	}
	return p
}
