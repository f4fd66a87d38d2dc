// Copyright (c) 2026 The Fuzzfleet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package decision

import (
	stderrors "errors"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/fuzzfleet/decision/pkg/common"
)

// DefaultSweepWindow bounds how far back hook firings are considered.
// Firings older than this are ignored entirely, not cancelled.
const DefaultSweepWindow = 14 * 24 * time.Hour

// Sweeper finds and cancels superseded in-flight tasks from prior
// scheduling cycles of one worker type.
type Sweeper struct {
	queue   Queue
	hooks   Hooks
	window  time.Duration
	metrics *Metrics
	now     func() time.Time
}

// NewSweeper returns a sweeper over the given queue and hooks services.
// A zero window falls back to DefaultSweepWindow.
func NewSweeper(
	queue Queue, hooks Hooks, window time.Duration, scope tally.Scope) *Sweeper {
	if window == 0 {
		window = DefaultSweepWindow
	}
	return &Sweeper{
		queue:   queue,
		hooks:   hooks,
		window:  window,
		metrics: NewMetrics(scope),
		now:     time.Now,
	}
}

type sweepCandidate struct {
	taskID string
	active bool
}

// Sweep cancels every pending or running task created by prior firings
// of the worker type's hook, excluding the currently executing decision
// task. When that task itself resulted from a scheduled firing, the
// whole sweep is skipped so prior work keeps running until it finishes
// on its own. Returns the number of tasks cancelled.
func (s *Sweeper) Sweep(workerType string, selfTaskID string) (int, error) {
	candidates, abort, err := s.discover(workerType, selfTaskID)
	if err != nil {
		return 0, err
	}
	if abort {
		s.metrics.SweepAborted.Inc(1)
		log.WithFields(log.Fields{
			"workerType": workerType,
			"task":       selfTaskID,
		}).Info("decision task is scheduled, not cancelling tasks")
		return 0, nil
	}

	var toCancel []string
	for _, c := range candidates {
		if c.active {
			toCancel = append(toCancel, c.taskID)
		}
	}
	log.WithFields(log.Fields{
		"workerType": workerType,
		"candidates": len(candidates),
		"cancelling": len(toCancel),
	}).Info("sweeping superseded tasks")

	cancelled := 0
	for _, taskID := range toCancel {
		log.WithField("task", taskID).Warn("cancelling superseded task")
		if err := s.queue.CancelTask(taskID); err != nil {
			// best effort, the rest of the sweep still proceeds
			s.metrics.CancelFail.Inc(1)
			log.WithError(err).WithField("task", taskID).
				Error("failed to cancel task")
			continue
		}
		cancelled++
	}
	s.metrics.TasksCancelled.Inc(int64(cancelled))
	return cancelled, nil
}

// discover walks the hook's recent successful firings, newest first,
// and expands each one's task group. abort is set when the self task is
// found among candidates of a scheduled firing.
func (s *Sweeper) discover(
	workerType string, selfTaskID string) ([]sweepCandidate, bool, error) {
	fires, err := s.hooks.ListLastFires(common.HookPrefix, workerType)
	if err != nil {
		if stderrors.Is(err, ErrNoSuchHook) {
			log.WithField("workerType", workerType).
				Info("no hook for worker type, nothing to sweep")
			return nil, false, nil
		}
		return nil, false, err
	}

	sort.Slice(fires, func(i, j int) bool {
		return fires[i].TaskCreateTime.After(fires[j].TaskCreateTime)
	})

	cutoff := s.now().UTC().Add(-s.window)

	var candidates []sweepCandidate
	for _, fire := range fires {
		if fire.Result != "success" {
			continue
		}
		if fire.TaskCreateTime.Before(cutoff) {
			continue
		}

		continuation := ""
		for {
			page, err := s.queue.ListTaskGroup(fire.TaskID, continuation)
			if err != nil {
				if stderrors.Is(err, ErrNoSuchTaskGroup) {
					// the group already expired, treat it as empty
					break
				}
				return nil, false, err
			}
			for _, member := range page.Tasks {
				s.metrics.TasksDiscovered.Inc(1)
				if member.Status.TaskID == selfTaskID {
					if fire.FiredBy == FiredBySchedule {
						return nil, true, nil
					}
					continue
				}
				candidates = append(candidates, sweepCandidate{
					taskID: member.Status.TaskID,
					active: hasActiveRun(member.Status.Runs),
				})
			}
			if page.ContinuationToken == "" {
				break
			}
			continuation = page.ContinuationToken
		}
	}
	return candidates, false, nil
}

func hasActiveRun(runs []TaskRun) bool {
	for _, run := range runs {
		if run.State == "pending" || run.State == "running" {
			return true
		}
	}
	return false
}
