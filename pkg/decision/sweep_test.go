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
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
)

var sweepNow = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

// fakeQueue serves pre-built task group pages and records cancels.
type fakeQueue struct {
	pages     map[string][]*TaskGroupPage
	listed    []string
	cancelled []string
	cancelErr map[string]error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		pages:     map[string][]*TaskGroupPage{},
		cancelErr: map[string]error{},
	}
}

func (q *fakeQueue) CreateTask(taskID string, task *Task) error { return nil }

func (q *fakeQueue) CancelTask(taskID string) error {
	if err, ok := q.cancelErr[taskID]; ok {
		return err
	}
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) ListTaskGroup(
	groupID string, continuation string) (*TaskGroupPage, error) {
	q.listed = append(q.listed, groupID)
	pages, ok := q.pages[groupID]
	if !ok {
		return nil, errors.Wrap(ErrNoSuchTaskGroup, groupID)
	}
	idx := 0
	if continuation != "" {
		idx, _ = strconv.Atoi(continuation)
	}
	page := pages[idx]
	if idx+1 < len(pages) {
		page.ContinuationToken = strconv.Itoa(idx + 1)
	}
	return page, nil
}

// addGroup registers one group split into pages of at most two members.
func (q *fakeQueue) addGroup(groupID string, members ...TaskGroupMember) {
	for len(members) > 2 {
		q.pages[groupID] = append(q.pages[groupID],
			&TaskGroupPage{Tasks: members[:2]})
		members = members[2:]
	}
	q.pages[groupID] = append(q.pages[groupID], &TaskGroupPage{Tasks: members})
}

type fakeHooks struct {
	fires []HookFire
	err   error
}

func (h *fakeHooks) ListLastFires(
	hookGroupID string, hookID string) ([]HookFire, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.fires, nil
}

func member(taskID string, states ...string) TaskGroupMember {
	runs := make([]TaskRun, 0, len(states))
	for _, s := range states {
		runs = append(runs, TaskRun{State: s})
	}
	return TaskGroupMember{Status: TaskStatus{TaskID: taskID, Runs: runs}}
}

func fire(taskID, result, firedBy string, age time.Duration) HookFire {
	return HookFire{
		TaskID:         taskID,
		Result:         result,
		FiredBy:        firedBy,
		TaskCreateTime: sweepNow.Add(-age),
	}
}

func testSweeper(q Queue, h Hooks) *Sweeper {
	s := NewSweeper(q, h, 0, tally.NoopScope)
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestSweepCancelsActiveTasks(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1",
		member("t-running", "running"),
		member("t-pending", "pending"),
		member("t-done", "completed"),
		member("t-failed", "failed"))
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", "triggerHook", time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"t-running", "t-pending"}, q.cancelled)
}

func TestSweepScheduledSelfAborts(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1",
		member("t-old", "running"),
		member("self1", "running"))
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", FiredBySchedule, time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.cancelled)
}

func TestSweepManualSelfSkipsOnlyItself(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1",
		member("self1", "running"),
		member("t-old", "running"))
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", "triggerHook", time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t-old"}, q.cancelled)
}

func TestSweepIgnoresOldAndFailedFires(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("recent", member("t-recent", "running"))
	q.addGroup("ancient", member("t-ancient", "running"))
	q.addGroup("broken", member("t-broken", "running"))
	h := &fakeHooks{fires: []HookFire{
		fire("recent", "success", FiredBySchedule, time.Hour),
		fire("ancient", "success", FiredBySchedule, 15*24*time.Hour),
		fire("broken", "error", FiredBySchedule, time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t-recent"}, q.cancelled)
	// pruned fires never hit the queue at all
	assert.NotContains(t, q.listed, "ancient")
	assert.NotContains(t, q.listed, "broken")
}

func TestSweepPaginates(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1",
		member("t1", "running"),
		member("t2", "running"),
		member("t3", "running"),
		member("t4", "pending"),
		member("t5", "completed"))
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", "triggerHook", time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSweepNoHook(t *testing.T) {
	q := newFakeQueue()
	h := &fakeHooks{err: errors.Wrap(ErrNoSuchHook, "linux-pool1")}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepHooksFailure(t *testing.T) {
	q := newFakeQueue()
	h := &fakeHooks{err: errors.New("hooks service down")}

	_, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.Error(t, err)
}

func TestSweepExpiredGroupTolerated(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("alive", member("t-alive", "running"))
	h := &fakeHooks{fires: []HookFire{
		fire("alive", "success", FiredBySchedule, time.Hour),
		fire("expired", "success", FiredBySchedule, 2*time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepCancelFailureIsBestEffort(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1",
		member("t1", "running"),
		member("t2", "running"))
	q.cancelErr["t1"] = errors.New("task is past its deadline")
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", "triggerHook", time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t2"}, q.cancelled)
}

func TestSweepNoRuns(t *testing.T) {
	q := newFakeQueue()
	q.addGroup("group1", member("t-unscheduled"))
	h := &fakeHooks{fires: []HookFire{
		fire("group1", "success", "triggerHook", time.Hour),
	}}

	n, err := testSweeper(q, h).Sweep("linux-pool1", "self1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
