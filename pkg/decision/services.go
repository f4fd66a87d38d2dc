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

import "time"

// Queue is the task-execution service surface the decision engine
// needs. Implementations may retry internally; the engine treats every
// call as succeeding or failing once.
type Queue interface {
	// CreateTask submits one generated task under the given id.
	CreateTask(taskID string, task *Task) error
	// CancelTask cancels an in-flight task.
	CancelTask(taskID string) error
	// ListTaskGroup returns one page of a task group. An unknown group
	// id maps to ErrNoSuchTaskGroup.
	ListTaskGroup(groupID string, continuation string) (*TaskGroupPage, error)
}

// Hooks lists the firing history of scheduled hooks. An unknown hook
// maps to ErrNoSuchHook.
type Hooks interface {
	ListLastFires(hookGroupID string, hookID string) ([]HookFire, error)
}

// Index resolves an index namespace to the task id that most recently
// published under it.
type Index interface {
	FindTask(namespace string) (string, error)
}

// CloudProvider turns a machine shape selection into provider-native
// launch configurations, one per shape and zone combination the
// provider chooses to offer.
type CloudProvider interface {
	BuildLaunchConfigs(
		imageset string,
		machines []string,
		diskSize int64,
		platform string) ([]LaunchConfig, error)
}

// HookFire is one historic firing of a scheduled hook.
type HookFire struct {
	TaskID         string
	Result         string
	FiredBy        string
	TaskCreateTime time.Time
}

// FiredBySchedule is the FiredBy value of a cron-triggered firing.
const FiredBySchedule = "schedule"

// TaskGroupPage is one page of a task group listing.
type TaskGroupPage struct {
	Tasks             []TaskGroupMember
	ContinuationToken string
}

// TaskGroupMember is one task in a listed group.
type TaskGroupMember struct {
	Status TaskStatus
}

// TaskStatus is the scheduling state of a listed task.
type TaskStatus struct {
	TaskID string
	Runs   []TaskRun
}

// TaskRun is one run of a task. State is one of pending, running,
// completed, failed or exception.
type TaskRun struct {
	State string
}
