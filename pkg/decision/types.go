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
	"encoding/json"
	"time"
)

// Task is one emitted task descriptor, ready for submission to the
// queue. Instances are built fresh per invocation and never mutated
// after emission.
type Task struct {
	TaskGroupID   string            `json:"taskGroupId"`
	Dependencies  []string          `json:"dependencies"`
	Created       time.Time         `json:"created"`
	Deadline      time.Time         `json:"deadline"`
	Expires       time.Time         `json:"expires"`
	Extra         map[string]string `json:"extra"`
	Metadata      Metadata          `json:"metadata"`
	Payload       Payload           `json:"payload"`
	Priority      string            `json:"priority"`
	ProvisionerID string            `json:"provisionerId"`
	WorkerType    string            `json:"workerType"`
	Retries       int               `json:"retries"`
	Routes        []string          `json:"routes"`
	SchedulerID   string            `json:"schedulerId"`
	Scopes        []string          `json:"scopes"`
	Tags          map[string]string `json:"tags"`
}

// DecisionTask is the task template embedded in a scheduled hook. Its
// timestamps are relative since the hook instantiates it on every fire.
type DecisionTask struct {
	Created       FromNow           `json:"created"`
	Deadline      FromNow           `json:"deadline"`
	Expires       FromNow           `json:"expires"`
	Extra         map[string]string `json:"extra"`
	Metadata      Metadata          `json:"metadata"`
	Payload       Payload           `json:"payload"`
	Priority      string            `json:"priority"`
	ProvisionerID string            `json:"provisionerId"`
	WorkerType    string            `json:"workerType"`
	Retries       int               `json:"retries"`
	Routes        []string          `json:"routes"`
	SchedulerID   string            `json:"schedulerId"`
	Scopes        []string          `json:"scopes"`
	Tags          map[string]string `json:"tags"`
}

// FromNow is a relative timestamp rendered by the scheduling service.
type FromNow struct {
	Offset string `json:"$fromNow"`
}

// Metadata describes a task to humans.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Source      string `json:"source"`
}

// Payload is the worker-facing half of a task.
type Payload struct {
	Artifacts    *Artifacts        `json:"artifacts,omitempty"`
	Cache        map[string]string `json:"cache"`
	Capabilities *Capabilities     `json:"capabilities,omitempty"`
	Command      []string          `json:"command,omitempty"`
	Env          map[string]string `json:"env"`
	Features     map[string]bool   `json:"features"`
	Image        *Image            `json:"image,omitempty"`
	Mounts       []Mount           `json:"mounts,omitempty"`
	OSGroups     []string          `json:"osGroups,omitempty"`
	MaxRunTime   int64             `json:"maxRunTime"`
}

// Image is a task's execution image. The scalar form is a plain docker
// reference, the structured forms name an indexed or task artifact.
type Image struct {
	Ref       string
	Type      string
	Namespace string
	Path      string
	TaskID    string
}

// MarshalJSON renders the scalar form as a bare string.
func (i *Image) MarshalJSON() ([]byte, error) {
	if i.Ref != "" {
		return json.Marshal(i.Ref)
	}
	type structured struct {
		Type      string `json:"type"`
		Namespace string `json:"namespace,omitempty"`
		Path      string `json:"path,omitempty"`
		TaskID    string `json:"taskId,omitempty"`
	}
	return json.Marshal(structured{
		Type:      i.Type,
		Namespace: i.Namespace,
		Path:      i.Path,
		TaskID:    i.TaskID,
	})
}

// Capabilities are the device and privilege grants derived from a
// task's scopes.
type Capabilities struct {
	Privileged bool            `json:"privileged,omitempty"`
	Devices    map[string]bool `json:"devices,omitempty"`
}

// Mount attaches remote content into a worker's task directory.
type Mount struct {
	Content   MountContent `json:"content"`
	Directory string       `json:"directory,omitempty"`
	Format    string       `json:"format,omitempty"`
}

// MountContent names what gets mounted.
type MountContent struct {
	TaskID   string `json:"taskId,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ArtifactEntry is one artifact a task uploads: a path inside the task
// published under a remote name until it expires.
type ArtifactEntry struct {
	Name    string
	Path    string
	Type    string
	Expires time.Time
}

// Artifacts is a task's artifact set. Linux workers take a map keyed by
// remote name; other workers require an ordered sequence of named
// entries, so both serialized shapes are supported.
type Artifacts struct {
	entries []ArtifactEntry
	asList  bool
}

// NewArtifacts builds a keyed artifact set.
func NewArtifacts(entries []ArtifactEntry) *Artifacts {
	return &Artifacts{entries: entries}
}

// NewArtifactList builds an ordered artifact sequence.
func NewArtifactList(entries []ArtifactEntry) *Artifacts {
	return &Artifacts{entries: entries, asList: true}
}

// Entries returns the artifact entries in emission order.
func (a *Artifacts) Entries() []ArtifactEntry {
	return a.entries
}

// MarshalJSON implements json.Marshaler
func (a *Artifacts) MarshalJSON() ([]byte, error) {
	type body struct {
		Path    string    `json:"path"`
		Type    string    `json:"type"`
		Expires time.Time `json:"expires"`
	}
	if a.asList {
		type named struct {
			Name    string    `json:"name"`
			Path    string    `json:"path"`
			Type    string    `json:"type"`
			Expires time.Time `json:"expires"`
		}
		list := make([]named, 0, len(a.entries))
		for _, e := range a.entries {
			list = append(list, named{
				Name:    e.Name,
				Path:    e.Path,
				Type:    e.Type,
				Expires: e.Expires,
			})
		}
		return json.Marshal(list)
	}
	keyed := make(map[string]body, len(a.entries))
	for _, e := range a.entries {
		keyed[e.Name] = body{Path: e.Path, Type: e.Type, Expires: e.Expires}
	}
	return json.Marshal(keyed)
}

// WorkerPool is the infrastructure descriptor for one pool of workers.
type WorkerPool struct {
	WorkerPoolID string           `json:"workerPoolId"`
	ProviderID   string           `json:"providerId"`
	Description  string           `json:"description"`
	Owner        string           `json:"owner"`
	EmailOnError bool             `json:"emailOnError"`
	Config       WorkerPoolConfig `json:"config"`
}

// WorkerPoolConfig sizes a worker pool and lists its launch configs.
type WorkerPoolConfig struct {
	MinCapacity   int            `json:"minCapacity"`
	MaxCapacity   int            `json:"maxCapacity"`
	LaunchConfigs []LaunchConfig `json:"launchConfigs"`
	Lifecycle     *Lifecycle     `json:"lifecycle,omitempty"`
}

// Lifecycle bounds how long workers may take to (re)register before
// being treated as broken. Values are seconds.
type Lifecycle struct {
	RegistrationTimeout   int64 `json:"registrationTimeout"`
	ReregistrationTimeout int64 `json:"reregistrationTimeout"`
}

// LaunchConfig is one provider-native launch configuration. Its
// contents are owned by the cloud provider collaborator and opaque to
// the decision engine.
type LaunchConfig map[string]interface{}

// Hook is a scheduled trigger creating one decision task per firing.
type Hook struct {
	HookGroupID   string                 `json:"hookGroupId"`
	HookID        string                 `json:"hookId"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Owner         string                 `json:"owner"`
	EmailOnError  bool                   `json:"emailOnError"`
	Schedule      []string               `json:"schedule"`
	Task          DecisionTask           `json:"task"`
	Bindings      []string               `json:"bindings"`
	TriggerSchema map[string]interface{} `json:"triggerSchema"`
}

// Role grants the hook's own scopes back to the tasks it creates.
type Role struct {
	RoleID      string   `json:"roleId"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
}
