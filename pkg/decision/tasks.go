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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fuzzfleet/decision/pkg/common"
	"github.com/fuzzfleet/decision/pkg/pool"
)

// GeneratedTask pairs a fresh task id with its descriptor. Ids are
// generated per build invocation, so resubmitting a graph never
// collides with a prior cycle.
type GeneratedTask struct {
	TaskID string
	Task   *Task
}

// BuildTasks produces the full work-task graph for one pool, rooted at
// the given parent (decision) task id. When the pool declares a
// preprocess stage it is emitted first and every work task depends on
// it.
func (b *Builder) BuildTasks(
	p *pool.PoolConfiguration,
	parentTaskID string,
	env map[string]string) ([]GeneratedTask, error) {
	now := b.now().UTC()
	expires := now.Add(b.opts.TaskExpiry)
	deps := []string{parentTaskID}

	var out []GeneratedTask

	pre, err := p.CreatePreprocess()
	if err != nil {
		b.metrics.BuildTasksFail.Inc(1)
		return nil, err
	}
	if pre != nil {
		spec := taskSpec{
			config:     pre,
			poolID:     p.PoolID,
			nameID:     p.WorkerType(),
			workerType: p.WorkerType(),
			suffix:     "preprocess",
			preprocess: true,
			declared:   true,
		}
		task, err := b.workTask(spec, parentTaskID, deps, now, expires, env)
		if err != nil {
			b.metrics.BuildTasksFail.Inc(1)
			return nil, err
		}
		preID := b.newTaskID()
		out = append(out, GeneratedTask{TaskID: preID, Task: task})
		deps = append(deps, preID)
	}

	for i := 1; i <= p.Tasks; i++ {
		spec := taskSpec{
			config:     p,
			poolID:     p.PoolID,
			nameID:     p.WorkerType(),
			workerType: p.WorkerType(),
			suffix:     fmt.Sprintf("%d/%d", i, p.Tasks),
			declared:   true,
		}
		task, err := b.workTask(spec, parentTaskID, deps, now, expires, env)
		if err != nil {
			b.metrics.BuildTasksFail.Inc(1)
			return nil, err
		}
		out = append(out, GeneratedTask{TaskID: b.newTaskID(), Task: task})
	}

	b.metrics.TasksBuilt.Inc(int64(len(out)))
	log.WithFields(log.Fields{
		"pool":  p.PoolID,
		"tasks": len(out),
	}).Info("built task graph")
	return out, nil
}

// BuildMapTasks produces one flat task sequence across all target
// pools of a map, all running on the map's shared worker type.
func (b *Builder) BuildMapTasks(
	m *pool.PoolConfigMap,
	parentTaskID string,
	env map[string]string) ([]GeneratedTask, error) {
	now := b.now().UTC()
	expires := now.Add(b.opts.TaskExpiry)
	deps := []string{parentTaskID}

	var out []GeneratedTask
	it := m.IterPools()
	for {
		p, err := it.Next()
		if err != nil {
			b.metrics.BuildTasksFail.Inc(1)
			return nil, err
		}
		if p == nil {
			break
		}
		for i := 1; i <= p.Tasks; i++ {
			spec := taskSpec{
				config:     p,
				poolID:     p.PoolID,
				nameID:     p.WorkerType(),
				workerType: m.WorkerType(),
				suffix:     fmt.Sprintf("%d/%d", i, p.Tasks),
			}
			task, err := b.workTask(spec, parentTaskID, deps, now, expires, env)
			if err != nil {
				b.metrics.BuildTasksFail.Inc(1)
				return nil, err
			}
			out = append(out, GeneratedTask{TaskID: b.newTaskID(), Task: task})
		}
	}

	b.metrics.TasksBuilt.Inc(int64(len(out)))
	log.WithFields(log.Fields{
		"map":   m.PoolID,
		"tasks": len(out),
	}).Info("built task graph")
	return out, nil
}

// taskSpec carries the per-task inputs of workTask. nameID and
// workerType differ for map targets, which run on the map's workers
// under their own pool's name.
type taskSpec struct {
	config     *pool.PoolConfiguration
	poolID     string
	nameID     string
	workerType string
	suffix     string
	preprocess bool
	// declared controls whether the pool's own artifacts are attached
	// next to the mandatory log artifact.
	declared bool
}

func (b *Builder) workTask(
	spec taskSpec,
	groupID string,
	deps []string,
	now time.Time,
	expires time.Time,
	env map[string]string) (*Task, error) {
	cfg := spec.config

	deadline := now.Add(cfg.MaxRunTime)
	if deadline.After(expires) {
		return nil, errors.Errorf(
			"pool %s: max_run_time %s exceeds the task expiry window",
			spec.poolID, cfg.MaxRunTime)
	}

	taskEnv := map[string]string{
		"TASKCLUSTER_FUZZING_POOL": spec.poolID,
		"TASKCLUSTER_SECRET":       common.DecisionSecret,
	}
	if spec.preprocess {
		taskEnv["TASKCLUSTER_FUZZING_PREPROCESS"] = "1"
	}
	if err := mergeEnv(taskEnv, env); err != nil {
		return nil, errors.Wrapf(err, "pool %s", spec.poolID)
	}

	scopes := append([]string(nil), cfg.Scopes...)
	scopes = append(scopes, fmt.Sprintf("secrets:get:%s", common.DecisionSecret))

	payload := Payload{
		Cache:      map[string]string{},
		Env:        taskEnv,
		Features:   map[string]bool{"taskclusterProxy": true},
		MaxRunTime: int64(cfg.MaxRunTime / time.Second),
	}

	switch cfg.Platform {
	case pool.PlatformWindows:
		mount, err := b.resolveMount(spec.poolID, cfg.Container)
		if err != nil {
			return nil, err
		}
		payload.Mounts = []Mount{*mount}
		payload.Command = windowsCommand(taskEnv, cfg.Command)
		payload.Artifacts = NewArtifactList(
			artifactEntries(cfg, expires, spec.declared))
		if cfg.RunAsAdmin {
			payload.OSGroups = []string{"Administrators"}
			payload.Features["runAsAdministrator"] = true
			scopes = append(scopes,
				fmt.Sprintf("generic-worker:os-group:%s/%s/Administrators",
					common.ProvisionerID, spec.workerType),
				fmt.Sprintf("generic-worker:run-as-administrator:%s/%s",
					common.ProvisionerID, spec.workerType))
		}
	case pool.PlatformMacOSX:
		mount, err := b.resolveMount(spec.poolID, cfg.Container)
		if err != nil {
			return nil, err
		}
		payload.Mounts = []Mount{*mount}
		payload.Command = macCommand(taskEnv, cfg.Command)
		payload.Artifacts = NewArtifactList(
			artifactEntries(cfg, expires, spec.declared))
	default:
		payload.Image = &Image{Ref: cfg.Container.Image}
		payload.Command = append([]string(nil), cfg.Command...)
		payload.Artifacts = NewArtifacts(
			artifactEntries(cfg, expires, spec.declared))
	}

	scopes = unionSorted(scopes)
	payload.Capabilities = capabilitiesForScopes(scopes)

	return &Task{
		TaskGroupID:  groupID,
		Dependencies: append([]string(nil), deps...),
		Created:      now,
		Deadline:     deadline,
		Expires:      expires,
		Extra:        map[string]string{},
		Metadata: Metadata{
			Name:        fmt.Sprintf("Fuzzing task %s - %s", spec.nameID, spec.suffix),
			Description: common.Description,
			Owner:       common.OwnerEmail,
			Source:      common.SourceURL,
		},
		Payload:       payload,
		Priority:      "high",
		ProvisionerID: common.ProvisionerID,
		WorkerType:    spec.workerType,
		Retries:       5,
		Routes:        []string{},
		SchedulerID:   common.SchedulerID,
		Scopes:        scopes,
		Tags:          map[string]string{},
	}, nil
}

// artifactEntries collects the pool's declared artifacts plus the
// mandatory log directory, all expiring with the task. Entries are
// sorted by remote name so emitted payloads compare stable.
func artifactEntries(
	cfg *pool.PoolConfiguration, expires time.Time, declared bool) []ArtifactEntry {
	logPath := "/logs/"
	if cfg.Platform == pool.PlatformWindows {
		logPath = "logs"
	}
	entries := []ArtifactEntry{{
		Name:    common.LogsArtifact,
		Path:    logPath,
		Type:    "directory",
		Expires: expires,
	}}
	if declared {
		for local, spec := range cfg.Artifacts {
			entries = append(entries, ArtifactEntry{
				Name:    spec.URL,
				Path:    local,
				Type:    spec.Type,
				Expires: expires,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// resolveMount translates a structured container descriptor into a
// worker content-mount. Index namespaces resolve once per builder.
func (b *Builder) resolveMount(poolID string, c *pool.Container) (*Mount, error) {
	switch c.Type {
	case pool.ContainerIndexedImage:
		taskID, ok := b.mountCache[c.Namespace]
		if !ok {
			var err error
			taskID, err = b.index.FindTask(c.Namespace)
			if err != nil {
				return nil, errors.Wrapf(err,
					"pool %s: resolving namespace %s", poolID, c.Namespace)
			}
			b.mountCache[c.Namespace] = taskID
		}
		return &Mount{
			Content:   MountContent{TaskID: taskID, Artifact: c.Path},
			Directory: ".",
			Format:    mountFormat(c.Path),
		}, nil
	case pool.ContainerTaskArtifact:
		return &Mount{
			Content:   MountContent{TaskID: c.TaskID, Artifact: c.Path},
			Directory: ".",
			Format:    mountFormat(c.Path),
		}, nil
	default:
		return nil, errors.Errorf(
			"pool %s: container type %q cannot be mounted", poolID, c.Type)
	}
}

var mountFormats = []string{"tar.zst", "tar.bz2", "tar.gz", "zip"}

func mountFormat(path string) string {
	for _, f := range mountFormats {
		if strings.HasSuffix(path, "."+f) {
			return f
		}
	}
	return ""
}

// windowsCommand sets the environment line by line before invoking the
// fuzzing launcher.
func windowsCommand(env map[string]string, command []string) []string {
	lines := make([]string, 0, len(env)+1)
	for _, k := range sortedKeys(env) {
		lines = append(lines, fmt.Sprintf("set %s=%s", k, env[k]))
	}
	return append(lines, joinCommand(command))
}

// macCommand wraps the launcher invocation in a login shell so worker
// profile setup applies.
func macCommand(env map[string]string, command []string) []string {
	lines := make([]string, 0, len(env)+1)
	for _, k := range sortedKeys(env) {
		lines = append(lines, fmt.Sprintf("export %s=%q", k, env[k]))
	}
	lines = append(lines, joinCommand(command))
	return []string{"/bin/bash", "-c", "-l", strings.Join(lines, "\n")}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
