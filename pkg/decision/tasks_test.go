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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/fuzzfleet/decision/pkg/pool"
)

func TestBuildTasksLinux(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})
	p := testPool()
	p.Artifacts = map[string]pool.ArtifactSpec{
		"/corpus": {Type: "directory", URL: "project/fuzzing/corpus"},
	}

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	now := b.now().UTC()
	for i, gt := range tasks {
		task := gt.Task
		assert.Equal(t, "parent123", task.TaskGroupID)
		assert.Equal(t, []string{"parent123"}, task.Dependencies)
		assert.Equal(t, now, task.Created)
		assert.Equal(t, now.Add(12*time.Hour), task.Deadline)
		assert.Equal(t, now.Add(DefaultTaskExpiry), task.Expires)
		assert.True(t, task.Deadline.Before(task.Expires))
		assert.Equal(t,
			"Fuzzing task linux-pool1 - "+[]string{"1/3", "2/3", "3/3"}[i],
			task.Metadata.Name)
		assert.Equal(t, "linux-pool1", task.WorkerType)
		assert.Equal(t, "pool1", task.Payload.Env["TASKCLUSTER_FUZZING_POOL"])
		assert.NotContains(t, task.Payload.Env, "TASKCLUSTER_FUZZING_PREPROCESS")
		assert.Equal(t, []string{"fuzz", "--forever"}, task.Payload.Command)
		assert.Equal(t, int64(12*3600), task.Payload.MaxRunTime)
		assert.Contains(t, task.Scopes, "scope-a")
		assert.Contains(t, task.Scopes, "secrets:get:project/fuzzing/decision")
		assert.IsIncreasing(t, task.Scopes)

		// declared artifact plus the mandatory logs, expiring with the task
		entries := task.Payload.Artifacts.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "project/fuzzing/corpus", entries[0].Name)
		assert.Equal(t, "/corpus", entries[0].Path)
		assert.Equal(t, "project/fuzzing/private/logs", entries[1].Name)
		assert.Equal(t, "/logs/", entries[1].Path)
		for _, e := range entries {
			assert.Equal(t, task.Expires, e.Expires)
		}
	}

	// fresh ids per task
	assert.Equal(t, "task-1", tasks[0].TaskID)
	assert.Equal(t, "task-2", tasks[1].TaskID)
	assert.Equal(t, "task-3", tasks[2].TaskID)
}

func TestBuildTasksLinuxPayloadShape(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})

	tasks, err := b.BuildTasks(testPool(), "parent123", nil)
	require.NoError(t, err)

	data, err := json.Marshal(tasks[0].Task.Payload)
	require.NoError(t, err)
	var decoded struct {
		Image     string                     `json:"image"`
		Artifacts map[string]json.RawMessage `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	// docker image references serialize as a bare string
	assert.Equal(t, "mozillasecurity/fuzzer:latest", decoded.Image)
	// linux artifacts are keyed by remote name
	assert.Contains(t, decoded.Artifacts, "project/fuzzing/private/logs")
}

func TestBuildTasksRunTimeBeyondExpiry(t *testing.T) {
	b, _, _ := testBuilder(t, Options{TaskExpiry: time.Hour})

	_, err := b.BuildTasks(testPool(), "parent123", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the task expiry window")
}

func TestBuildTasksEnvOverlap(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})

	_, err := b.BuildTasks(testPool(), "parent123",
		map[string]string{"TASKCLUSTER_FUZZING_POOL": "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved key")
}

func preprocessFixture(t *testing.T) *pool.PoolConfiguration {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pre.yml"), []byte(`
name: pre pool
cloud: gcp
platform: linux
cpu: x64
cores_per_task: 2
minimum_memory_per_core: 1g
metal: false
disk_size: 40g
imageset: generic-worker-A
container: "mozillasecurity/fuzzer:latest"
command: [fuzz]
tasks: 2
max_run_time: 12h
cycle_time: 12h
preprocess:
  command: [corpus-download]
`), 0644))
	p, err := pool.NewLoader(dir, tally.NoopScope).LoadPool("pre")
	require.NoError(t, err)
	return p
}

func TestBuildTasksPreprocess(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})
	p := preprocessFixture(t)

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	pre := tasks[0].Task
	assert.Equal(t, "Fuzzing task linux-pre - preprocess", pre.Metadata.Name)
	assert.Equal(t, "1", pre.Payload.Env["TASKCLUSTER_FUZZING_PREPROCESS"])
	assert.Equal(t, []string{"corpus-download"}, pre.Payload.Command)
	assert.Equal(t, []string{"parent123"}, pre.Dependencies)

	// every work task waits for the preprocess stage
	for _, gt := range tasks[1:] {
		assert.Equal(t, []string{"parent123", tasks[0].TaskID},
			gt.Task.Dependencies)
		assert.NotContains(t, gt.Task.Payload.Env, "TASKCLUSTER_FUZZING_PREPROCESS")
	}
}

func windowsPool() *pool.PoolConfiguration {
	p := testPool()
	p.Platform = pool.PlatformWindows
	p.Container = &pool.Container{
		Type:      pool.ContainerIndexedImage,
		Namespace: "project.fuzzing.orion.fuzzer.master",
		Path:      "public/fuzzer.tar.zst",
	}
	return p
}

func TestBuildTasksWindows(t *testing.T) {
	b, _, index := testBuilder(t, Options{})
	index.tasks["project.fuzzing.orion.fuzzer.master"] = "imgTask1"
	p := windowsPool()

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	task := tasks[0].Task

	assert.Nil(t, task.Payload.Image)
	require.Len(t, task.Payload.Mounts, 1)
	mount := task.Payload.Mounts[0]
	assert.Equal(t, "imgTask1", mount.Content.TaskID)
	assert.Equal(t, "public/fuzzer.tar.zst", mount.Content.Artifact)
	assert.Equal(t, "tar.zst", mount.Format)

	// env goes in as set lines ahead of the launcher invocation
	assert.Equal(t, []string{
		"set TASKCLUSTER_FUZZING_POOL=pool1",
		"set TASKCLUSTER_SECRET=project/fuzzing/decision",
		"fuzz --forever",
	}, task.Payload.Command)

	// non-docker workers get the ordered artifact form with a relative
	// log path
	entries := task.Payload.Artifacts.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "logs", entries[0].Path)
	data, err := json.Marshal(task.Payload.Artifacts)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])

	assert.Empty(t, task.Payload.OSGroups)
	assert.NotContains(t, task.Payload.Features, "runAsAdministrator")
}

func TestBuildTasksWindowsAdmin(t *testing.T) {
	b, _, index := testBuilder(t, Options{})
	index.tasks["project.fuzzing.orion.fuzzer.master"] = "imgTask1"
	p := windowsPool()
	p.RunAsAdmin = true

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	task := tasks[0].Task

	assert.Equal(t, []string{"Administrators"}, task.Payload.OSGroups)
	assert.True(t, task.Payload.Features["runAsAdministrator"])
	assert.Contains(t, task.Scopes,
		"generic-worker:os-group:proj-fuzzing/windows-pool1/Administrators")
	assert.Contains(t, task.Scopes,
		"generic-worker:run-as-administrator:proj-fuzzing/windows-pool1")
}

func TestBuildTasksMountCache(t *testing.T) {
	b, _, index := testBuilder(t, Options{})
	index.tasks["project.fuzzing.orion.fuzzer.master"] = "imgTask1"

	_, err := b.BuildTasks(windowsPool(), "parent123", nil)
	require.NoError(t, err)
	_, err = b.BuildTasks(windowsPool(), "parent456", nil)
	require.NoError(t, err)

	// six tasks, one index round trip
	assert.Equal(t, 1, index.lookups)
}

func TestBuildTasksMountUnresolved(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})

	_, err := b.BuildTasks(windowsPool(), "parent123", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving namespace")
}

func TestBuildTasksTaskArtifactMount(t *testing.T) {
	b, _, index := testBuilder(t, Options{})
	p := windowsPool()
	p.Container = &pool.Container{
		Type:   pool.ContainerTaskArtifact,
		TaskID: "upstream1",
		Path:   "public/img.tar.bz2",
	}

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	mount := tasks[0].Task.Payload.Mounts[0]
	assert.Equal(t, "upstream1", mount.Content.TaskID)
	assert.Equal(t, "tar.bz2", mount.Format)
	assert.Zero(t, index.lookups)
}

func TestBuildTasksMac(t *testing.T) {
	b, _, index := testBuilder(t, Options{})
	index.tasks["project.fuzzing.orion.fuzzer.master"] = "imgTask1"
	p := windowsPool()
	p.Platform = pool.PlatformMacOSX
	p.RunAsAdmin = false

	tasks, err := b.BuildTasks(p, "parent123", nil)
	require.NoError(t, err)
	task := tasks[0].Task

	require.Len(t, task.Payload.Mounts, 1)
	require.Len(t, task.Payload.Command, 4)
	assert.Equal(t, []string{"/bin/bash", "-c", "-l"}, task.Payload.Command[:3])
	script := task.Payload.Command[3]
	assert.Contains(t, script, `export TASKCLUSTER_FUZZING_POOL="pool1"`)
	assert.Contains(t, script, "fuzz --forever")
}

func TestBuildMapTasks(t *testing.T) {
	b, _, _ := testBuilder(t, Options{})
	m := mapFixture(t)

	tasks, err := b.BuildMapTasks(m, "parent123", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0].Task

	// named after the target, scheduled on the map's workers
	assert.Equal(t, "Fuzzing task linux-target - 1/1", task.Metadata.Name)
	assert.Equal(t, "linux-weekly", task.WorkerType)
	assert.Equal(t, "target", task.Payload.Env["TASKCLUSTER_FUZZING_POOL"])

	// map work tasks only upload logs
	entries := task.Payload.Artifacts.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "project/fuzzing/private/logs", entries[0].Name)
}

func TestMountFormat(t *testing.T) {
	assert.Equal(t, "tar.zst", mountFormat("public/img.tar.zst"))
	assert.Equal(t, "zip", mountFormat("public/img.zip"))
	assert.Equal(t, "", mountFormat("public/img.raw"))
}
