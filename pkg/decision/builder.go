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
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"

	"github.com/fuzzfleet/decision/pkg/common"
	"github.com/fuzzfleet/decision/pkg/machine"
	"github.com/fuzzfleet/decision/pkg/pool"
)

// Options are the tunables both builders share. Zero values fall back
// to the defaults below.
type Options struct {
	// TaskExpiry is how long emitted tasks and their artifacts live.
	TaskExpiry time.Duration
	// RegistrationTimeout is how long a fresh worker may take to
	// register before it is assumed broken.
	RegistrationTimeout time.Duration
	// ReregistrationTimeout is how long a worker may keep running
	// between credential renewals.
	ReregistrationTimeout time.Duration
}

// Builder defaults.
const (
	DefaultTaskExpiry            = 4 * 7 * 24 * time.Hour
	DefaultRegistrationTimeout   = 15 * time.Minute
	DefaultReregistrationTimeout = 4 * 24 * time.Hour

	decisionMaxRunTime = time.Hour
)

func (o Options) withDefaults() Options {
	if o.TaskExpiry == 0 {
		o.TaskExpiry = DefaultTaskExpiry
	}
	if o.RegistrationTimeout == 0 {
		o.RegistrationTimeout = DefaultRegistrationTimeout
	}
	if o.ReregistrationTimeout == 0 {
		o.ReregistrationTimeout = DefaultReregistrationTimeout
	}
	return o
}

// decisionImage is the image every generated decision task runs.
var decisionImage = Image{
	Type:      "indexed-image",
	Path:      "public/fuzzing-decision.tar.zst",
	Namespace: "project.fuzzing.decision.master",
}

// Builder derives infrastructure descriptors and task graphs from
// flattened pool configurations. A builder is good for one decision
// run; its mount resolution cache lives exactly that long.
type Builder struct {
	catalog   *machine.Catalog
	providers map[string]CloudProvider
	index     Index
	opts      Options
	metrics   *Metrics

	now       func() time.Time
	newTaskID func() string

	// namespace -> upstream task id, memoized per builder
	mountCache map[string]string
}

// NewBuilder returns a builder over the given machine catalog and
// collaborators. providers is keyed by cloud name.
func NewBuilder(
	catalog *machine.Catalog,
	providers map[string]CloudProvider,
	index Index,
	opts Options,
	scope tally.Scope) *Builder {
	return &Builder{
		catalog:    catalog,
		providers:  providers,
		index:      index,
		opts:       opts.withDefaults(),
		metrics:    NewMetrics(scope),
		now:        time.Now,
		newTaskID:  newSlugID,
		mountCache: map[string]string{},
	}
}

// newSlugID generates an opaque 22-character task token.
func newSlugID() string {
	return base64.RawURLEncoding.EncodeToString(uuid.NewRandom())
}

// BuildResources produces the worker pool, decision hook and role for a
// single pool. Extra env vars must not collide with the decision task's
// own; an overlap is a contract violation.
func (b *Builder) BuildResources(
	p *pool.PoolConfiguration,
	env map[string]string) (*WorkerPool, *Hook, *Role, error) {
	capacity := singlePoolCapacity(p)
	scopes := unionSorted(p.Scopes, decisionScopes(p.WorkerType(), true))
	res, err := b.buildResources(p, capacity, scopes, env)
	if err != nil {
		b.metrics.BuildResourcesFail.Inc(1)
		return nil, nil, nil, err
	}
	b.metrics.BuildResourcesSuccess.Inc(1)
	return res.pool, res.hook, res.role, nil
}

// BuildMapResources produces the shared worker pool, hook and role for
// a pool map. Sizing reduces over all target pools at once.
func (b *Builder) BuildMapResources(
	m *pool.PoolConfigMap,
	env map[string]string) (*WorkerPool, *Hook, *Role, error) {
	pools, err := m.Pools()
	if err != nil {
		b.metrics.BuildResourcesFail.Inc(1)
		return nil, nil, nil, err
	}

	totalTasks := 0
	var allScopes []string
	for _, p := range pools {
		totalTasks += p.Tasks
		allScopes = unionSorted(allScopes, p.Scopes)
	}
	capacity := totalTasks * 2
	if capacity < 3 {
		capacity = 3
	}

	scopes := unionSorted(allScopes, decisionScopes(m.WorkerType(), false))
	res, err := b.buildResources(m.PoolConfiguration, capacity, scopes, env)
	if err != nil {
		b.metrics.BuildResourcesFail.Inc(1)
		return nil, nil, nil, err
	}
	b.metrics.BuildResourcesSuccess.Inc(1)
	return res.pool, res.hook, res.role, nil
}

// singlePoolCapacity leaves enough headroom that a manually triggered
// extra cycle never blocks on capacity, doubled because the provider is
// slow to reuse idle workers.
func singlePoolCapacity(p *pool.PoolConfiguration) int {
	cycles := int(math.Ceil(float64(p.MaxRunTime) / float64(p.CycleTime)))
	if cycles < 1 {
		cycles = 1
	}
	return cycles * p.Tasks * 2
}

// decisionScopes are the scopes every decision task needs to schedule,
// create and (for single pools) cancel its own work.
func decisionScopes(workerType string, withCancel bool) []string {
	scopes := []string{
		fmt.Sprintf("queue:scheduler-id:%s", common.SchedulerID),
		fmt.Sprintf("queue:create-task:highest:%s/%s", common.ProvisionerID, workerType),
		fmt.Sprintf("secrets:get:%s", common.DecisionSecret),
	}
	if withCancel {
		scopes = append(scopes,
			fmt.Sprintf("queue:cancel-task:%s/*", common.SchedulerID))
	}
	return scopes
}

type builtResources struct {
	pool *WorkerPool
	hook *Hook
	role *Role
}

func (b *Builder) buildResources(
	p *pool.PoolConfiguration,
	maxCapacity int,
	scopes []string,
	env map[string]string) (*builtResources, error) {
	provider, ok := b.providers[p.Cloud]
	if !ok {
		return nil, errors.Errorf(
			"pool %s: cloud provider %q not available", p.PoolID, p.Cloud)
	}

	machines, err := b.catalog.Filter(
		p.Cloud, p.CPU, p.CoresPerTask, p.MinimumMemoryPerCore, p.Metal, p.GPU)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s", p.PoolID)
	}

	launchConfigs, err := provider.BuildLaunchConfigs(
		p.Imageset, machines, p.DiskSize, p.Platform)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s: launch configs", p.PoolID)
	}

	workerType := p.WorkerType()
	config := WorkerPoolConfig{
		MinCapacity:   0,
		MaxCapacity:   maxCapacity,
		LaunchConfigs: launchConfigs,
	}
	if p.Platform == pool.PlatformLinux {
		config.Lifecycle = &Lifecycle{
			RegistrationTimeout:   int64(b.opts.RegistrationTimeout / time.Second),
			ReregistrationTimeout: int64(b.opts.ReregistrationTimeout / time.Second),
		}
	}

	taskEnv := map[string]string{"TASKCLUSTER_SECRET": common.DecisionSecret}
	if err := mergeEnv(taskEnv, env); err != nil {
		return nil, errors.Wrapf(err, "pool %s: decision task", p.PoolID)
	}

	image := decisionImage
	task := DecisionTask{
		Created:  FromNow{"0 seconds"},
		Deadline: FromNow{"1 hour"},
		Expires:  fromNowOffset(b.opts.TaskExpiry),
		Extra:    map[string]string{},
		Metadata: Metadata{
			Name:        fmt.Sprintf("Fuzzing decision %s", workerType),
			Description: common.Description,
			Owner:       common.OwnerEmail,
			Source:      common.SourceURL,
		},
		Payload: Payload{
			Cache:      map[string]string{},
			Command:    []string{"fuzzing-decision", p.PoolID},
			Env:        taskEnv,
			Features:   map[string]bool{"taskclusterProxy": true},
			Image:      &image,
			MaxRunTime: int64(decisionMaxRunTime / time.Second),
		},
		Priority:      "high",
		ProvisionerID: common.ProvisionerID,
		WorkerType:    workerType,
		Retries:       5,
		Routes:        []string{},
		SchedulerID:   common.SchedulerID,
		Scopes:        scopes,
		Tags:          map[string]string{},
	}
	task.Payload.Capabilities = capabilitiesForScopes(scopes)

	log.WithFields(log.Fields{
		"pool":        p.PoolID,
		"workerType":  workerType,
		"maxCapacity": maxCapacity,
		"machines":    len(machines),
	}).Info("built worker pool resources")

	return &builtResources{
		pool: &WorkerPool{
			WorkerPoolID: fmt.Sprintf("%s/%s", common.WorkerPoolPrefix, workerType),
			ProviderID:   common.ProviderIDs[p.Cloud],
			Description:  common.Description,
			Owner:        common.OwnerEmail,
			EmailOnError: true,
			Config:       config,
		},
		hook: &Hook{
			HookGroupID:   common.HookPrefix,
			HookID:        workerType,
			Name:          workerType,
			Description:   "Generated fuzzing hook",
			Owner:         common.OwnerEmail,
			EmailOnError:  true,
			Schedule:      p.CycleCrons(),
			Task:          task,
			Bindings:      []string{},
			TriggerSchema: map[string]interface{}{},
		},
		role: &Role{
			RoleID:      fmt.Sprintf("hook-id:%s/%s", common.HookPrefix, workerType),
			Description: common.Description,
			Scopes:      scopes,
		},
	}, nil
}

// fromNowOffset renders a duration in the relative timestamp syntax
// the scheduling service accepts, using the coarsest unit that divides
// it exactly.
func fromNowOffset(d time.Duration) FromNow {
	const day = 24 * time.Hour
	const week = 7 * day
	unit := func(n int64, name string) FromNow {
		if n == 1 {
			return FromNow{"1 " + name}
		}
		return FromNow{fmt.Sprintf("%d %ss", n, name)}
	}
	switch {
	case d >= week && d%week == 0:
		return unit(int64(d/week), "week")
	case d >= day && d%day == 0:
		return unit(int64(d/day), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	default:
		return unit(int64(d/time.Second), "second")
	}
}

// capabilitiesForScopes derives the device and privilege grants a
// task's scopes entitle it to, or nil when there are none.
func capabilitiesForScopes(scopes []string) *Capabilities {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}

	caps := &Capabilities{}
	for _, device := range common.DockerWorkerDevices {
		if _, ok := set["docker-worker:capability:device:"+device]; ok {
			if caps.Devices == nil {
				caps.Devices = map[string]bool{}
			}
			caps.Devices[device] = true
		}
	}
	if _, ok := set["docker-worker:capability:privileged"]; ok {
		caps.Privileged = true
	}
	if !caps.Privileged && caps.Devices == nil {
		return nil
	}
	return caps
}

// mergeEnv copies extra caller env vars into a task's env, failing on
// any overlap with the task's own reserved keys.
func mergeEnv(taskEnv map[string]string, extra map[string]string) error {
	for k := range extra {
		if _, ok := taskEnv[k]; ok {
			return errors.Errorf(
				"extra environment overlaps reserved key %q", k)
		}
	}
	for k, v := range extra {
		taskEnv[k] = v
	}
	return nil
}

// unionSorted merges scope lists into a sorted, deduplicated set.
// Sorting keeps emitted descriptors reproducible and comparable.
func unionSorted(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var result []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			result = append(result, s)
		}
	}
	sort.Strings(result)
	return result
}

// joinCommand renders a command vector as one shell line.
func joinCommand(command []string) string {
	return strings.Join(command, " ")
}
