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

// Package pool loads the declarative fuzzing pool documents, resolves
// their inheritance chains into immutable flattened configurations and
// derives their cron schedules.
package pool

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/fuzzfleet/decision/pkg/common"
	"github.com/fuzzfleet/decision/pkg/common/config"
	"github.com/fuzzfleet/decision/pkg/common/sizeparse"
)

// Platform values a pool can target.
const (
	PlatformLinux   = "linux"
	PlatformWindows = "windows"
	PlatformMacOSX  = "macosx"
	PlatformAndroid = "android"
)

var validPlatforms = map[string]struct{}{
	PlatformLinux:   {},
	PlatformWindows: {},
	PlatformMacOSX:  {},
	PlatformAndroid: {},
}

var validCPUs = map[string]struct{}{
	"x64":   {},
	"arm64": {},
}

// PoolConfiguration is a fully resolved, single-target fuzzing pool.
// Instances are immutable once built; builders only ever read them.
type PoolConfiguration struct {
	PoolID               string            `validate:"nonzero"`
	Name                 string            `validate:"nonzero"`
	Platform             string            `validate:"nonzero"`
	Cloud                string            `validate:"nonzero"`
	CPU                  string            `validate:"nonzero"`
	CoresPerTask         int               `validate:"min=1"`
	MinimumMemoryPerCore int64             `validate:"min=1"`
	Metal                bool
	GPU                  bool
	Demand               bool
	DiskSize             int64 `validate:"min=1"`
	Imageset             string
	Container            *Container
	Command              []string
	Tasks                int           `validate:"min=1"`
	MaxRunTime           time.Duration `validate:"min=1"`
	CycleTime            time.Duration `validate:"min=1"`
	ScheduleStart        *time.Time
	Scopes               []string
	Artifacts            map[string]ArtifactSpec
	Macros               map[string]string
	RunAsAdmin           bool
	Parents              []string

	// flat keeps the merged declaration so preprocess stages can be
	// derived from it.
	flat *rawPool
}

// WorkerType returns the worker type identifier the pool's tasks run on.
func (p *PoolConfiguration) WorkerType() string {
	return fmt.Sprintf("%s-%s", p.Platform, p.PoolID)
}

// HasPreprocess reports whether the pool declares a preprocess stage.
func (p *PoolConfiguration) HasPreprocess() bool {
	return p.flat != nil && p.flat.Preprocess != nil
}

// CreatePreprocess derives the single-task setup stage configuration,
// or nil when the pool declares none. The preprocess declaration is
// applied as one more override layer on top of the pool itself.
func (p *PoolConfiguration) CreatePreprocess() (*PoolConfiguration, error) {
	if !p.HasPreprocess() {
		return nil, nil
	}

	base := *p.flat
	base.Preprocess = nil
	merged := mergeLayer(&base, p.flat.Preprocess)
	merged.Preprocess = nil
	one := 1
	merged.Tasks = &one

	pre, rerr := resolvePool(p.PoolID, merged, false)
	if rerr != nil {
		return nil, errors.Wrapf(rerr, "pool %s preprocess", p.PoolID)
	}
	return pre, nil
}

// resolvePool converts a flattened declaration layer into a resolved
// configuration. With partial set, fields a pool map may leave to its
// targets (tasks, command, container, run time) are not required.
func resolvePool(poolID string, flat *rawPool, partial bool) (*PoolConfiguration, error) {
	missing := func(field string) error {
		return errors.Errorf(
			"pool %s: required field %q unresolved after flattening", poolID, field)
	}

	p := &PoolConfiguration{
		PoolID: poolID,
		flat:   flat,
	}

	if flat.Name == nil {
		return nil, missing("name")
	}
	p.Name = *flat.Name

	if flat.Platform == nil {
		return nil, missing("platform")
	}
	p.Platform = *flat.Platform
	if _, ok := validPlatforms[p.Platform]; !ok {
		return nil, errors.Errorf("pool %s: unknown platform %q", poolID, p.Platform)
	}

	if flat.Cloud == nil {
		return nil, missing("cloud")
	}
	p.Cloud = *flat.Cloud
	if _, ok := common.ProviderIDs[p.Cloud]; !ok {
		return nil, errors.Errorf("pool %s: unknown cloud provider %q", poolID, p.Cloud)
	}

	if flat.CPU == nil {
		return nil, missing("cpu")
	}
	p.CPU = *flat.CPU
	if _, ok := validCPUs[p.CPU]; !ok {
		return nil, errors.Errorf("pool %s: unknown cpu architecture %q", poolID, p.CPU)
	}

	if flat.CoresPerTask == nil {
		return nil, missing("cores_per_task")
	}
	p.CoresPerTask = *flat.CoresPerTask

	if flat.MinimumMemoryPerCore == nil {
		return nil, missing("minimum_memory_per_core")
	}
	mem, serr := sizeparse.Size(*flat.MinimumMemoryPerCore)
	if serr != nil {
		return nil, errors.Wrapf(serr, "pool %s: minimum_memory_per_core", poolID)
	}
	p.MinimumMemoryPerCore = mem

	if flat.Metal == nil {
		return nil, missing("metal")
	}
	p.Metal = *flat.Metal
	if flat.GPU != nil {
		p.GPU = *flat.GPU
	}
	if flat.Demand != nil {
		p.Demand = *flat.Demand
	}

	if flat.DiskSize == nil {
		return nil, missing("disk_size")
	}
	disk, serr := sizeparse.Size(*flat.DiskSize)
	if serr != nil {
		return nil, errors.Wrapf(serr, "pool %s: disk_size", poolID)
	}
	p.DiskSize = disk

	if flat.Imageset == nil {
		return nil, missing("imageset")
	}
	p.Imageset = *flat.Imageset

	if flat.CycleTime == nil {
		return nil, missing("cycle_time")
	}
	cycle, derr := sizeparse.Duration(*flat.CycleTime)
	if derr != nil {
		return nil, errors.Wrapf(derr, "pool %s: cycle_time", poolID)
	}
	p.CycleTime = cycle

	if flat.ScheduleStart != nil && *flat.ScheduleStart != "" {
		start, terr := time.Parse(time.RFC3339, *flat.ScheduleStart)
		if terr != nil {
			return nil, errors.Wrapf(terr, "pool %s: schedule_start", poolID)
		}
		start = start.UTC()
		p.ScheduleStart = &start
	}

	p.Scopes = append([]string(nil), flat.Scopes...)
	sort.Strings(p.Scopes)
	p.Macros = flat.Macros
	if p.Macros == nil {
		p.Macros = map[string]string{}
	}
	p.Artifacts = flat.Artifacts
	if p.Artifacts == nil {
		p.Artifacts = map[string]ArtifactSpec{}
	}
	if aerr := validateArtifacts(poolID, p.Artifacts); aerr != nil {
		return nil, aerr
	}

	if flat.RunAsAdmin != nil {
		if p.Platform != PlatformWindows {
			return nil, errors.Errorf(
				"pool %s: run_as_admin is only valid on windows", poolID)
		}
		p.RunAsAdmin = *flat.RunAsAdmin
	}

	if !partial {
		if flat.Tasks == nil {
			return nil, missing("tasks")
		}
		p.Tasks = *flat.Tasks

		if flat.Command == nil {
			return nil, missing("command")
		}
		p.Command = append([]string(nil), flat.Command...)

		if flat.MaxRunTime == nil {
			return nil, missing("max_run_time")
		}
		maxRun, derr := sizeparse.Duration(*flat.MaxRunTime)
		if derr != nil {
			return nil, errors.Wrapf(derr, "pool %s: max_run_time", poolID)
		}
		p.MaxRunTime = maxRun

		if flat.Container == nil {
			return nil, missing("container")
		}
		p.Container = flat.Container
		if cerr := validateContainer(poolID, p.Platform, p.Container); cerr != nil {
			return nil, cerr
		}
	}

	// Bound checks apply to partial configurations too; only the
	// task-level fields a map leaves to its targets are exempt.
	verify := *p
	if partial {
		verify.Tasks = 1
		verify.MaxRunTime = time.Second
	}
	if verr := config.Validate(&verify); verr != nil {
		return nil, errors.Wrapf(verr, "pool %s", poolID)
	}

	return p, nil
}

func validateContainer(poolID, platform string, c *Container) error {
	switch platform {
	case PlatformLinux, PlatformAndroid:
		if !c.IsScalar() {
			return errors.Errorf(
				"pool %s: %s pools take a plain docker image reference",
				poolID, platform)
		}
	case PlatformWindows, PlatformMacOSX:
		if c.IsScalar() || c.Type == ContainerDockerImage {
			return errors.Errorf(
				"pool %s: %s pools need a non-docker container descriptor",
				poolID, platform)
		}
	}
	return nil
}

// validateArtifacts checks that remote artifact names never collide,
// including with the mandatory log artifact added at task build time.
func validateArtifacts(poolID string, artifacts map[string]ArtifactSpec) error {
	urls := map[string]string{}
	for local, spec := range artifacts {
		if spec.Type != "file" && spec.Type != "directory" {
			return errors.Errorf(
				"pool %s: artifact %s has invalid type %q", poolID, local, spec.Type)
		}
		if spec.URL == "" {
			return errors.Errorf("pool %s: artifact %s has no url", poolID, local)
		}
		if spec.URL == common.LogsArtifact {
			return errors.Errorf(
				"pool %s: artifact %s clashes with the reserved log artifact",
				poolID, local)
		}
		if other, ok := urls[spec.URL]; ok {
			return errors.Errorf(
				"pool %s: artifacts %s and %s share remote name %s",
				poolID, other, local, spec.URL)
		}
		urls[spec.URL] = local
	}
	return nil
}
