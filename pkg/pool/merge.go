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

package pool

// rawPool is one declaration layer of a pool document. Every field is
// optional; unset fields inherit from ancestor layers during
// flattening.
type rawPool struct {
	Name                 *string                 `yaml:"name"`
	Parents              []string                `yaml:"parents"`
	Cloud                *string                 `yaml:"cloud"`
	Platform             *string                 `yaml:"platform"`
	CPU                  *string                 `yaml:"cpu"`
	CoresPerTask         *int                    `yaml:"cores_per_task"`
	MinimumMemoryPerCore *string                 `yaml:"minimum_memory_per_core"`
	Metal                *bool                   `yaml:"metal"`
	GPU                  *bool                   `yaml:"gpu"`
	Demand               *bool                   `yaml:"demand"`
	DiskSize             *string                 `yaml:"disk_size"`
	Imageset             *string                 `yaml:"imageset"`
	Container            *Container              `yaml:"container"`
	Command              []string                `yaml:"command"`
	Tasks                *int                    `yaml:"tasks"`
	MaxRunTime           *string                 `yaml:"max_run_time"`
	CycleTime            *string                 `yaml:"cycle_time"`
	ScheduleStart        *string                 `yaml:"schedule_start"`
	Scopes               []string                `yaml:"scopes"`
	Artifacts            map[string]ArtifactSpec `yaml:"artifacts"`
	Macros               map[string]string       `yaml:"macros"`
	Preprocess           *rawPool                `yaml:"preprocess"`
	RunAsAdmin           *bool                   `yaml:"run_as_admin"`
	ApplyTo              []string                `yaml:"apply_to"`
}

// ArtifactSpec is one declared artifact: a path inside the task mapped
// to a remote artifact name.
type ArtifactSpec struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

// mergeLayer resolves one inheritance step: every field set in the
// override layer wins over the base layer, except scopes which are the
// union of both. Neither argument is modified.
func mergeLayer(base *rawPool, override *rawPool) *rawPool {
	if override == nil {
		return base
	}
	if base == nil {
		return override
	}

	merged := *base
	if override.Name != nil {
		merged.Name = override.Name
	}
	if override.Parents != nil {
		merged.Parents = override.Parents
	}
	if override.Cloud != nil {
		merged.Cloud = override.Cloud
	}
	if override.Platform != nil {
		merged.Platform = override.Platform
	}
	if override.CPU != nil {
		merged.CPU = override.CPU
	}
	if override.CoresPerTask != nil {
		merged.CoresPerTask = override.CoresPerTask
	}
	if override.MinimumMemoryPerCore != nil {
		merged.MinimumMemoryPerCore = override.MinimumMemoryPerCore
	}
	if override.Metal != nil {
		merged.Metal = override.Metal
	}
	if override.GPU != nil {
		merged.GPU = override.GPU
	}
	if override.Demand != nil {
		merged.Demand = override.Demand
	}
	if override.DiskSize != nil {
		merged.DiskSize = override.DiskSize
	}
	if override.Imageset != nil {
		merged.Imageset = override.Imageset
	}
	if override.Container != nil {
		merged.Container = override.Container
	}
	if override.Command != nil {
		merged.Command = override.Command
	}
	if override.Tasks != nil {
		merged.Tasks = override.Tasks
	}
	if override.MaxRunTime != nil {
		merged.MaxRunTime = override.MaxRunTime
	}
	if override.CycleTime != nil {
		merged.CycleTime = override.CycleTime
	}
	if override.ScheduleStart != nil {
		merged.ScheduleStart = override.ScheduleStart
	}
	if override.Artifacts != nil {
		merged.Artifacts = override.Artifacts
	}
	if override.Macros != nil {
		merged.Macros = override.Macros
	}
	if override.Preprocess != nil {
		merged.Preprocess = override.Preprocess
	}
	if override.RunAsAdmin != nil {
		merged.RunAsAdmin = override.RunAsAdmin
	}
	if override.ApplyTo != nil {
		merged.ApplyTo = override.ApplyTo
	}

	// scopes are additive across the whole ancestry, never replaced
	merged.Scopes = unionScopes(base.Scopes, override.Scopes)

	return &merged
}

// unionScopes merges two scope lists, keeping first-seen order and
// dropping duplicates.
func unionScopes(a []string, b []string) []string {
	if a == nil && b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, scopes := range [][]string{a, b} {
		for _, s := range scopes {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			result = append(result, s)
		}
	}
	return result
}
