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

package common

const (
	// HookPrefix is the hook group every fuzzing decision hook lives under
	HookPrefix = "project-fuzzing"
	// ProvisionerID is the provisioner all fuzzing worker types belong to
	ProvisionerID = "proj-fuzzing"
	// WorkerPoolPrefix is the prefix of every generated worker pool id
	WorkerPoolPrefix = "proj-fuzzing"
	// SchedulerID is the scheduler id stamped on every generated task
	SchedulerID = "-"
	// DecisionSecret is the secret every decision and fuzzing task reads
	DecisionSecret = "project/fuzzing/decision"
	// OwnerEmail is the contact for all generated resources
	OwnerEmail = "fuzzing+taskcluster@mozilla.com"
	// SourceURL is the repository stamped into task metadata
	SourceURL = "https://github.com/fuzzfleet/decision"
	// LogsArtifact is the remote name of the mandatory log artifact
	LogsArtifact = "project/fuzzing/private/logs"
)

// Description is stamped on every generated resource so nobody edits
// them by hand.
const Description = `*DO NOT EDIT* - This resource is configured automatically.

Fuzzing workers generated by decision task`

// ProviderIDs maps a pool's cloud to the worker-manager provider id.
var ProviderIDs = map[string]string{
	"aws":    "community-tc-workers-aws",
	"gcp":    "community-tc-workers-google",
	"static": "standalone",
}

// DockerWorkerDevices are the device capabilities a task may request
// through its scopes.
var DockerWorkerDevices = []string{
	"cpu",
	"hostSharedMemory",
	"loopbackAudio",
	"loopbackVideo",
	"kvm",
}
