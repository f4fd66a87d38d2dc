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
	"github.com/uber-go/tally"
)

// Metrics is a placeholder for all metrics in decision.
type Metrics struct {
	BuildResourcesSuccess tally.Counter
	BuildResourcesFail    tally.Counter

	TasksBuilt     tally.Counter
	BuildTasksFail tally.Counter

	TasksDiscovered tally.Counter
	TasksCancelled  tally.Counter
	CancelFail      tally.Counter
	SweepAborted    tally.Counter
}

// NewMetrics returns a new instance of decision.Metrics.
func NewMetrics(scope tally.Scope) *Metrics {
	buildScope := scope.SubScope("build")
	sweepScope := scope.SubScope("sweep")
	return &Metrics{
		BuildResourcesSuccess: buildScope.Tagged(map[string]string{"type": "success"}).Counter("resources"),
		BuildResourcesFail:    buildScope.Tagged(map[string]string{"type": "fail"}).Counter("resources"),
		TasksBuilt:            buildScope.Counter("tasks"),
		BuildTasksFail:        buildScope.Tagged(map[string]string{"type": "fail"}).Counter("tasks"),
		TasksDiscovered:       sweepScope.Counter("discovered"),
		TasksCancelled:        sweepScope.Counter("cancelled"),
		CancelFail:            sweepScope.Counter("cancel_fail"),
		SweepAborted:          sweepScope.Counter("aborted"),
	}
}
