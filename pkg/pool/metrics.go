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

import (
	"github.com/uber-go/tally"
)

// Metrics is a placeholder for all metrics in pool.
type Metrics struct {
	LoadSuccess    tally.Counter
	LoadFail       tally.Counter
	PoolsFlattened tally.Counter
}

// NewMetrics returns a new instance of pool.Metrics.
func NewMetrics(scope tally.Scope) *Metrics {
	loadScope := scope.SubScope("load")
	return &Metrics{
		LoadSuccess:    loadScope.Tagged(map[string]string{"type": "success"}).Counter("calls"),
		LoadFail:       loadScope.Tagged(map[string]string{"type": "fail"}).Counter("calls"),
		PoolsFlattened: scope.Counter("pools_flattened"),
	}
}
