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

import "github.com/pkg/errors"

// Sentinel errors collaborator adapters map expected remote failures
// onto. Both are tolerated by the cancellation sweep: an expired task
// group behaves like an empty one, a missing hook means there is
// nothing to cancel.
var (
	ErrNoSuchTaskGroup = errors.New("no such task group")
	ErrNoSuchHook      = errors.New("no such hook")
)
