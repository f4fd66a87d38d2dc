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
	"fmt"

	"github.com/pkg/errors"
)

// PoolConfigMap is one declaration fanned out across several target
// pools. The embedded configuration carries the map's own fields
// (machine shape, cycle time, scopes); per-target fields such as task
// counts come from the targets during expansion.
type PoolConfigMap struct {
	*PoolConfiguration

	// ApplyTo lists the target pool ids the map expands over.
	ApplyTo []string

	over   *rawPool
	loader *Loader
}

// PoolIterator lazily yields one flattened configuration per map
// target. Each IterPools call re-resolves targets from source.
type PoolIterator struct {
	m    *PoolConfigMap
	next int
}

// IterPools returns a fresh iterator over the map's targets.
func (m *PoolConfigMap) IterPools() *PoolIterator {
	return &PoolIterator{m: m}
}

// Next resolves the next target pool. It returns nil once the iterator
// is exhausted.
func (it *PoolIterator) Next() (*PoolConfiguration, error) {
	if it.next >= len(it.m.ApplyTo) {
		return nil, nil
	}
	target := it.m.ApplyTo[it.next]
	it.next++

	p, err := it.m.expand(target)
	if err != nil {
		return nil, errors.Wrapf(err, "pool map %s: target %s", it.m.PoolID, target)
	}
	return p, nil
}

// Pools eagerly materializes every target pool. Aggregate sizing of
// map-level resources reduces over this slice.
func (m *PoolConfigMap) Pools() ([]*PoolConfiguration, error) {
	pools := make([]*PoolConfiguration, 0, len(m.ApplyTo))
	it := m.IterPools()
	for {
		p, err := it.Next()
		if err != nil {
			return nil, err
		}
		if p == nil {
			return pools, nil
		}
		pools = append(pools, p)
	}
}

// expand resolves one target pool and applies the map's own fields on
// top, with the standard merge rules (map wins, scopes union).
func (m *PoolConfigMap) expand(target string) (*PoolConfiguration, error) {
	targetRaw, keys, err := readRaw(m.loader.path(target))
	if err != nil {
		return nil, err
	}
	if !shapeMatches(keys, poolRequired, poolFields) {
		return nil, errors.New("target is not a pool document")
	}
	base, err := m.loader.flattenRaw(target, targetRaw, map[string]bool{target: true})
	if err != nil {
		return nil, err
	}

	over := *m.over
	over.ApplyTo = nil
	over.Name = nil
	merged := mergeLayer(base, &over)

	if base.Name == nil {
		return nil, errors.New("target has no name")
	}
	name := fmt.Sprintf("%s (%s)", *base.Name, m.Name)
	merged.Name = &name

	p, err := resolvePool(target, merged, false)
	if err != nil {
		return nil, err
	}
	p.Parents = []string{target}
	return p, nil
}
