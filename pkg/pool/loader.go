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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"gopkg.in/yaml.v2"
)

// Document is a loaded declaration: either a single pool or a pool map.
type Document interface {
	// DocumentID is the declaration's id, derived from its file name.
	DocumentID() string
}

// DocumentID implements Document
func (p *PoolConfiguration) DocumentID() string { return p.PoolID }

// DocumentID implements Document
func (m *PoolConfigMap) DocumentID() string { return m.PoolID }

var poolFields = fieldSet(
	"name", "parents", "cloud", "platform", "cpu", "cores_per_task",
	"minimum_memory_per_core", "metal", "gpu", "demand", "disk_size",
	"imageset", "container", "command", "tasks", "max_run_time",
	"cycle_time", "schedule_start", "scopes", "artifacts", "macros",
	"preprocess", "run_as_admin",
)

var mapFields = fieldSet(
	"name", "apply_to", "cloud", "platform", "cpu", "cores_per_task",
	"minimum_memory_per_core", "metal", "gpu", "demand", "disk_size",
	"imageset", "cycle_time", "schedule_start", "scopes", "macros",
)

var poolRequired = []string{"name"}
var mapRequired = []string{"name", "apply_to"}

func fieldSet(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Loader reads pool declarations from a directory and resolves their
// inheritance chains. It holds no mutable state besides metrics, so one
// loader can serve any number of loads.
type Loader struct {
	dir     string
	metrics *Metrics
}

// NewLoader returns a loader rooted at the given declaration directory.
func NewLoader(dir string, scope tally.Scope) *Loader {
	return &Loader{
		dir:     dir,
		metrics: NewMetrics(scope),
	}
}

// Load reads one declaration file and returns either a flattened
// PoolConfiguration or a PoolConfigMap depending on the document shape.
func (l *Loader) Load(path string) (Document, error) {
	doc, err := l.load(path)
	if err != nil {
		l.metrics.LoadFail.Inc(1)
		return nil, err
	}
	l.metrics.LoadSuccess.Inc(1)
	return doc, nil
}

func (l *Loader) load(path string) (Document, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, keys, err := readRaw(path)
	if err != nil {
		return nil, err
	}

	isPool := shapeMatches(keys, poolRequired, poolFields)
	isMap := shapeMatches(keys, mapRequired, mapFields)
	switch {
	case isPool && isMap:
		return nil, errors.Errorf(
			"%s matches both the pool and the pool map schema", path)
	case isMap:
		return l.newMap(id, raw)
	case isPool:
		return l.flattenPool(id, raw)
	default:
		return nil, shapeError(path, keys)
	}
}

// LoadPool loads the pool with the given id and flattens it. The
// document must be a single pool, not a map.
func (l *Loader) LoadPool(id string) (*PoolConfiguration, error) {
	doc, err := l.Load(l.path(id))
	if err != nil {
		return nil, err
	}
	p, ok := doc.(*PoolConfiguration)
	if !ok {
		return nil, errors.Errorf("pool %s is a pool map, not a pool", id)
	}
	return p, nil
}

func (l *Loader) path(id string) string {
	return filepath.Join(l.dir, id+".yml")
}

func (l *Loader) flattenPool(id string, raw *rawPool) (*PoolConfiguration, error) {
	flat, err := l.flattenRaw(id, raw, map[string]bool{id: true})
	if err != nil {
		return nil, err
	}
	p, err := resolvePool(id, flat, false)
	if err != nil {
		return nil, err
	}
	p.Parents = nil
	l.metrics.PoolsFlattened.Inc(1)
	log.WithFields(log.Fields{
		"pool":     id,
		"platform": p.Platform,
		"cloud":    p.Cloud,
	}).Debug("flattened pool configuration")
	return p, nil
}

// flattenRaw merges the pool's ancestor chain from the root ancestor
// down to the pool's own declaration. chain holds the ids on the path
// from the leaf to this declaration; only a parent already on that
// path is a cycle, so two parents may share a common ancestor.
func (l *Loader) flattenRaw(
	id string, raw *rawPool, chain map[string]bool) (*rawPool, error) {
	var inherited *rawPool
	for _, parent := range raw.Parents {
		if chain[parent] {
			return nil, errors.Errorf(
				"pool %s: inheritance cycle through %s", id, parent)
		}

		parentRaw, keys, err := readRaw(l.path(parent))
		if err != nil {
			return nil, errors.Wrapf(err, "pool %s: parent %s", id, parent)
		}
		if !shapeMatches(keys, poolRequired, poolFields) {
			return nil, errors.Errorf(
				"pool %s: parent %s is not a pool document", id, parent)
		}
		branch := make(map[string]bool, len(chain)+1)
		for k := range chain {
			branch[k] = true
		}
		branch[parent] = true
		parentFlat, err := l.flattenRaw(parent, parentRaw, branch)
		if err != nil {
			return nil, err
		}
		inherited = mergeLayer(inherited, parentFlat)
	}
	merged := mergeLayer(inherited, raw)
	merged.Parents = nil
	return merged, nil
}

func (l *Loader) newMap(id string, raw *rawPool) (*PoolConfigMap, error) {
	if len(raw.ApplyTo) == 0 {
		return nil, errors.Errorf("pool map %s applies to no pools", id)
	}
	partial, err := resolvePool(id, raw, true)
	if err != nil {
		return nil, err
	}
	return &PoolConfigMap{
		PoolConfiguration: partial,
		ApplyTo:           append([]string(nil), raw.ApplyTo...),
		over:              raw,
		loader:            l,
	}, nil
}

func readRaw(path string) (*rawPool, map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot read pool declaration %s", path)
	}

	var keyDoc map[string]interface{}
	if err := yaml.Unmarshal(data, &keyDoc); err != nil {
		return nil, nil, errors.Wrapf(err, "cannot parse %s", path)
	}
	keys := make(map[string]struct{}, len(keyDoc))
	for k := range keyDoc {
		keys[k] = struct{}{}
	}

	var raw rawPool
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, nil, errors.Wrapf(err, "cannot parse %s", path)
	}
	return &raw, keys, nil
}

func shapeMatches(
	keys map[string]struct{},
	required []string,
	allowed map[string]struct{}) bool {
	for _, r := range required {
		if _, ok := keys[r]; !ok {
			return false
		}
	}
	for k := range keys {
		if _, ok := allowed[k]; !ok {
			return false
		}
	}
	return true
}

// shapeError reports which keys would be needed for each schema so a
// bad document can be fixed without consulting the source.
func shapeError(path string, keys map[string]struct{}) error {
	have := make([]string, 0, len(keys))
	for k := range keys {
		have = append(have, k)
	}
	sort.Strings(have)
	return errors.Errorf(
		"%s matches neither the pool schema (requires %v, allows %v) nor the "+
			"pool map schema (requires %v, allows %v); document has keys %v",
		path, poolRequired, sortedFields(poolFields),
		mapRequired, sortedFields(mapFields), have)
}

func sortedFields(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
