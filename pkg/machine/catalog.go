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

// Package machine holds the read-only catalog of machine shapes offered
// per cloud provider and answers shape-matching queries for the
// resource builder.
package machine

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/fuzzfleet/decision/pkg/common/config"
	"github.com/fuzzfleet/decision/pkg/common/sizeparse"
)

// Shape is one provider machine type. Shapes are kept in catalog
// declaration order, smallest and cheapest first.
type Shape struct {
	Name  string
	Cores int
	RAM   int64
	Metal bool
	GPU   bool
}

// Catalog is the full machine table, keyed by provider then cpu
// architecture. It is loaded once and never mutated.
type Catalog struct {
	providers map[string]map[string][]Shape
}

type shapeDoc struct {
	Name  string `yaml:"name"`
	Cores int    `yaml:"cores" validate:"min=1"`
	RAM   string `yaml:"ram"`
	Metal bool   `yaml:"metal"`
	GPU   bool   `yaml:"gpu"`
}

type catalogDoc struct {
	Providers map[string]map[string][]shapeDoc `yaml:"providers"`
}

// LoadCatalog reads a machine table from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read machine catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a catalog from raw YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errors.Wrap(err, "cannot parse machine catalog")
	}

	c := &Catalog{providers: map[string]map[string][]Shape{}}
	for provider, arches := range doc.Providers {
		c.providers[provider] = map[string][]Shape{}
		for arch, shapes := range arches {
			for _, s := range shapes {
				if s.Name == "" {
					return nil, errors.Errorf(
						"machine with no name under %s/%s", provider, arch)
				}
				if err := config.Validate(&s); err != nil {
					return nil, errors.Wrapf(err,
						"machine %s/%s/%s", provider, arch, s.Name)
				}
				ram, err := sizeparse.Size(s.RAM)
				if err != nil {
					return nil, errors.Wrapf(err,
						"machine %s/%s/%s has invalid ram", provider, arch, s.Name)
				}
				c.providers[provider][arch] = append(c.providers[provider][arch],
					Shape{
						Name:  s.Name,
						Cores: s.Cores,
						RAM:   ram,
						Metal: s.Metal,
						GPU:   s.GPU,
					})
			}
		}
	}
	return c, nil
}

// Filter returns the names of all shapes of the given provider and
// architecture able to host one task, in catalog order. An unknown
// provider or architecture is an error; a known combination where no
// shape satisfies the constraints returns an empty result.
func (c *Catalog) Filter(
	provider string,
	cpu string,
	coresPerTask int,
	minMemoryPerCore int64,
	metal bool,
	gpu bool) ([]string, error) {
	arches, ok := c.providers[provider]
	if !ok {
		return nil, errors.Errorf("unknown cloud provider %q", provider)
	}
	shapes, ok := arches[cpu]
	if !ok {
		return nil, errors.Errorf(
			"cpu architecture %q not offered by provider %q", cpu, provider)
	}

	var result []string
	needRAM := int64(coresPerTask) * minMemoryPerCore
	for _, s := range shapes {
		if s.Cores < coresPerTask {
			continue
		}
		if s.RAM < needRAM {
			continue
		}
		if s.Metal != metal || s.GPU != gpu {
			continue
		}
		result = append(result, s.Name)
	}
	return result, nil
}
