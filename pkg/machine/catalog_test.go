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

package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
providers:
  gcp:
    x64:
      - name: base
        cores: 1
        ram: 1g
      - name: 2-cpus
        cores: 2
        ram: 2g
      - name: more-ram
        cores: 2
        ram: 12g
      - name: metal
        cores: 1
        ram: 1g
        metal: true
  aws:
    arm64:
      - name: a1
        cores: 1
        ram: 2g
      - name: a2
        cores: 2
        ram: 4g
`

func TestFilter(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	gig := int64(1) << 30

	tt := []struct {
		name     string
		provider string
		cpu      string
		cores    int
		ram      int64
		metal    bool
		expect   []string
	}{
		{"gcp-1core", "gcp", "x64", 1, gig, false, []string{"base", "2-cpus", "more-ram"}},
		{"gcp-2core", "gcp", "x64", 2, gig, false, []string{"2-cpus", "more-ram"}},
		{"gcp-2core-5g", "gcp", "x64", 2, 5 * gig, false, []string{"more-ram"}},
		{"gcp-metal", "gcp", "x64", 1, gig, true, []string{"metal"}},
		{"aws-1core", "aws", "arm64", 1, gig, false, []string{"a1", "a2"}},
		{"aws-2core", "aws", "arm64", 2, gig, false, []string{"a2"}},
		{"aws-unsatisfiable", "aws", "arm64", 12, 32 * gig, false, nil},
		{"aws-no-metal", "aws", "arm64", 1, gig, true, nil},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := catalog.Filter(
				tc.provider, tc.cpu, tc.cores, tc.ram, tc.metal, false)
			assert.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestFilterUnknownLookups(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	// x64 is not present in aws
	_, err = catalog.Filter("aws", "x64", 1, 1, false, false)
	assert.Error(t, err)

	// invalid provider raises too
	_, err = catalog.Filter("dummy", "x64", 1, 1, false, false)
	assert.Error(t, err)
}

func TestFilterGPU(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
providers:
  gcp:
    x64:
      - name: plain
        cores: 4
        ram: 16g
      - name: accel
        cores: 4
        ram: 16g
        gpu: true
`))
	require.NoError(t, err)

	got, err := catalog.Filter("gcp", "x64", 1, 1, false, true)
	assert.NoError(t, err)
	assert.Equal(t, []string{"accel"}, got)

	got, err = catalog.Filter("gcp", "x64", 1, 1, false, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"plain"}, got)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := ParseCatalog([]byte(`
providers:
  gcp:
    x64:
      - cores: 1
        ram: 1g
`))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte(`
providers:
  gcp:
    x64:
      - name: bad-ram
        cores: 1
        ram: lots
`))
	assert.Error(t, err)

	// a shape with no cores can never host a task
	_, err = ParseCatalog([]byte(`
providers:
  gcp:
    x64:
      - name: coreless
        ram: 1g
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coreless")
	assert.Contains(t, err.Error(), "Cores")
}
