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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// epoch is a Thursday at midnight UTC.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCycleCronsDailyAligned(t *testing.T) {
	assert.Equal(t, []string{
		"0 0 6 * * *",
		"0 0 12 * * *",
		"0 0 18 * * *",
		"0 0 0 * * *",
	}, cycleCronsFrom(6*time.Hour, epoch))

	assert.Equal(t, []string{
		"0 0 12 * * *",
		"0 0 0 * * *",
	}, cycleCronsFrom(12*time.Hour, epoch))

	assert.Equal(t, []string{
		"0 0 0 * * *",
	}, cycleCronsFrom(24*time.Hour, epoch))
}

func TestCycleCronsDailyKeepsMinute(t *testing.T) {
	start := time.Date(2021, 3, 2, 10, 13, 45, 0, time.UTC)
	assert.Equal(t, []string{
		"0 13 16 * * *",
		"0 13 22 * * *",
		"0 13 4 * * *",
		"0 13 10 * * *",
	}, cycleCronsFrom(6*time.Hour, start))
}

func TestCycleCronsWeeklyAligned(t *testing.T) {
	// 3.5 days from a Thursday midnight lands on Sunday noon, then the
	// following Thursday midnight.
	assert.Equal(t, []string{
		"0 0 12 * * 0",
		"0 0 0 * * 4",
	}, cycleCronsFrom(84*time.Hour, epoch))

	assert.Equal(t, []string{
		"0 0 0 * * 4",
	}, cycleCronsFrom(7*24*time.Hour, epoch))
}

func TestCycleCronsUnaligned(t *testing.T) {
	cases := []struct {
		cycle time.Duration
		count int
		first string
	}{
		{17 * time.Hour, 516, "0 0 17 1 1 *"},
		{48 * time.Hour, 183, "0 0 0 3 1 *"},
		{72 * time.Hour, 122, "0 0 0 4 1 *"},
		{17 * 24 * time.Hour, 22, "0 0 0 18 1 *"},
	}
	for _, tc := range cases {
		crons := cycleCronsFrom(tc.cycle, epoch)
		require.Len(t, crons, tc.count, "cycle %s", tc.cycle)
		assert.Equal(t, tc.first, crons[0], "cycle %s", tc.cycle)
	}
}

func TestCycleCronsUnalignedSecondFire(t *testing.T) {
	crons := cycleCronsFrom(17*time.Hour, epoch)
	require.True(t, len(crons) > 1)
	assert.Equal(t, "0 0 10 2 1 *", crons[1])
}

func TestCycleCronsUnsetStartStable(t *testing.T) {
	p := &PoolConfiguration{CycleTime: 6 * time.Hour}
	first := p.CycleCrons()
	second := p.CycleCrons()
	require.Len(t, first, 4)
	// the wall clock is truncated to the minute, so back to back reads
	// agree except across a minute boundary
	if time.Now().Second() < 58 {
		assert.Equal(t, first, second)
	}
}

func TestCycleCronsExplicitStart(t *testing.T) {
	start := epoch
	p := &PoolConfiguration{
		CycleTime:     12 * time.Hour,
		ScheduleStart: &start,
	}
	assert.Equal(t, []string{
		"0 0 12 * * *",
		"0 0 0 * * *",
	}, p.CycleCrons())
}
