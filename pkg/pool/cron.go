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
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	// cronHorizon is how far ahead firing times are walked before they
	// are compressed into cron lines.
	cronHorizon = 365 * day
)

// CycleCrons returns the minimal set of six-field cron lines whose
// union of firing times matches walking forward from the schedule start
// in cycle_time increments over a one-year horizon. The wall clock is
// read exactly once, so repeated calls within the same minute agree.
func (p *PoolConfiguration) CycleCrons() []string {
	start := time.Now().UTC()
	if p.ScheduleStart != nil {
		start = *p.ScheduleStart
	}
	return cycleCronsFrom(p.CycleTime, start)
}

func cycleCronsFrom(cycle time.Duration, start time.Time) []string {
	start = start.UTC().Truncate(time.Minute)

	count := int(cronHorizon/cycle) + 1
	fires := make([]time.Time, count)
	t := start
	for i := range fires {
		t = t.Add(cycle)
		fires[i] = t
	}

	switch {
	case day%cycle == 0:
		// the same times of day recur every day
		perDay := int(day / cycle)
		crons := make([]string, 0, perDay)
		for _, fire := range fires[:perDay] {
			crons = append(crons, fmt.Sprintf(
				"0 %d %d * * *", fire.Minute(), fire.Hour()))
		}
		return crons
	case week%cycle == 0:
		// the same (weekday, time of day) pairs recur every week
		perWeek := int(week / cycle)
		crons := make([]string, 0, perWeek)
		for _, fire := range fires[:perWeek] {
			crons = append(crons, fmt.Sprintf(
				"0 %d %d * * %d", fire.Minute(), fire.Hour(), int(fire.Weekday())))
		}
		return crons
	default:
		// no calendar alignment, one entry per firing
		crons := make([]string, 0, len(fires))
		for _, fire := range fires {
			crons = append(crons, fmt.Sprintf(
				"0 %d %d %d %d *",
				fire.Minute(), fire.Hour(), fire.Day(), int(fire.Month())))
		}
		return crons
	}
}
