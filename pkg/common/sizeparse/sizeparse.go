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

// Package sizeparse parses the human-readable size and duration strings
// used throughout pool declarations ("120g", "12h", "1w").
package sizeparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var sizeUnits = map[byte]int64{
	'k': 1 << 10,
	'm': 1 << 20,
	'g': 1 << 30,
	't': 1 << 40,
}

var timeUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// Size converts a byte count like "2g" or "512m" to bytes. A bare
// number is taken as bytes.
func Size(value string) (int64, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0, errors.New("empty size")
	}
	mult := int64(1)
	if m, ok := sizeUnits[value[len(value)-1]]; ok {
		mult = m
		value = value[:len(value)-1]
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", value)
	}
	return int64(n * float64(mult)), nil
}

// Duration converts a duration like "30s", "15m", "12h", "4d" or "1w".
// A bare number is taken as seconds.
func Duration(value string) (time.Duration, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0, errors.New("empty duration")
	}
	unit := time.Second
	if u, ok := timeUnits[value[len(value)-1]]; ok {
		unit = u
		value = value[:len(value)-1]
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", value)
	}
	return time.Duration(n * float64(unit)), nil
}
