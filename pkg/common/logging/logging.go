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

package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// RedactedStr replaces secret values in log fields.
const RedactedStr = "REDACTED"

// Configure sets up the process-wide logrus defaults.
func Configure(debug bool) {
	log.SetFormatter(&SecretsFormatter{&log.JSONFormatter{}})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SecretsFormatter redacts fields that look like credentials before
// delegating to the wrapped formatter.
type SecretsFormatter struct {
	log.Formatter
}

// Format implements logrus.Formatter
func (f *SecretsFormatter) Format(entry *log.Entry) ([]byte, error) {
	for k := range entry.Data {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			entry.Data[k] = RedactedStr
		}
	}
	return f.Formatter.Format(entry)
}
