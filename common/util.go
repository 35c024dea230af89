// Copyright 2025-2026 The streambench Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// UpdateLogTags merge request parameters attached to the context into a copy
// of the given Apex log tags
func UpdateLogTags(ctxt context.Context, original log.Fields) (log.Fields, error) {
	result := log.Fields{}
	for k, v := range original {
		result[k] = v
	}
	if param, ok := ctxt.Value(RequestParam{}).(RequestParam); ok {
		param.UpdateLogTags(result)
	}
	return result, nil
}

// subjectNameMatch feed subject names are single tokens without wildcards
var subjectNameMatch = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSubjectName verify a broker subject name is usable
func ValidateSubjectName(subject string) error {
	if !subjectNameMatch.MatchString(subject) {
		return fmt.Errorf("'%s' is not a valid subject name", subject)
	}
	return nil
}

// FeedSubjectName derive the broker subject for a competition's input feed.
// The competition name is lower-cased with spaces stripped.
func FeedSubjectName(competitionName string) string {
	return strings.ReplaceAll(strings.ToLower(competitionName), " ", "")
}

// PredictionsSubjectName derive the broker subject carrying client predictions
// for a competition
func PredictionsSubjectName(competitionName string) string {
	return FeedSubjectName(competitionName) + "predictions"
}
