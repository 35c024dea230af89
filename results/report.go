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

package results

import (
	"fmt"
	"sort"
	"time"
)

// BaselineUserID the platform account whose measurements anchor the report
// time axis
const BaselineUserID int64 = 0

// Measurement one evaluation window of one user in one competition. The
// Measures document is keyed by label column, then by evaluation metric.
type Measurement struct {
	// UserID the evaluated user
	UserID int64 `json:"user_id" validate:"gte=0"`
	// StartDate the evaluation window start
	StartDate time.Time `json:"start_date" validate:"required"`
	// EndDate the evaluation window end
	EndDate time.Time `json:"end_date" validate:"required"`
	// Measures metric values of the window, label column -> metric -> value
	Measures map[string]map[string]float64 `json:"measures" validate:"required"`
}

// Value fetch one metric value from the measurement document
func (m Measurement) Value(field, measure string) (float64, bool) {
	byMeasure, ok := m.Measures[field]
	if !ok {
		return 0, false
	}
	value, ok := byMeasure[measure]
	return value, ok
}

// TimeLabel calendar split of an evaluation window's center, the dashboard's
// chart axis format
type TimeLabel struct {
	Year   string `json:"Year"`
	Month  string `json:"Month"`
	Day    string `json:"Day"`
	Hour   string `json:"Hour"`
	Minute string `json:"Minute"`
	Second string `json:"Second"`
}

// windowLabel label an evaluation window by its center time
func windowLabel(start, end time.Time) TimeLabel {
	center := start.Add(end.Sub(start) / 2)
	return TimeLabel{
		Year:   fmt.Sprintf("%d", center.Year()),
		Month:  fmt.Sprintf("%d", int(center.Month())),
		Day:    fmt.Sprintf("%d", center.Day()),
		Hour:   fmt.Sprintf("%d", center.Hour()),
		Minute: fmt.Sprintf("%d", center.Minute()),
		Second: fmt.Sprintf("%d", center.Second()),
	}
}

// ResultPoint one charted value
type ResultPoint struct {
	// Label the window center the value belongs to
	Label TimeLabel `json:"label"`
	// Data the metric value. Zero filled points carry 0.
	Data float64 `json:"data"`
}

// UserSeries one user's metric series. DisplayName is "Baseline" for the
// platform account and "You" for the requesting user.
type UserSeries struct {
	// DisplayName how the dashboard labels the series
	DisplayName string `json:"user_id"`
	// Results the chart points in window center order
	Results []ResultPoint `json:"results"`
}

// Ranking the latest metric value of one user
type Ranking struct {
	// ID the ranked user
	ID int64 `json:"id"`
	// Measure the value of the user's most recent evaluation window
	Measure float64 `json:"measures"`
}

// buildSeries shape one user's measurements into chart points ordered by
// window center. Windows without the requested metric are skipped.
func buildSeries(measurements []Measurement, field, measure string) []ResultPoint {
	type orderedPoint struct {
		center time.Time
		point  ResultPoint
	}
	ordered := make([]orderedPoint, 0, len(measurements))
	for _, m := range measurements {
		value, ok := m.Value(field, measure)
		if !ok {
			continue
		}
		center := m.StartDate.Add(m.EndDate.Sub(m.StartDate) / 2)
		ordered = append(ordered, orderedPoint{
			center: center,
			point:  ResultPoint{Label: windowLabel(m.StartDate, m.EndDate), Data: value},
		})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].center.Before(ordered[j].center)
	})
	points := make([]ResultPoint, 0, len(ordered))
	for _, entry := range ordered {
		points = append(points, entry.point)
	}
	return points
}

// alignWithBaseline fill the user's series against the baseline time axis.
// Baseline windows the user never produced get a zero point at the matching
// index, so both series chart against the same axis.
func alignWithBaseline(baseline, user []ResultPoint) []ResultPoint {
	present := make(map[TimeLabel]bool, len(user))
	for _, point := range user {
		present[point.Label] = true
	}
	aligned := make([]ResultPoint, len(user))
	copy(aligned, user)
	for idx, point := range baseline {
		if present[point.Label] {
			continue
		}
		filler := ResultPoint{Label: point.Label, Data: 0}
		if idx >= len(aligned) {
			aligned = append(aligned, filler)
		} else {
			aligned = append(aligned[:idx], append(
				[]ResultPoint{filler}, aligned[idx:]...,
			)...)
		}
	}
	return aligned
}

// latestMeasurement pick a user's most recent evaluation window
func latestMeasurement(measurements []Measurement) (Measurement, bool) {
	if len(measurements) == 0 {
		return Measurement{}, false
	}
	latest := measurements[0]
	for _, m := range measurements[1:] {
		if m.EndDate.After(latest.EndDate) {
			latest = m
		}
	}
	return latest, true
}
