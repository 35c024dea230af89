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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testMeasurement(userID int64, start time.Time, window time.Duration, acc float64) Measurement {
	return Measurement{
		UserID:    userID,
		StartDate: start,
		EndDate:   start.Add(window),
		Measures: map[string]map[string]float64{
			"species": {"ACC": acc, "Kappa": acc / 2},
		},
	}
}

func TestWindowLabel(t *testing.T) {
	assert := assert.New(t)

	// Case 0: the label is the calendar split of the window center
	start := time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)
	label := windowLabel(start, start.Add(time.Minute))
	assert.Equal(
		TimeLabel{
			Year: "2026", Month: "3", Day: "14", Hour: "10", Minute: "30", Second: "30",
		},
		label,
	)
}

func TestBuildSeries(t *testing.T) {
	assert := assert.New(t)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	// Case 0: points come out in window center order regardless of input order
	measurements := []Measurement{
		testMeasurement(31, base.Add(time.Minute*2), time.Minute, 0.92),
		testMeasurement(31, base, time.Minute, 0.90),
		testMeasurement(31, base.Add(time.Minute), time.Minute, 0.91),
	}
	series := buildSeries(measurements, "species", "ACC")
	assert.Len(series, 3)
	assert.Equal(0.90, series[0].Data)
	assert.Equal(0.91, series[1].Data)
	assert.Equal(0.92, series[2].Data)

	// Case 1: windows without the requested metric are skipped
	measurements = append(measurements, Measurement{
		UserID:    31,
		StartDate: base.Add(time.Minute * 3),
		EndDate:   base.Add(time.Minute * 4),
		Measures:  map[string]map[string]float64{"rowid": {"MSE": 1.5}},
	})
	series = buildSeries(measurements, "species", "ACC")
	assert.Len(series, 3)

	// Case 2: a different metric of the same field reads cleanly
	series = buildSeries(measurements, "species", "Kappa")
	assert.Len(series, 3)
	assert.Equal(0.45, series[0].Data)

	// Case 3: no measurements give an empty series
	assert.Empty(buildSeries(nil, "species", "ACC"))
}

func TestAlignWithBaseline(t *testing.T) {
	assert := assert.New(t)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	window := func(offset int) (time.Time, time.Time) {
		start := base.Add(time.Duration(offset) * time.Minute)
		return start, start.Add(time.Minute)
	}
	point := func(offset int, value float64) ResultPoint {
		start, end := window(offset)
		return ResultPoint{Label: windowLabel(start, end), Data: value}
	}

	baseline := []ResultPoint{point(0, 0.5), point(1, 0.6), point(2, 0.7)}

	// Case 0: a complete user series is untouched
	user := []ResultPoint{point(0, 0.9), point(1, 0.8), point(2, 0.7)}
	assert.Equal(user, alignWithBaseline(baseline, user))

	// Case 1: a missed window in the middle gets a zero point at its index
	user = []ResultPoint{point(0, 0.9), point(2, 0.7)}
	aligned := alignWithBaseline(baseline, user)
	assert.Len(aligned, 3)
	assert.Equal(0.9, aligned[0].Data)
	assert.Equal(ResultPoint{Label: point(1, 0).Label, Data: 0}, aligned[1])
	assert.Equal(0.7, aligned[2].Data)

	// Case 2: a late joiner is zero filled from the front
	user = []ResultPoint{point(2, 0.7)}
	aligned = alignWithBaseline(baseline, user)
	assert.Len(aligned, 3)
	assert.Equal(0.0, aligned[0].Data)
	assert.Equal(0.0, aligned[1].Data)
	assert.Equal(0.7, aligned[2].Data)

	// Case 3: an empty user series becomes all zeros on the baseline axis
	aligned = alignWithBaseline(baseline, nil)
	assert.Len(aligned, 3)
	for idx, filled := range aligned {
		assert.Equal(baseline[idx].Label, filled.Label)
		assert.Equal(0.0, filled.Data)
	}
}

func TestLatestMeasurement(t *testing.T) {
	assert := assert.New(t)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

	// Case 0: no measurements
	_, ok := latestMeasurement(nil)
	assert.False(ok)

	// Case 1: the window with the latest end wins
	measurements := []Measurement{
		testMeasurement(31, base.Add(time.Minute), time.Minute, 0.91),
		testMeasurement(31, base.Add(time.Minute*5), time.Minute, 0.95),
		testMeasurement(31, base, time.Minute, 0.90),
	}
	latest, ok := latestMeasurement(measurements)
	assert.True(ok)
	value, ok := latest.Value("species", "ACC")
	assert.True(ok)
	assert.Equal(0.95, value)
}
