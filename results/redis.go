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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
	"github.com/streambench/provider/common"
)

// ReportStore read/write access to competition evaluation reports
type ReportStore interface {
	// RecordMeasurement store one evaluation window of one user
	RecordMeasurement(
		ctxt context.Context, competitionID int64, measurement Measurement,
	) error
	// UserResults the metric series of one user charted against the baseline
	// account. When both series exist, the user's series is zero filled onto
	// the baseline time axis.
	UserResults(
		ctxt context.Context, competitionID int64, field, measure string, userID int64,
	) ([]UserSeries, error)
	// Rankings the latest metric value of every user in a competition
	Rankings(
		ctxt context.Context, competitionID int64, field, measure string,
	) ([]Ranking, error)
	// StandardMeasures the platform's evaluation metric catalog
	StandardMeasures(ctxt context.Context) ([]string, error)
	// EnsureStandardMeasures add catalog entries not yet present
	EnsureStandardMeasures(ctxt context.Context, measures []string) error
	// Ready whether the backing store answers
	Ready(ctxt context.Context) error
	// Close close the backing connections
	Close() error
}

// redisReportStoreImpl implements ReportStore on Redis. Measurements live in
// a per (competition, user) sorted set scored by window end time, users in a
// per competition set, the metric catalog in a global set.
type redisReportStoreImpl struct {
	common.Component
	client *redis.Client
}

const (
	measurementKeyFormat = "streambench:results:%d:%d"
	userSetKeyFormat     = "streambench:results:%d:users"
	standardMeasuresKey  = "streambench:measures:standard"
)

// GetRedisReportStore define a Redis backed ReportStore
func GetRedisReportStore(
	ctxt context.Context, config common.ResultsStoreConfig,
) (ReportStore, error) {
	logTags := log.Fields{
		"module": "results", "component": "report-store", "instance": config.Addr,
	}
	client := redis.NewClient(&redis.Options{
		Addr: config.Addr, DB: config.DB, Password: config.Password,
	})
	if err := client.Ping(ctxt).Err(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to reach report store")
		return nil, err
	}
	return &redisReportStoreImpl{
		Component: common.Component{LogTags: logTags}, client: client,
	}, nil
}

// RecordMeasurement store one evaluation window of one user
func (s *redisReportStoreImpl) RecordMeasurement(
	ctxt context.Context, competitionID int64, measurement Measurement,
) error {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	document, err := json.Marshal(&measurement)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Unable to serialize measurement")
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.ZAdd(
		ctxt,
		fmt.Sprintf(measurementKeyFormat, competitionID, measurement.UserID),
		redis.Z{Score: float64(measurement.EndDate.Unix()), Member: document},
	)
	pipe.SAdd(
		ctxt,
		fmt.Sprintf(userSetKeyFormat, competitionID),
		strconv.FormatInt(measurement.UserID, 10),
	)
	if _, err := pipe.Exec(ctxt); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to record measurement of user %d", measurement.UserID,
		)
		return err
	}
	return nil
}

// userMeasurements fetch every evaluation window of one user in end time order
func (s *redisReportStoreImpl) userMeasurements(
	ctxt context.Context, competitionID, userID int64,
) ([]Measurement, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	members, err := s.client.ZRange(
		ctxt, fmt.Sprintf(measurementKeyFormat, competitionID, userID), 0, -1,
	).Result()
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to fetch measurements of user %d", userID,
		)
		return nil, err
	}
	measurements := make([]Measurement, 0, len(members))
	for _, member := range members {
		var measurement Measurement
		if err := json.Unmarshal([]byte(member), &measurement); err != nil {
			log.WithError(err).WithFields(localLogTags).Error(
				"Skipping unreadable measurement document",
			)
			continue
		}
		measurements = append(measurements, measurement)
	}
	return measurements, nil
}

// UserResults the metric series of one user charted against the baseline
func (s *redisReportStoreImpl) UserResults(
	ctxt context.Context, competitionID int64, field, measure string, userID int64,
) ([]UserSeries, error) {
	baselineMeasurements, err := s.userMeasurements(ctxt, competitionID, BaselineUserID)
	if err != nil {
		return nil, err
	}
	baseline := buildSeries(baselineMeasurements, field, measure)

	if userID == BaselineUserID {
		return []UserSeries{{DisplayName: "Baseline", Results: baseline}}, nil
	}

	userMeasurements, err := s.userMeasurements(ctxt, competitionID, userID)
	if err != nil {
		return nil, err
	}
	user := buildSeries(userMeasurements, field, measure)

	if len(baseline) == 0 {
		if len(user) == 0 {
			return []UserSeries{}, nil
		}
		return []UserSeries{{DisplayName: "You", Results: user}}, nil
	}
	if len(user) == 0 && len(userMeasurements) == 0 {
		return []UserSeries{{DisplayName: "Baseline", Results: baseline}}, nil
	}
	return []UserSeries{
		{DisplayName: "Baseline", Results: baseline},
		{DisplayName: "You", Results: alignWithBaseline(baseline, user)},
	}, nil
}

// Rankings the latest metric value of every user in a competition
func (s *redisReportStoreImpl) Rankings(
	ctxt context.Context, competitionID int64, field, measure string,
) ([]Ranking, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	members, err := s.client.SMembers(
		ctxt, fmt.Sprintf(userSetKeyFormat, competitionID),
	).Result()
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to list users of competition %d", competitionID,
		)
		return nil, err
	}
	rankings := make([]Ranking, 0, len(members))
	for _, member := range members {
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			log.WithError(err).WithFields(localLogTags).Errorf(
				"Skipping malformed user entry '%s'", member,
			)
			continue
		}
		measurements, err := s.userMeasurements(ctxt, competitionID, userID)
		if err != nil {
			return nil, err
		}
		latest, ok := latestMeasurement(measurements)
		if !ok {
			continue
		}
		value, ok := latest.Value(field, measure)
		if !ok {
			continue
		}
		rankings = append(rankings, Ranking{ID: userID, Measure: value})
	}
	sort.Slice(rankings, func(i, j int) bool {
		return rankings[i].ID < rankings[j].ID
	})
	return rankings, nil
}

// StandardMeasures the platform's evaluation metric catalog
func (s *redisReportStoreImpl) StandardMeasures(ctxt context.Context) ([]string, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	measures, err := s.client.SMembers(ctxt, standardMeasuresKey).Result()
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error(
			"Unable to fetch standard measures",
		)
		return nil, err
	}
	sort.Strings(measures)
	return measures, nil
}

// EnsureStandardMeasures add catalog entries not yet present
func (s *redisReportStoreImpl) EnsureStandardMeasures(
	ctxt context.Context, measures []string,
) error {
	localLogTags, _ := common.UpdateLogTags(ctxt, s.LogTags)

	if len(measures) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(measures))
	for _, measure := range measures {
		members = append(members, measure)
	}
	if err := s.client.SAdd(ctxt, standardMeasuresKey, members...).Err(); err != nil {
		log.WithError(err).WithFields(localLogTags).Error(
			"Unable to update standard measures",
		)
		return err
	}
	return nil
}

// Ready whether the backing store answers
func (s *redisReportStoreImpl) Ready(ctxt context.Context) error {
	return s.client.Ping(ctxt).Err()
}

// Close close the backing connections
func (s *redisReportStoreImpl) Close() error {
	return s.client.Close()
}
