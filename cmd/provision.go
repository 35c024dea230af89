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

package cmd

import (
	"context"
	"time"

	"github.com/apex/log"

	"github.com/streambench/provider/common"
	"github.com/streambench/provider/core"
	"github.com/streambench/provider/results"
	"github.com/streambench/provider/store"
)

// standardMeasures the evaluation metric catalog seeded during provisioning
var standardMeasures = []string{"ACC", "F1", "Kappa", "MAPE", "MSE"}

// ProvisionStreams ensure broker streams exist for every registered
// competition, and seed the evaluation metric catalog
func ProvisionStreams(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient *core.NatsClient,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "provision",
		"instance":  instance,
	}

	metadata, err := store.GetSqliteMetadataStore(store.SqliteStoreParams{
		DBPath: config.Metadata.DBPath, PoolSize: config.Metadata.PoolSize,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open metadata store")
		return err
	}
	defer func() {
		if err := metadata.Close(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Metadata store close failure")
		}
	}()

	competitions, err := metadata.ListCompetitions(runTimeContext)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to list competitions")
		return err
	}

	for _, competition := range competitions {
		// Record retention scales with the release interval; replays past a
		// few sessions worth of records serve no one
		maxAge := time.Duration(
			competition.PredictionsTimeInterval*competition.InitialTrainingTime,
		) * time.Second

		inputSubject := common.FeedSubjectName(competition.Name)
		if err := natsClient.EnsureStream(runTimeContext, core.StreamParams{
			Name: inputSubject, Subjects: []string{inputSubject}, MaxAge: maxAge,
		}); err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Unable to provision input stream of competition %d", competition.ID,
			)
			return err
		}

		predictionsSubject := common.PredictionsSubjectName(competition.Name)
		if err := natsClient.EnsureStream(runTimeContext, core.StreamParams{
			Name:     predictionsSubject,
			Subjects: []string{predictionsSubject},
			MaxAge:   maxAge,
		}); err != nil {
			log.WithError(err).WithFields(logTags).Errorf(
				"Unable to provision predictions stream of competition %d", competition.ID,
			)
			return err
		}

		log.WithFields(logTags).Infof(
			"Provisioned streams %s and %s for competition %d",
			inputSubject, predictionsSubject, competition.ID,
		)
	}

	reports, err := results.GetRedisReportStore(runTimeContext, config.Results)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open report store")
		return err
	}
	defer func() {
		if err := reports.Close(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Report store close failure")
		}
	}()
	if err := reports.EnsureStandardMeasures(runTimeContext, standardMeasures); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to seed standard measures")
		return err
	}

	log.WithFields(logTags).Infof(
		"Provisioning complete for %d competitions", len(competitions),
	)
	return nil
}
