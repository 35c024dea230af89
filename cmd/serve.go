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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/streambench/provider/apis"
	"github.com/streambench/provider/bridge"
	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/core"
	"github.com/streambench/provider/gate"
	"github.com/streambench/provider/results"
	"github.com/streambench/provider/store"
)

// accessLogger io.Writer bridge feeding HTTP access logs into the app logger
type accessLogger struct {
	common.Component
}

// Write logging support
func (l accessLogger) Write(p []byte) (n int, err error) {
	log.WithFields(l.LogTags).Infof("%s", p)
	return len(p), nil
}

// RunProviderServer run the provider API server
func RunProviderServer(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient *core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "provider",
		"instance":  instance,
	}
	if config.Provider == nil {
		return fmt.Errorf("provider server can't start without its configurations")
	}

	// -------------------------------------------------------------------
	// Prepare the backing stores

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

	// -------------------------------------------------------------------
	// Assemble the session bridge

	tokens, err := gate.GetHMACTokenVerifier(config.Token.SigningSecret)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define token verifier")
		return err
	}
	authGate, err := gate.GetGate(metadata, metadata, metadata, tokens)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define authorization gate")
		return err
	}
	registry, err := bridge.GetFeedRegistry(bridge.JetStreamFeedReaderFactory(natsClient))
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define feed registry")
		return err
	}
	codecs, err := codec.GetRegistry()
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define codec registry")
		return err
	}
	publisher, err := bridge.GetJetStreamPublisher(natsClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define feed publisher")
		return err
	}
	sessions, err := bridge.GetSessionBridge(
		authGate, registry, codecs, publisher, config.Bridge,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define session bridge")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	httpCfg := &config.Provider.HTTPSetting
	streamHandler, err := apis.GetAPIRestStreamSessionHandler(
		localCtxt, sessions, httpCfg, wg,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream handler")
		return err
	}
	dashboardHandler, err := apis.GetAPIRestDashboardHandler(natsClient, reports, httpCfg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define dashboard handler")
		return err
	}

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(
		router, config.Provider.Endpoints.PathPrefix, nil,
	)

	// Streaming session
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/session/{competitionCode}/stream", apis.MethodHandlers{
			"get": streamHandler.OpenSessionHandler(),
		},
	)

	// Dashboard reports
	competitionRouter := apis.RegisterPathPrefix(
		mainRouter, "/v1/competition/{competitionID}", nil,
	)
	_ = apis.RegisterPathPrefix(competitionRouter, "/rankings", apis.MethodHandlers{
		"get": dashboardHandler.RankingsHandler(),
	})
	_ = apis.RegisterPathPrefix(competitionRouter, "/results/{userID}", apis.MethodHandlers{
		"get": dashboardHandler.UserResultsHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/measures", apis.MethodHandlers{
		"get": dashboardHandler.StandardMeasuresHandler(),
	})

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", apis.MethodHandlers{
		"get": dashboardHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", apis.MethodHandlers{
		"get": dashboardHandler.ReadyHandler(),
	})

	// Add logging
	requestLogs := accessLogger{Component: common.Component{LogTags: log.Fields{
		"module": "cmd", "component": "provider-access-log", "instance": instance,
	}}}
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(requestLogs, next)
	})

	serverCfg := httpCfg.Server
	serverListen := fmt.Sprintf("%s:%d", serverCfg.ListenOn, serverCfg.Port)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  time.Second * time.Duration(serverCfg.ReadTimeout),
		WriteTimeout: time.Second * time.Duration(serverCfg.WriteTimeout),
		IdleTimeout:  time.Second * time.Duration(serverCfg.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Cancel runtime context on shutdown
	httpSrv.RegisterOnShutdown(lclCancel)

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runTimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
