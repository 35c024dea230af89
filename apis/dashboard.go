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

package apis

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"

	"github.com/streambench/provider/common"
	"github.com/streambench/provider/core"
	"github.com/streambench/provider/results"
)

// APIRestDashboardHandler REST handler for competition dashboards
type APIRestDashboardHandler struct {
	goutils.RestAPIHandler
	natsClient *core.NatsClient
	reports    results.ReportStore
}

// GetAPIRestDashboardHandler define APIRestDashboardHandler
func GetAPIRestDashboardHandler(
	natsClient *core.NatsClient,
	reports results.ReportStore,
	httpConfig *common.HTTPConfig,
) (APIRestDashboardHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "dashboard",
	}
	return APIRestDashboardHandler{
		RestAPIHandler: goutils.RestAPIHandler{
			Component: goutils.Component{
				LogTags: logTags,
				LogTagModifiers: []goutils.LogMetadataModifier{
					goutils.ModifyLogMetadataByRestRequestParam,
				},
			},
			CallRequestIDHeaderField: &httpConfig.Logging.RequestIDHeader,
			DoNotLogHeaders: func() map[string]bool {
				result := map[string]bool{}
				for _, v := range httpConfig.Logging.DoNotLogHeaders {
					result[v] = true
				}
				return result
			}(),
		},
		natsClient: natsClient,
		reports:    reports,
	}, nil
}

// fetchReportParams read the competition ID path variable and the field /
// measure query parameters shared by the report endpoints
func fetchReportParams(r *http.Request) (int64, string, string, error) {
	vars := mux.Vars(r)
	rawID, ok := vars["competitionID"]
	if !ok {
		return 0, "", "", fmt.Errorf("no competition ID provided")
	}
	competitionID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("competition ID '%s' is not numeric", rawID)
	}
	queries := r.URL.Query()
	field := queries.Get("field")
	if field == "" {
		return 0, "", "", fmt.Errorf("no field provided")
	}
	measure := queries.Get("measure")
	if measure == "" {
		return 0, "", "", fmt.Errorf("no measure provided")
	}
	return competitionID, field, measure, nil
}

// APIRestRespRankings response wrapper for competition rankings
type APIRestRespRankings struct {
	goutils.RestAPIBaseResponse
	// Rankings the latest metric value per user
	Rankings []results.Ranking `json:"rankings"`
}

// Rankings godoc
// @Summary Competition rankings
// @Description Fetch the latest evaluation metric value of every user in a competition
// @tags Dashboard
// @Produce json
// @Param Provider-Request-ID header string false "User provided request ID to match against logs"
// @Param competitionID path int true "Competition ID"
// @Param field query string true "Label column name"
// @Param measure query string true "Evaluation metric name"
// @Success 200 {object} APIRestRespRankings "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/competition/{competitionID}/rankings [get]
func (h APIRestDashboardHandler) Rankings(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	competitionID, field, measure, err := fetchReportParams(r)
	if err != nil {
		msg := "Unable to read report parameters"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	rankings, err := h.reports.Rankings(r.Context(), competitionID, field, measure)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch rankings of competition %d", competitionID)
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, err.Error(),
		)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespRankings{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()), Rankings: rankings,
	}
}

// RankingsHandler Wrapper around Rankings
func (h APIRestDashboardHandler) RankingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Rankings(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespUserResults response wrapper for one user's metric series
type APIRestRespUserResults struct {
	goutils.RestAPIBaseResponse
	// Results the baseline and user metric series
	Results []results.UserSeries `json:"results"`
}

// UserResults godoc
// @Summary Per-user competition results
// @Description Fetch one user's evaluation metric series charted against the
// platform baseline
// @tags Dashboard
// @Produce json
// @Param Provider-Request-ID header string false "User provided request ID to match against logs"
// @Param competitionID path int true "Competition ID"
// @Param userID path int true "User ID"
// @Param field query string true "Label column name"
// @Param measure query string true "Evaluation metric name"
// @Success 200 {object} APIRestRespUserResults "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/competition/{competitionID}/results/{userID} [get]
func (h APIRestDashboardHandler) UserResults(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	competitionID, field, measure, err := fetchReportParams(r)
	if err != nil {
		msg := "Unable to read report parameters"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	vars := mux.Vars(r)
	rawUserID, ok := vars["userID"]
	if !ok {
		msg := "No user ID provided"
		log.WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg)
		return
	}
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil {
		msg := fmt.Sprintf("User ID '%s' is not numeric", rawUserID)
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	series, err := h.reports.UserResults(r.Context(), competitionID, field, measure, userID)
	if err != nil {
		msg := fmt.Sprintf(
			"Unable to fetch results of user %d in competition %d", userID, competitionID,
		)
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, err.Error(),
		)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespUserResults{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()), Results: series,
	}
}

// UserResultsHandler Wrapper around UserResults
func (h APIRestDashboardHandler) UserResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.UserResults(w, r)
	}
}

// -----------------------------------------------------------------------

// APIRestRespMeasures response wrapper for the evaluation metric catalog
type APIRestRespMeasures struct {
	goutils.RestAPIBaseResponse
	// Measures the known evaluation metric names
	Measures []string `json:"measures"`
}

// StandardMeasures godoc
// @Summary Evaluation metric catalog
// @Description Fetch the standard set of evaluation metrics offered on the platform
// @tags Dashboard
// @Produce json
// @Param Provider-Request-ID header string false "User provided request ID to match against logs"
// @Success 200 {object} APIRestRespMeasures "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/measures [get]
func (h APIRestDashboardHandler) StandardMeasures(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	measures, err := h.reports.StandardMeasures(r.Context())
	if err != nil {
		msg := "Unable to fetch standard measures"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, err.Error(),
		)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespMeasures{
		RestAPIBaseResponse: h.GetStdRESTSuccessMsg(r.Context()), Measures: measures,
	}
}

// StandardMeasuresHandler Wrapper around StandardMeasures
func (h APIRestDashboardHandler) StandardMeasuresHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.StandardMeasures(w, r)
	}
}

// =======================================================================
// Health Checks

// -----------------------------------------------------------------------

// Alive godoc
// @Summary For provider REST API liveness check
// @Description Will return success to indicate provider REST API module is live
// @tags Dashboard
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /alive [get]
func (h APIRestDashboardHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestDashboardHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For provider REST API readiness check
// @Description Will return success if provider REST API module is ready for use
// @tags Dashboard
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /ready [get]
func (h APIRestDashboardHandler) Ready(w http.ResponseWriter, r *http.Request) {
	msg := "not ready"
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	if h.natsClient.NATs().Status() != nats.CONNECTED {
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusInternalServerError, msg, msg)
		return
	}
	if err := h.reports.Ready(r.Context()); err != nil {
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, err.Error(),
		)
		return
	}
	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// ReadyHandler Wrapper around Ready
func (h APIRestDashboardHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
