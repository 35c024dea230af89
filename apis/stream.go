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
	"context"
	"net/http"
	"sync"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/streambench/provider/bridge"
	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/gate"
)

// APIRestStreamSessionHandler REST handler for the streaming session endpoint
type APIRestStreamSessionHandler struct {
	goutils.RestAPIHandler
	sessions    bridge.SessionBridge
	upgrader    websocket.Upgrader
	baseContext context.Context
	wg          *sync.WaitGroup
}

// GetAPIRestStreamSessionHandler define APIRestStreamSessionHandler
func GetAPIRestStreamSessionHandler(
	baseContext context.Context,
	sessions bridge.SessionBridge,
	httpConfig *common.HTTPConfig,
	wg *sync.WaitGroup,
) (APIRestStreamSessionHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "stream-session",
	}
	return APIRestStreamSessionHandler{
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
		sessions: sessions,
		upgrader: websocket.Upgrader{
			// Session admission is decided by the authorization gate, not
			// the request origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		baseContext: baseContext,
		wg:          wg,
	}, nil
}

// rejectionHTTPStatus map an RPC level rejection status onto an HTTP status
func rejectionHTTPStatus(code gate.StatusCode) int {
	switch code {
	case gate.StatusPermissionDenied:
		return http.StatusForbidden
	case gate.StatusInvalidArgument:
		return http.StatusBadRequest
	case gate.StatusUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// OpenSession godoc
// @Summary Open a bidirectional streaming session
// @Description Open a per-user streaming session against a competition. The caller
// identity and subscription token are checked before the connection upgrades to a
// websocket. Once upgraded, competition records flow to the client and client
// predictions flow back onto the platform until the session end time passes or the
// client disconnects.
// @tags Session
// @Produce json
// @Param Provider-Request-ID header string false "User provided request ID to match against logs"
// @Param User-Id header string true "Email identity of the calling user"
// @Param Authorization header string true "Subscription token of the calling user"
// @Param competitionCode path string true "Code of the competition to stream"
// @Success 101 {string} string "connection upgraded"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 401 {object} goutils.RestAPIBaseResponse "error"
// @Failure 403 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Router /v1/session/{competitionCode}/stream [get]
func (h APIRestStreamSessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())

	writeReject := func(respCode int, respBody interface{}) {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}

	vars := mux.Vars(r)
	competitionCode, ok := vars["competitionCode"]
	if !ok {
		msg := "No competition code provided"
		log.WithFields(localLogTags).Errorf(msg)
		writeReject(
			http.StatusBadRequest,
			h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, msg),
		)
		return
	}

	metadata := bridge.SessionMetadata{
		Identity:        r.Header.Get("User-Id"),
		CompetitionCode: competitionCode,
		Token:           r.Header.Get("Authorization"),
	}

	// The session outlives the upgrade handshake, so it hangs off the server
	// context instead of the request. Server stop ends it.
	sessionCtxt, cancel := context.WithCancel(h.baseContext)
	defer cancel()

	session, rejection, err := h.sessions.Open(sessionCtxt, metadata)
	if err != nil {
		msg := "Unable to open session"
		log.WithError(err).WithFields(localLogTags).Errorf(msg)
		writeReject(
			http.StatusInternalServerError,
			h.GetStdRESTErrorMsg(
				r.Context(), http.StatusInternalServerError, msg, err.Error(),
			),
		)
		return
	}
	if rejection != nil {
		respCode := rejectionHTTPStatus(rejection.Code)
		log.WithFields(localLogTags).Infof(
			"Session rejected with %s", rejection.Code,
		)
		writeReject(
			respCode,
			h.GetStdRESTErrorMsg(
				r.Context(), respCode, string(rejection.Code), rejection.Detail,
			),
		)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.WithError(err).WithFields(localLogTags).Error("Websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	transport := newWebsocketTransport(conn)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		transport.readLoop()
	}()
	defer transport.stop()

	if err := session.Stream(transport); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Session streaming failure")
	}
}

// OpenSessionHandler Wrapper around OpenSession
func (h APIRestStreamSessionHandler) OpenSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.OpenSession(w, r)
	}
}

// ==============================================================================

// websocketTransport bridge.ClientTransport over one websocket connection
type websocketTransport struct {
	conn     *websocket.Conn
	replies  chan []byte
	stopped  chan bool
	stopOnce sync.Once
	lock     sync.Mutex
	active   bool
}

// newWebsocketTransport define a websocketTransport
func newWebsocketTransport(conn *websocket.Conn) *websocketTransport {
	return &websocketTransport{
		conn:    conn,
		replies: make(chan []byte),
		stopped: make(chan bool),
		active:  true,
	}
}

// Active whether the call is still live
func (t *websocketTransport) Active() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.active
}

// Send forward one record to the client
func (t *websocketTransport) Send(msg codec.Message) error {
	return t.conn.WriteJSON(msg)
}

// Replies the stream of raw prediction payloads sent by the client
func (t *websocketTransport) Replies() <-chan []byte {
	return t.replies
}

// markInactive flip the liveness flag
func (t *websocketTransport) markInactive() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.active = false
}

// stop release the read loop. Safe to call multiple times.
func (t *websocketTransport) stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
	})
	t.markInactive()
}

// readLoop pump client payloads into the reply stream until the connection
// drops or the transport stops
func (t *websocketTransport) readLoop() {
	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.markInactive()
			close(t.replies)
			return
		}
		select {
		case t.replies <- payload:
		case <-t.stopped:
			// No one is draining replies anymore
			return
		}
	}
}
