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
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/streambench/provider/bridge"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/gate"
)

// rejectingSessionBridge SessionBridge answering every call the same way
type rejectingSessionBridge struct {
	rejection *bridge.Rejection
	err       error
	metadata  bridge.SessionMetadata
}

func (b *rejectingSessionBridge) Open(
	ctxt context.Context, metadata bridge.SessionMetadata,
) (*bridge.Session, *bridge.Rejection, error) {
	b.metadata = metadata
	return nil, b.rejection, b.err
}

func streamTestRouter(t *testing.T, sessions bridge.SessionBridge) *mux.Router {
	wg := sync.WaitGroup{}
	uut, err := GetAPIRestStreamSessionHandler(
		context.Background(), sessions, &common.HTTPConfig{
			Logging: common.HTTPRequestLogging{RequestIDHeader: "Provider-Request-ID"},
		}, &wg,
	)
	assert.Nil(t, err)

	router := mux.NewRouter()
	_ = RegisterPathPrefix(
		router, "/v1/session/{competitionCode}/stream", MethodHandlers{
			"get": uut.OpenSessionHandler(),
		},
	)
	return router
}

func TestStreamSessionRejections(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	sendRequest := func(sessions bridge.SessionBridge) *httptest.ResponseRecorder {
		router := streamTestRouter(t, sessions)
		req, err := http.NewRequest("GET", "/v1/session/iris23/stream", nil)
		assert.Nil(err)
		req.Header.Set("User-Id", "user-31@unit-test.streambench.org")
		req.Header.Set("Authorization", "dummy-token")
		respRecorder := httptest.NewRecorder()
		router.ServeHTTP(respRecorder, req)
		return respRecorder
	}

	// Case 0: permission denials map to 403
	{
		sessions := &rejectingSessionBridge{rejection: &bridge.Rejection{
			Code: gate.StatusPermissionDenied, Detail: gate.NotSubscribed.Detail(),
		}}
		resp := sendRequest(sessions)
		assert.Equal(http.StatusForbidden, resp.Code)
		assert.Contains(resp.Body.String(), string(gate.StatusPermissionDenied))
		// The call metadata reached the bridge intact
		assert.Equal("user-31@unit-test.streambench.org", sessions.metadata.Identity)
		assert.Equal("iris23", sessions.metadata.CompetitionCode)
		assert.Equal("dummy-token", sessions.metadata.Token)
	}

	// Case 1: unknown competitions map to 400
	{
		resp := sendRequest(&rejectingSessionBridge{rejection: &bridge.Rejection{
			Code: gate.StatusInvalidArgument, Detail: gate.UnknownCompetition.Detail(),
		}})
		assert.Equal(http.StatusBadRequest, resp.Code)
	}

	// Case 2: credential trouble maps to 401
	{
		resp := sendRequest(&rejectingSessionBridge{rejection: &bridge.Rejection{
			Code: gate.StatusUnauthenticated, Detail: gate.InvalidToken.Detail(),
		}})
		assert.Equal(http.StatusUnauthorized, resp.Code)
	}

	// Case 3: infrastructure failure maps to 500
	{
		resp := sendRequest(&rejectingSessionBridge{err: fmt.Errorf("dummy store failure")})
		assert.Equal(http.StatusInternalServerError, resp.Code)
	}
}

func TestWebsocketTransport(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	// Echo server end of the test connection
	serverConn := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	testServer := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			assert.Nil(err)
			serverConn <- conn
		},
	))
	defer testServer.Close()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Nil(err)
	remote := <-serverConn
	defer func() {
		_ = remote.Close()
	}()

	uut := newWebsocketTransport(clientConn)
	readerDone := make(chan bool, 1)
	go func() {
		uut.readLoop()
		readerDone <- true
	}()

	// Case 0: a fresh transport is active
	assert.True(uut.Active())

	// Case 1: sent records arrive as JSON text frames
	assert.Nil(uut.Send(map[string]interface{}{"rowid": 17}))
	mt, payload, err := remote.ReadMessage()
	assert.Nil(err)
	assert.Equal(websocket.TextMessage, mt)
	assert.Contains(string(payload), "17")

	// Case 2: client payloads surface on the reply stream
	assert.Nil(remote.WriteMessage(websocket.TextMessage, []byte(`{"species": "setosa"}`)))
	select {
	case reply := <-uut.Replies():
		assert.Equal(`{"species": "setosa"}`, string(reply))
	case <-time.After(time.Second):
		assert.FailNow("reply never surfaced")
	}

	// Case 3: a dropped connection flips the transport inactive and closes
	// the reply stream
	assert.Nil(remote.Close())
	select {
	case <-readerDone:
	case <-time.After(time.Second):
		assert.FailNow("read loop never observed the disconnect")
	}
	assert.False(uut.Active())
	_, open := <-uut.Replies()
	assert.False(open)

	uut.stop()
	_ = clientConn.Close()
}
