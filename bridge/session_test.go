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

package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/gate"
	"github.com/streambench/provider/store"
)

// cannedGate Gate returning a fixed result
type cannedGate struct {
	result gate.Result
	err    error
	calls  int
}

func (g *cannedGate) Authorize(
	ctxt context.Context, identity, competitionCode, token string,
) (gate.Result, error) {
	g.calls++
	return g.result, g.err
}

// scriptedFeedReader FeedReader handing out a fixed payload sequence
type scriptedFeedReader struct {
	lock     sync.Mutex
	payloads [][]byte
	pollErr  error
}

func (r *scriptedFeedReader) Poll(timeout time.Duration) ([]byte, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.pollErr != nil {
		return nil, r.pollErr
	}
	if len(r.payloads) == 0 {
		return nil, nil
	}
	next := r.payloads[0]
	r.payloads = r.payloads[1:]
	return next, nil
}

// fakeTransport scripted ClientTransport
type fakeTransport struct {
	lock    sync.Mutex
	active  bool
	sent    []codec.Message
	sendErr error
	replies chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{active: true, replies: make(chan []byte)}
}

func (c *fakeTransport) Active() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.active
}

func (c *fakeTransport) disconnect() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.active = false
}

func (c *fakeTransport) Send(msg codec.Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeTransport) received() []codec.Message {
	c.lock.Lock()
	defer c.lock.Unlock()
	result := make([]codec.Message, len(c.sent))
	copy(result, c.sent)
	return result
}

func (c *fakeTransport) Replies() <-chan []byte {
	return c.replies
}

func testBridgeConfig() common.BridgeConfig {
	return common.BridgeConfig{
		RelayIdleTimeout: 30, PollInterval: 5, SendPause: 1, GraceIntervals: 5,
	}
}

func testCompetition(endOffset time.Duration) *store.Competition {
	return &store.Competition{
		ID:                      5,
		Name:                    "Iris Stream",
		Code:                    "iris23",
		EndDate:                 time.Now().Add(endOffset),
		PredictionsTimeInterval: 2,
		InitialTrainingTime:     60,
		Config:                  map[string]interface{}{"species": map[string]interface{}{}},
	}
}

func testSessionBridge(
	t *testing.T, authGate gate.Gate, reader FeedReader, publisher FeedPublisher,
) (SessionBridge, *int) {
	factoryCalls := 0
	factory := func(userID string, params FeedParams) (FeedReader, error) {
		factoryCalls++
		return reader, nil
	}
	registry, err := GetFeedRegistry(factory)
	assert.Nil(t, err)
	codecs, err := codec.GetRegistry()
	assert.Nil(t, err)
	uut, err := GetSessionBridge(authGate, registry, codecs, publisher, testBridgeConfig())
	assert.Nil(t, err)
	return uut, &factoryCalls
}

func TestSessionBridgeOpen(t *testing.T) {
	assert := assert.New(t)
	ctxt := context.Background()

	user := &store.User{ID: 31, Email: "user-31@unit-test.streambench.org"}
	metadata := SessionMetadata{
		Identity:        user.Email,
		CompetitionCode: "iris23",
		Token:           "dummy-token",
	}

	// Case 0: incomplete metadata is rejected before the gate runs
	authGate := &cannedGate{result: gate.Result{Decision: gate.Granted}}
	uut, factoryCalls := testSessionBridge(
		t, authGate, &scriptedFeedReader{}, &channelPublisher{},
	)
	session, rejection, err := uut.Open(ctxt, SessionMetadata{Identity: "not an email"})
	assert.Nil(err)
	assert.Nil(session)
	assert.NotNil(rejection)
	assert.Equal(gate.StatusInvalidArgument, rejection.Code)
	assert.Equal(0, authGate.calls)
	assert.Equal(0, *factoryCalls)

	// Case 1: a denied call is rejected without touching the feed
	authGate = &cannedGate{result: gate.Result{Decision: gate.NotSubscribed}}
	uut, factoryCalls = testSessionBridge(
		t, authGate, &scriptedFeedReader{}, &channelPublisher{},
	)
	session, rejection, err = uut.Open(ctxt, metadata)
	assert.Nil(err)
	assert.Nil(session)
	assert.NotNil(rejection)
	assert.Equal(gate.StatusPermissionDenied, rejection.Code)
	assert.Equal(gate.NotSubscribed.Detail(), rejection.Detail)
	assert.Equal(1, authGate.calls)
	assert.Equal(0, *factoryCalls)

	// Case 2: a store failure surfaces as an error, not a rejection
	authGate = &cannedGate{err: fmt.Errorf("dummy store failure")}
	uut, _ = testSessionBridge(t, authGate, &scriptedFeedReader{}, &channelPublisher{})
	session, rejection, err = uut.Open(ctxt, metadata)
	assert.NotNil(err)
	assert.Nil(session)
	assert.Nil(rejection)

	// Case 3: a granted call subscribes and carries the extended end time
	competition := testCompetition(time.Hour)
	authGate = &cannedGate{result: gate.Result{
		Decision: gate.Granted, User: user, Competition: competition,
	}}
	uut, factoryCalls = testSessionBridge(
		t, authGate, &scriptedFeedReader{}, &channelPublisher{},
	)
	session, rejection, err = uut.Open(ctxt, metadata)
	assert.Nil(err)
	assert.Nil(rejection)
	assert.NotNil(session)
	assert.Equal(1, *factoryCalls)
	expectedEnd := competition.EndDate.Add(
		time.Duration(5*competition.PredictionsTimeInterval) * time.Second,
	)
	assert.Equal(expectedEnd, session.EndTime())
}

func TestSessionStreaming(t *testing.T) {
	assert := assert.New(t)
	ctxt := context.Background()

	user := &store.User{ID: 31, Email: "user-31@unit-test.streambench.org"}
	metadata := SessionMetadata{
		Identity:        user.Email,
		CompetitionCode: "iris23",
		Token:           "dummy-token",
	}

	// Case 0: feed records flow to the client until disconnect
	reader := &scriptedFeedReader{payloads: [][]byte{
		[]byte(`{"rowid": 0, "sepal_length": 5.1, "species": "setosa"}`),
		[]byte(`{"rowid": 1, "sepal_length": 4.9, "species": "setosa"}`),
	}}
	authGate := &cannedGate{result: gate.Result{
		Decision: gate.Granted, User: user, Competition: testCompetition(time.Hour),
	}}
	uut, _ := testSessionBridge(
		t, authGate, reader, &channelPublisher{published: make(chan []byte, 16)},
	)
	session, rejection, err := uut.Open(ctxt, metadata)
	assert.Nil(err)
	assert.Nil(rejection)
	transport := newFakeTransport()
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- session.Stream(transport)
	}()
	assert.Eventually(func() bool {
		return len(transport.received()) == 2
	}, time.Second, time.Millisecond*10)
	received := transport.received()
	assert.Equal(float64(0), received[0]["rowid"])
	assert.Equal(float64(1), received[1]["rowid"])
	transport.disconnect()
	select {
	case err := <-streamDone:
		assert.Nil(err)
	case <-time.After(time.Second):
		assert.FailNow("stream never observed the disconnect")
	}

	// Case 1: streaming the same session twice is refused
	assert.NotNil(session.Stream(transport))

	// Case 2: a passed end time ends the stream without reading the feed
	authGate = &cannedGate{result: gate.Result{
		Decision: gate.Granted, User: user, Competition: testCompetition(-time.Hour),
	}}
	failingReader := &scriptedFeedReader{pollErr: fmt.Errorf("should not be polled")}
	uut, _ = testSessionBridge(
		t, authGate, failingReader, &channelPublisher{published: make(chan []byte, 16)},
	)
	session, rejection, err = uut.Open(ctxt, metadata)
	assert.Nil(err)
	assert.Nil(rejection)
	transport = newFakeTransport()
	go func() {
		streamDone <- session.Stream(transport)
	}()
	select {
	case err := <-streamDone:
		assert.Nil(err)
	case <-time.After(time.Second):
		assert.FailNow("stream never observed the end time")
	}
	assert.Empty(transport.received())

	// Case 3: feed trouble ends the stream like a deadline
	authGate = &cannedGate{result: gate.Result{
		Decision: gate.Granted, User: user, Competition: testCompetition(time.Hour),
	}}
	uut, _ = testSessionBridge(
		t,
		authGate,
		&scriptedFeedReader{pollErr: fmt.Errorf("dummy feed failure")},
		&channelPublisher{published: make(chan []byte, 16)},
	)
	session, rejection, err = uut.Open(ctxt, metadata)
	assert.Nil(err)
	assert.Nil(rejection)
	transport = newFakeTransport()
	go func() {
		streamDone <- session.Stream(transport)
	}()
	select {
	case err := <-streamDone:
		assert.Nil(err)
	case <-time.After(time.Second):
		assert.FailNow("stream never observed the feed failure")
	}
	assert.Empty(transport.received())

	// Case 4: a canceled base context ends the stream
	cancelable, cancel := context.WithCancel(ctxt)
	authGate = &cannedGate{result: gate.Result{
		Decision: gate.Granted, User: user, Competition: testCompetition(time.Hour),
	}}
	uut, _ = testSessionBridge(
		t, authGate, &scriptedFeedReader{}, &channelPublisher{published: make(chan []byte, 16)},
	)
	session, rejection, err = uut.Open(cancelable, metadata)
	assert.Nil(err)
	assert.Nil(rejection)
	transport = newFakeTransport()
	go func() {
		streamDone <- session.Stream(transport)
	}()
	cancel()
	select {
	case err := <-streamDone:
		assert.Nil(err)
	case <-time.After(time.Second):
		assert.FailNow("stream never observed the cancel")
	}
}
