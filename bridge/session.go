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
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/gate"
	"github.com/streambench/provider/store"
)

// SessionBridge per-call orchestrator tying the authorization gate, the
// feed registry, and the prediction relay together
type SessionBridge interface {
	// Open authorize one streaming call and prepare its session. A
	// non-granted decision comes back as a Rejection without any feed
	// having been touched. The error return is for infrastructure
	// failures only.
	Open(ctxt context.Context, metadata SessionMetadata) (*Session, *Rejection, error)
}

// sessionBridgeImpl implements SessionBridge
type sessionBridgeImpl struct {
	common.Component
	authGate  gate.Gate
	registry  FeedRegistry
	codecs    codec.Registry
	publisher FeedPublisher
	cfg       common.BridgeConfig
	validate  *validator.Validate
}

// GetSessionBridge define a SessionBridge
func GetSessionBridge(
	authGate gate.Gate,
	registry FeedRegistry,
	codecs codec.Registry,
	publisher FeedPublisher,
	cfg common.BridgeConfig,
) (SessionBridge, error) {
	logTags := log.Fields{"module": "bridge", "component": "session-bridge"}
	return &sessionBridgeImpl{
		Component: common.Component{LogTags: logTags},
		authGate:  authGate,
		registry:  registry,
		codecs:    codecs,
		publisher: publisher,
		cfg:       cfg,
		validate:  validator.New(),
	}, nil
}

// Open authorize one streaming call and prepare its session
func (b *sessionBridgeImpl) Open(
	ctxt context.Context, metadata SessionMetadata,
) (*Session, *Rejection, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, b.LogTags)

	if err := b.validate.Struct(&metadata); err != nil {
		log.WithError(err).WithFields(localLogTags).Info("Rejecting malformed call metadata")
		return nil, &Rejection{
			Code: gate.StatusInvalidArgument, Detail: "call metadata incomplete",
		}, nil
	}

	// The gate runs from scratch on every call
	result, err := b.authGate.Authorize(
		ctxt, metadata.Identity, metadata.CompetitionCode, metadata.Token,
	)
	if err != nil {
		return nil, nil, err
	}
	if result.Decision != gate.Granted {
		return nil, &Rejection{
			Code: result.Decision.Status(), Detail: result.Decision.Detail(),
		}, nil
	}

	competition := result.Competition
	// Keep the session open past the nominal end so late predictions near
	// the boundary are still accepted
	grace := time.Duration(
		b.cfg.GraceIntervals*competition.PredictionsTimeInterval,
	) * time.Second
	endTime := competition.EndDate.Add(grace)

	wireCodec, err := b.codecs.CodecFor(competition.ID, competition.Config)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"No codec for competition %d", competition.ID,
		)
		return nil, nil, err
	}

	reader, err := b.registry.GetOrCreate(metadata.Identity, FeedParams{
		Subject: common.FeedSubjectName(competition.Name),
		ConsumerTimeout: time.Duration(competition.InitialTrainingTime) *
			10 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	logTags := log.Fields{
		"module":      "bridge",
		"component":   "session",
		"competition": competition.ID,
		"user":        result.User.ID,
	}
	return &Session{
		Component:   common.Component{LogTags: logTags},
		user:        result.User,
		competition: competition,
		wireCodec:   wireCodec,
		reader:      reader,
		publisher:   b.publisher,
		endTime:     endTime,
		cfg:         b.cfg,
		baseContext: ctxt,
		lock:        &sync.Mutex{},
	}, nil, nil
}

// ==============================================================================

// Session one authorized, live streaming call. Owned exclusively by the
// call handler for the call's duration.
type Session struct {
	common.Component
	user        *store.User
	competition *store.Competition
	wireCodec   codec.Codec
	reader      FeedReader
	publisher   FeedPublisher
	endTime     time.Time
	cfg         common.BridgeConfig
	baseContext context.Context
	lock        *sync.Mutex
	streaming   bool
}

// EndTime the session's negotiated end time
func (s *Session) EndTime() time.Time {
	return s.endTime
}

// Stream drive one client transport until the session deadline passes or
// the transport goes inactive. The prediction relay runs concurrently for
// the whole phase; on loop exit it is signaled to stop and joined before
// Stream returns.
func (s *Session) Stream(transport ClientTransport) error {
	s.lock.Lock()
	if s.streaming {
		s.lock.Unlock()
		err := fmt.Errorf("session already streaming")
		log.WithError(err).WithFields(s.LogTags).Error("Unable to start streaming")
		return err
	}
	s.streaming = true
	s.lock.Unlock()

	pollInterval := time.Duration(s.cfg.PollInterval) * time.Millisecond
	sendPause := time.Duration(s.cfg.SendPause) * time.Millisecond

	// The relay's stop signal is owned here and fires on loop exit
	relayCtxt, relayCancel := context.WithCancel(s.baseContext)
	relayWG := &sync.WaitGroup{}
	relay, err := GetPredictionRelay(relayCtxt, s.wireCodec, s.publisher, RelayParams{
		CompetitionID: s.competition.ID,
		UserID:        s.user.ID,
		Subject:       common.PredictionsSubjectName(s.competition.Name),
		IdleTimeout:   time.Duration(s.cfg.RelayIdleTimeout) * time.Second,
		PollInterval:  pollInterval,
		HardDeadline:  s.endTime,
	})
	if err != nil {
		relayCancel()
		log.WithError(err).WithFields(s.LogTags).Error("Unable to define relay")
		return err
	}
	if err := relay.Start(transport.Replies(), relayWG); err != nil {
		relayCancel()
		log.WithError(err).WithFields(s.LogTags).Error("Unable to start relay")
		return err
	}
	// No relay task outlives its session
	defer func() {
		relayCancel()
		relayWG.Wait()
		log.WithFields(s.LogTags).Debug("Prediction relay joined")
	}()

	log.WithFields(s.LogTags).Infof(
		"Streaming until %s", s.endTime.Format(time.RFC3339),
	)
	for transport.Active() {
		if time.Now().After(s.endTime) {
			log.WithFields(s.LogTags).Info("Session end time reached")
			break
		}
		if s.baseContext.Err() != nil {
			log.WithFields(s.LogTags).Info("Session context canceled")
			break
		}
		wire, err := s.reader.Poll(pollInterval)
		if err != nil {
			// Feed trouble ends the streaming phase like a deadline would
			log.WithError(err).WithFields(s.LogTags).Error("Inbound feed failure")
			break
		}
		if wire == nil {
			continue
		}
		record, err := s.wireCodec.Decode(wire)
		if err != nil {
			continue
		}
		time.Sleep(sendPause)
		if !transport.Active() {
			break
		}
		if err := transport.Send(s.wireCodec.ToMessage(record)); err != nil {
			log.WithError(err).WithFields(s.LogTags).Debug("Record send failed")
		}
	}
	log.WithFields(s.LogTags).Info("Client disconnect")
	return nil
}
