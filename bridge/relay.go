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
	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/common"
)

// RelayParams parameters of one prediction relay run
type RelayParams struct {
	// CompetitionID stamped onto every relayed prediction
	CompetitionID int64 `validate:"required"`
	// UserID stamped onto every relayed prediction
	UserID int64 `validate:"required"`
	// Subject the outbound prediction feed subject
	Subject string `validate:"required"`
	// IdleTimeout max silence from the client before the relay exits
	IdleTimeout time.Duration `validate:"required"`
	// PollInterval reply stream poll interval; bounds how fast the relay
	// observes its exit conditions
	PollInterval time.Duration `validate:"required"`
	// HardDeadline the session's negotiated end time
	HardDeadline time.Time `validate:"required"`
}

// PredictionRelay drains one client's reply stream, annotates each
// prediction, and republishes the result onto the aggregation feed
type PredictionRelay interface {
	// Start begin relaying from the reply stream as an independent task
	Start(replies <-chan []byte, wg *sync.WaitGroup) error
}

// predictionRelayImpl implements PredictionRelay
type predictionRelayImpl struct {
	common.Component
	wireCodec codec.Codec
	publisher FeedPublisher
	params    RelayParams
	opContext context.Context
	started   bool
	lock      *sync.Mutex
}

// GetPredictionRelay define a PredictionRelay for one session. The given
// context is the orchestrator's stop signal.
func GetPredictionRelay(
	ctxt context.Context,
	wireCodec codec.Codec,
	publisher FeedPublisher,
	params RelayParams,
) (PredictionRelay, error) {
	logTags := log.Fields{
		"module":      "bridge",
		"component":   "prediction-relay",
		"competition": params.CompetitionID,
		"user":        params.UserID,
		"subject":     params.Subject,
	}
	return &predictionRelayImpl{
		Component: common.Component{LogTags: logTags},
		wireCodec: wireCodec,
		publisher: publisher,
		params:    params,
		opContext: ctxt,
		started:   false,
		lock:      &sync.Mutex{},
	}, nil
}

// Start begin relaying from the reply stream as an independent task
func (r *predictionRelayImpl) Start(replies <-chan []byte, wg *sync.WaitGroup) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		err := fmt.Errorf("already relaying")
		log.WithError(err).WithFields(r.LogTags).Error("Unable to start relay")
		return err
	}
	r.started = true
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithFields(r.LogTags).Info("Starting prediction relay")
		defer log.WithFields(r.LogTags).Info("Prediction relay exiting")
		lastForwarded := time.Now()
		for {
			select {
			case wire, ok := <-replies:
				if ok {
					if r.forward(wire) {
						lastForwarded = time.Now()
					}
				} else {
					// Reply stream ended; keep running until a timeout or
					// the stop signal fires
					replies = nil
				}
			case <-r.opContext.Done():
				log.WithFields(r.LogTags).Debug("Relay stop signal observed")
				return
			case <-time.After(r.params.PollInterval):
			}
			if time.Since(lastForwarded) > r.params.IdleTimeout {
				log.WithFields(r.LogTags).Debug("Stop receiving, client went idle")
				return
			}
			if time.Now().After(r.params.HardDeadline) {
				log.WithFields(r.LogTags).Debug("Session end time passed")
				return
			}
			if r.opContext.Err() != nil {
				log.WithFields(r.LogTags).Debug("Relay stop signal observed")
				return
			}
		}
	}()
	return nil
}

// forward annotate one client prediction and publish it onto the
// aggregation feed. Failures are swallowed; a single bad record must not
// terminate the relay.
func (r *predictionRelayImpl) forward(wire []byte) bool {
	record, err := r.wireCodec.Decode(wire)
	if err != nil {
		return false
	}
	record["submitted_on"] = time.Now().Format(codec.SubmittedOnFormat)
	record["prediction_competition_id"] = r.params.CompetitionID
	record["user_id"] = r.params.UserID
	// Rename the label columns so the aggregation side never sees a
	// prediction field colliding with an input schema field
	for _, target := range r.wireCodec.Targets() {
		value, ok := record[target]
		if !ok {
			log.WithFields(r.LogTags).Debugf("Discarding prediction without '%s'", target)
			return false
		}
		record["prediction_"+target] = value
		delete(record, target)
	}
	outbound, err := r.wireCodec.EncodeWire(record)
	if err != nil {
		return false
	}
	publishCtxt, cancel := context.WithTimeout(r.opContext, r.params.PollInterval)
	defer cancel()
	if err := r.publisher.Publish(publishCtxt, r.params.Subject, outbound); err != nil {
		log.WithError(err).WithFields(r.LogTags).Debug("Dropped one prediction")
		return false
	}
	return true
}
