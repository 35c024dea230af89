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

	"github.com/apex/log"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/core"
)

// FeedPublisher publishes records onto an outbound broker feed
type FeedPublisher interface {
	// Publish publishes a new record onto a subject
	Publish(ctxt context.Context, subject string, msg []byte) error
}

// jetStreamPublisherImpl implements FeedPublisher
type jetStreamPublisherImpl struct {
	common.Component
	nats *core.NatsClient
}

// GetJetStreamPublisher get new JetStream backed FeedPublisher
func GetJetStreamPublisher(
	natsClient *core.NatsClient, instance string,
) (FeedPublisher, error) {
	logTags := log.Fields{
		"module": "bridge", "component": "js-publisher", "instance": instance,
	}
	return &jetStreamPublisherImpl{
		Component: common.Component{LogTags: logTags}, nats: natsClient,
	}, nil
}

// Publish publishes a new record onto a subject
func (s *jetStreamPublisherImpl) Publish(ctxt context.Context, subject string, msg []byte) error {
	localLogTags, err := common.UpdateLogTags(ctxt, s.LogTags)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Failed to update logtags")
		return err
	}
	if err := common.ValidateSubjectName(subject); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to send record")
		return err
	}
	ack, err := s.nats.JetStream().PublishAsync(subject, msg)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf("Unable to send record")
		return err
	}
	// Wait for success, failure, or timeout
	select {
	case goodSig, ok := <-ack.Ok():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture OK channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Record send failure")
			return err
		}
		log.WithFields(localLogTags).Debugf(
			"Sent [%d] to %s/%s", goodSig.Sequence, goodSig.Stream, subject,
		)
		return nil
	case txErr, ok := <-ack.Err():
		if !ok {
			err := fmt.Errorf("reading nats.PubAckFuture error channel failure")
			log.WithError(err).WithFields(localLogTags).Errorf("Record send failure")
			return err
		}
		return txErr
	case <-ctxt.Done():
		err := ctxt.Err()
		log.WithError(err).WithFields(localLogTags).Errorf("Record send timed out")
		return err
	}
}
