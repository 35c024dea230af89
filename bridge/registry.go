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
	"regexp"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/nats-io/nats.go"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/core"
)

// FeedParams parameters for subscribing a user to a competition's inbound feed
type FeedParams struct {
	// Subject the feed subject of the competition
	Subject string `validate:"required"`
	// ConsumerTimeout how long the per-user consumer survives without
	// activity, scaled from the competition's initial training time
	ConsumerTimeout time.Duration
}

// FeedReaderFactory creates a new subscribed FeedReader for a user
type FeedReaderFactory func(userID string, params FeedParams) (FeedReader, error)

// FeedRegistry process lifetime cache of per-user inbound feed readers.
// A user reconnecting within the process lifetime reuses the existing
// reader instead of re-subscribing. Entries are never evicted.
type FeedRegistry interface {
	// GetOrCreate fetch the user's feed reader, subscribing on first use.
	// An existing entry wins over the caller's params.
	GetOrCreate(userID string, params FeedParams) (FeedReader, error)
}

// feedRegistryImpl implements FeedRegistry
type feedRegistryImpl struct {
	common.Component
	factory FeedReaderFactory
	readers map[string]FeedReader
	lock    *sync.Mutex
}

// GetFeedRegistry define a FeedRegistry backed by a reader factory
func GetFeedRegistry(factory FeedReaderFactory) (FeedRegistry, error) {
	logTags := log.Fields{"module": "bridge", "component": "feed-registry"}
	return &feedRegistryImpl{
		Component: common.Component{LogTags: logTags},
		factory:   factory,
		readers:   make(map[string]FeedReader),
		lock:      &sync.Mutex{},
	}, nil
}

// GetOrCreate fetch the user's feed reader, subscribing on first use
func (r *feedRegistryImpl) GetOrCreate(
	userID string, params FeedParams,
) (FeedReader, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if existing, ok := r.readers[userID]; ok {
		log.WithFields(r.LogTags).Debugf("Reusing feed reader of '%s'", userID)
		return existing, nil
	}
	newReader, err := r.factory(userID, params)
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Unable to subscribe '%s' to %s", userID, params.Subject,
		)
		return nil, err
	}
	r.readers[userID] = newReader
	log.WithFields(r.LogTags).Infof("Subscribed '%s' to %s", userID, params.Subject)
	return newReader, nil
}

// ==============================================================================

// jetStreamFeedReader FeedReader over a JetStream durable consumer
type jetStreamFeedReader struct {
	common.Component
	sub *nats.Subscription
}

// Poll fetch the next feed record, waiting at most timeout
func (r *jetStreamFeedReader) Poll(timeout time.Duration) ([]byte, error) {
	msg, err := r.sub.NextMsg(timeout)
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, nil
		}
		log.WithError(err).WithFields(r.LogTags).Error("Feed read failure")
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return msg.Data, nil
}

// consumerNameSanitize durable consumer names must not carry separator tokens
var consumerNameSanitize = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// JetStreamFeedReaderFactory build a FeedReaderFactory subscribing durable
// per-user consumers against JetStream. The consumer is named after the user,
// tracks its own delivery cursor across reconnects, and starts from the
// newest records on first subscribe.
func JetStreamFeedReaderFactory(natsClient *core.NatsClient) FeedReaderFactory {
	return func(userID string, params FeedParams) (FeedReader, error) {
		consumer := consumerNameSanitize.ReplaceAllString(userID, "-")
		logTags := log.Fields{
			"module":    "bridge",
			"component": "feed-reader",
			"subject":   params.Subject,
			"consumer":  consumer,
		}
		sub, err := natsClient.JetStream().SubscribeSync(
			params.Subject,
			nats.Durable(consumer),
			nats.DeliverNew(),
			nats.AckNone(),
			nats.InactiveThreshold(params.ConsumerTimeout),
		)
		if err != nil {
			log.WithError(err).WithFields(logTags).Error("Unable to define subscription")
			return nil, err
		}
		return &jetStreamFeedReader{
			Component: common.Component{LogTags: logTags}, sub: sub,
		}, nil
	}
}
