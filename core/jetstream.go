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

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/nats-io/nats.go"
	"github.com/streambench/provider/common"
)

// NATSConnectParams NATS connection parameter
type NATSConnectParams struct {
	// ServerURI connect to NATS JetStream cluster with URI
	ServerURI string `validate:"required,uri"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
	// MaxReconnectAttempt on connection failure, max number of reconnect
	// attempt. "-1" means infinite
	MaxReconnectAttempt int
	// ReconnectWait wait duration between reconnect attempts
	ReconnectWait time.Duration
	// OnDisconnectCallback callback on disconnect
	OnDisconnectCallback func(*nats.Conn, error)
	// OnReconnectCallback callback on reconnect
	OnReconnectCallback func(*nats.Conn)
	// OnCloseCallback callback on close
	OnCloseCallback func(*nats.Conn)
}

// NatsClient NATS client as message broker core
type NatsClient struct {
	common.Component
	nc *nats.Conn
	js nats.JetStreamContext
}

// Close close a NATS client
func (c NatsClient) Close(ctxt context.Context) {
	if err := c.nc.FlushWithContext(ctxt); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("NATS flush failed")
	}
	c.nc.Close()
	log.WithFields(c.LogTags).Infof("Close NATS client")
}

// NATs fetch the NATS connection
func (c NatsClient) NATs() *nats.Conn {
	return c.nc
}

// JetStream fetch the JetStream client
func (c NatsClient) JetStream() nats.JetStreamContext {
	return c.js
}

// GetJetStream define a new NATS JetStream core
func GetJetStream(param NATSConnectParams) (NatsClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "jetstream-backend",
		"instance":  param.ServerURI,
	}
	// Create the NATS transport
	nc, err := nats.Connect(
		param.ServerURI,
		nats.Timeout(param.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(param.MaxReconnectAttempt),
		nats.ReconnectWait(param.ReconnectWait),
		nats.DisconnectErrHandler(param.OnDisconnectCallback),
		nats.ReconnectHandler(param.OnReconnectCallback),
		nats.ClosedHandler(param.OnCloseCallback),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("NATS client connect failed")
		return NatsClient{}, err
	}

	// Define the JetStream client
	js, err := nc.JetStream()
	if err != nil {
		log.WithError(err).WithFields(logTags).Error(
			"Failed to define JetStream client",
		)
	} else {
		log.WithFields(logTags).Info("Created JetStream client")
	}

	return NatsClient{
		Component: common.Component{LogTags: logTags},
		nc:        nc,
		js:        js,
	}, err
}

// ==============================================================================

// StreamParams parameters of one stream backing a competition feed
type StreamParams struct {
	// Name the stream name
	Name string `validate:"required"`
	// Subjects the subjects the stream captures
	Subjects []string `validate:"required,min=1"`
	// MaxAge max age of messages within the stream. Records of a live
	// competition feed are only useful briefly.
	MaxAge time.Duration
}

// EnsureStream create the stream if missing, or realign its subjects if the
// existing definition no longer lists them all
func (c NatsClient) EnsureStream(ctxt context.Context, param StreamParams) error {
	localLogTags, _ := common.UpdateLogTags(ctxt, c.LogTags)
	if c.js == nil {
		return fmt.Errorf("no JetStream client available")
	}
	cfg := &nats.StreamConfig{
		Name: param.Name, Subjects: param.Subjects, MaxAge: param.MaxAge,
	}
	info, err := c.js.StreamInfo(param.Name)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			log.WithError(err).WithFields(localLogTags).Errorf(
				"Unable to query stream %s", param.Name,
			)
			return err
		}
		if _, err := c.js.AddStream(cfg); err != nil {
			log.WithError(err).WithFields(localLogTags).Errorf(
				"Unable to define stream %s", param.Name,
			)
			return err
		}
		log.WithFields(localLogTags).Infof("Defined stream %s", param.Name)
		return nil
	}
	// Stream already exists, verify its subjects
	existing := map[string]bool{}
	for _, subject := range info.Config.Subjects {
		existing[subject] = true
	}
	aligned := true
	for _, subject := range param.Subjects {
		if !existing[subject] {
			aligned = false
			break
		}
	}
	if aligned {
		log.WithFields(localLogTags).Debugf("Stream %s already defined", param.Name)
		return nil
	}
	if _, err := c.js.UpdateStream(cfg); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to realign stream %s", param.Name,
		)
		return err
	}
	log.WithFields(localLogTags).Infof("Realigned stream %s", param.Name)
	return nil
}
