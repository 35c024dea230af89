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
	"fmt"
	"time"

	"github.com/streambench/provider/codec"
	"github.com/streambench/provider/gate"
)

// SessionMetadata metadata a client presents when opening a streaming call
type SessionMetadata struct {
	// Identity the email identity of the calling user
	Identity string `validate:"required,email"`
	// CompetitionCode the join code of the competition to stream
	CompetitionCode string `validate:"required"`
	// Token the subscription token issued to the user
	Token string `validate:"required"`
}

// Rejection terminal authorization rejection of one streaming call
type Rejection struct {
	// Code the RPC level status
	Code gate.StatusCode
	// Detail the human readable rejection detail
	Detail string
}

// Error implements error
func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

// ClientTransport one live client streaming call as seen by the bridge.
// Liveness is polled, never interrupted.
type ClientTransport interface {
	// Active whether the call is still live
	Active() bool
	// Send forward one record to the client
	Send(msg codec.Message) error
	// Replies the stream of raw prediction payloads sent by the client.
	// The channel closes when the client side of the call ends.
	Replies() <-chan []byte
}

// FeedReader poll handle over one user's inbound feed subscription
type FeedReader interface {
	// Poll fetch the next feed record, waiting at most timeout. An empty
	// poll returns (nil, nil).
	Poll(timeout time.Duration) ([]byte, error)
}
