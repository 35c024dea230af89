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

package gate

import (
	"context"

	"github.com/apex/log"
	"github.com/streambench/provider/common"
	"github.com/streambench/provider/store"
)

// Decision outcome of one authorization check
type Decision int

// The possible authorization outcomes. Produced once per streaming call,
// before any feed interaction.
const (
	Granted Decision = iota
	UnknownUser
	UnknownCompetition
	NotSubscribed
	InvalidToken
	TokenMismatch
)

// StatusCode RPC level status associated with a Decision
type StatusCode string

// RPC level statuses surfaced on session rejection
const (
	StatusOK               StatusCode = "OK"
	StatusPermissionDenied StatusCode = "PERMISSION_DENIED"
	StatusInvalidArgument  StatusCode = "INVALID_ARGUMENT"
	StatusUnauthenticated  StatusCode = "UNAUTHENTICATED"
)

// String implements Stringer
func (d Decision) String() string {
	switch d {
	case Granted:
		return "GRANTED"
	case UnknownUser:
		return "UNKNOWN_USER"
	case UnknownCompetition:
		return "UNKNOWN_COMPETITION"
	case NotSubscribed:
		return "NOT_SUBSCRIBED"
	case InvalidToken:
		return "INVALID_TOKEN"
	case TokenMismatch:
		return "TOKEN_MISMATCH"
	}
	return "UNKNOWN"
}

// Status the RPC level status surfaced for this decision
func (d Decision) Status() StatusCode {
	switch d {
	case Granted:
		return StatusOK
	case UnknownUser, NotSubscribed:
		return StatusPermissionDenied
	case UnknownCompetition:
		return StatusInvalidArgument
	case InvalidToken, TokenMismatch:
		return StatusUnauthenticated
	}
	return StatusUnauthenticated
}

// Detail the human readable detail surfaced with this decision
func (d Decision) Detail() string {
	switch d {
	case Granted:
		return ""
	case UnknownUser:
		return "You are not registered, please register on the website"
	case UnknownCompetition:
		return "Unknown competition, please refer to the website"
	case NotSubscribed:
		return "You are not allowed to participate, please subscribe to the competition on website"
	case InvalidToken:
		return "Please check your authentication credentials, Wrong Token!"
	case TokenMismatch:
		return "Please check your authentication token, the secret key does not match"
	}
	return ""
}

// Result of one authorization check. On a Granted decision the resolved user
// and competition records are attached.
type Result struct {
	// Decision the authorization outcome
	Decision Decision
	// User the resolved user, set when Granted
	User *store.User
	// Competition the resolved competition, set when Granted
	Competition *store.Competition
}

// Gate validates a streaming call against the three authority sources and
// the presented subscription token
type Gate interface {
	// Authorize run the full check sequence for one call. The sequence always
	// runs from scratch; grants are never cached across calls.
	Authorize(
		ctxt context.Context, identity, competitionCode, token string,
	) (Result, error)
}

// gateImpl implements Gate
type gateImpl struct {
	common.Component
	users         store.UserStore
	competitions  store.CompetitionStore
	subscriptions store.SubscriptionStore
	tokens        TokenVerifier
}

// GetGate define an authorization Gate
func GetGate(
	users store.UserStore,
	competitions store.CompetitionStore,
	subscriptions store.SubscriptionStore,
	tokens TokenVerifier,
) (Gate, error) {
	logTags := log.Fields{"module": "gate", "component": "authorization-gate"}
	return &gateImpl{
		Component:     common.Component{LogTags: logTags},
		users:         users,
		competitions:  competitions,
		subscriptions: subscriptions,
		tokens:        tokens,
	}, nil
}

// Authorize run the full check sequence for one call
func (g *gateImpl) Authorize(
	ctxt context.Context, identity, competitionCode, token string,
) (Result, error) {
	localLogTags, _ := common.UpdateLogTags(ctxt, g.LogTags)

	user, err := g.users.GetUserByEmail(ctxt, identity)
	if err != nil {
		return Result{}, err
	}
	if user == nil {
		log.WithFields(localLogTags).Infof("Rejecting unknown user '%s'", identity)
		return Result{Decision: UnknownUser}, nil
	}

	competition, err := g.competitions.GetCompetitionByCode(ctxt, competitionCode)
	if err != nil {
		return Result{}, err
	}
	if competition == nil {
		log.WithFields(localLogTags).Infof(
			"Rejecting unknown competition '%s'", competitionCode,
		)
		return Result{Decision: UnknownCompetition}, nil
	}

	subscription, err := g.subscriptions.GetSubscription(ctxt, competition.ID, user.ID)
	if err != nil {
		return Result{}, err
	}
	if subscription == nil {
		log.WithFields(localLogTags).Infof(
			"Rejecting user '%s', not subscribed to competition %d", identity, competition.ID,
		)
		return Result{Decision: NotSubscribed}, nil
	}

	claims, err := g.tokens.Decode(token)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Infof(
			"Rejecting user '%s', undecodable token", identity,
		)
		return Result{Decision: InvalidToken}, nil
	}

	if claims.CompetitionID != competition.ID || claims.UserID != identity {
		log.WithFields(localLogTags).Infof(
			"Rejecting user '%s', token issued for %d/'%s'",
			identity, claims.CompetitionID, claims.UserID,
		)
		return Result{Decision: TokenMismatch}, nil
	}

	return Result{Decision: Granted, User: user, Competition: competition}, nil
}
