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

package store

import (
	"context"
	"time"
)

// User one registered platform user
type User struct {
	// ID the user ID
	ID int64 `json:"user_id" validate:"required"`
	// Email the identity users present when opening a session
	Email string `json:"email" validate:"required,email"`
}

// Competition one competition hosted on the platform
type Competition struct {
	// ID the competition ID
	ID int64 `json:"competition_id" validate:"required"`
	// Name the human readable competition name. The broker feed subjects are
	// derived from it.
	Name string `json:"name" validate:"required"`
	// Code the public join code clients present when opening a session
	Code string `json:"code" validate:"required"`
	// EndDate the nominal competition end
	EndDate time.Time `json:"end_date"`
	// PredictionsTimeInterval seconds between released records
	PredictionsTimeInterval int `json:"predictions_time_interval" validate:"gte=1"`
	// InitialTrainingTime seconds of training data released before the stream
	// goes live. The per-user feed consumer timeout scales from it.
	InitialTrainingTime int `json:"initial_training_time" validate:"gte=1"`
	// Config the competition config document; keys are the label columns
	Config map[string]interface{} `json:"config"`
}

// Subscription one user's enrollment with a competition
type Subscription struct {
	// CompetitionID the competition
	CompetitionID int64 `json:"competition_id" validate:"required"`
	// UserID the subscribed user
	UserID int64 `json:"user_id" validate:"required"`
	// SubscribedAt when the subscription was taken
	SubscribedAt time.Time `json:"subscribed_at"`
}

// UserStore read-only point lookups against registered users
type UserStore interface {
	// GetUserByEmail fetch a user by email identity. Absence is (nil, nil).
	GetUserByEmail(ctxt context.Context, email string) (*User, error)
}

// CompetitionStore read-only point lookups against hosted competitions
type CompetitionStore interface {
	// GetCompetitionByCode fetch a competition by join code. Absence is (nil, nil).
	GetCompetitionByCode(ctxt context.Context, code string) (*Competition, error)
}

// SubscriptionStore read-only point lookups against competition enrollments
type SubscriptionStore interface {
	// GetSubscription fetch one user's enrollment with a competition.
	// Absence is (nil, nil).
	GetSubscription(
		ctxt context.Context, competitionID, userID int64,
	) (*Subscription, error)
}

// MetadataStore the complete competition metadata store surface
type MetadataStore interface {
	UserStore
	CompetitionStore
	SubscriptionStore
	// ListCompetitions fetch all hosted competitions
	ListCompetitions(ctxt context.Context) ([]Competition, error)
	// RecordUser register a new user, returning its ID
	RecordUser(ctxt context.Context, email string) (int64, error)
	// RecordCompetition register a new competition, returning its ID
	RecordCompetition(ctxt context.Context, competition Competition) (int64, error)
	// RecordSubscription register a user's enrollment with a competition
	RecordSubscription(ctxt context.Context, competitionID, userID int64) error
	// Close release the store's connections
	Close() error
}
