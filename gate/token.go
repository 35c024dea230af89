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
	"fmt"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/streambench/provider/common"
)

// SessionClaims claims carried by a subscription token
type SessionClaims struct {
	// CompetitionID the competition the token was issued for
	CompetitionID int64 `json:"competition_id"`
	// UserID the email identity the token was issued to
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenVerifier decodes and verifies subscription tokens
type TokenVerifier interface {
	// Decode verify a token and extract its session claims
	Decode(token string) (*SessionClaims, error)
}

// hmacTokenVerifier implements TokenVerifier for HMAC signed tokens
type hmacTokenVerifier struct {
	common.Component
	secret []byte
}

// GetHMACTokenVerifier define a TokenVerifier using a shared HMAC secret
func GetHMACTokenVerifier(signingSecret string) (TokenVerifier, error) {
	if len(signingSecret) == 0 {
		return nil, fmt.Errorf("token verifier requires a signing secret")
	}
	logTags := log.Fields{"module": "gate", "component": "token-verifier"}
	return &hmacTokenVerifier{
		Component: common.Component{LogTags: logTags}, secret: []byte(signingSecret),
	}, nil
}

// Decode verify a token and extract its session claims
func (v *hmacTokenVerifier) Decode(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		log.WithError(err).WithFields(v.LogTags).Debug("Token decode failed")
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token signature rejected")
	}
	return claims, nil
}
