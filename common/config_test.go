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

package common

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperConfigParsing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()

	// Case 0: parse config with no defaults in place
	{
		viper.Reset()
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 1: load defaults, token secret still missing
	{
		viper.Reset()
		var cfg SystemConfig
		InstallDefaultConfigValues()
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 2: defaults plus token secret is a complete config
	{
		viper.Reset()
		InstallDefaultConfigValues()
		config := []byte(`---
token:
  signing_secret: unit-test-secret`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal(30, cfg.Bridge.RelayIdleTimeout)
		assert.Equal(5, cfg.Bridge.GraceIntervals)
	}

	// Case 3: invalid bridge tuning
	{
		viper.Reset()
		InstallDefaultConfigValues()
		config := []byte(`---
token:
  signing_secret: unit-test-secret
bridge:
  poll_interval_msec: 0`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 4: invalid results store address
	{
		viper.Reset()
		InstallDefaultConfigValues()
		config := []byte(`---
token:
  signing_secret: unit-test-secret
results:
  addr: not-an-address`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}
}

func TestSubjectNameHelpers(t *testing.T) {
	assert := assert.New(t)

	// Case 0: name normalization
	assert.Equal("roadtraffic", FeedSubjectName("Road Traffic"))
	assert.Equal("roadtrafficpredictions", PredictionsSubjectName("Road Traffic"))

	// Case 1: subject validation
	assert.Nil(ValidateSubjectName("roadtraffic"))
	assert.NotNil(ValidateSubjectName("road traffic"))
	assert.NotNil(ValidateSubjectName("road.traffic"))
	assert.NotNil(ValidateSubjectName(""))
}
