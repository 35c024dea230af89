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

package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/streambench/provider/common"
)

// SubmittedOnFormat timestamp layout stamped onto relayed predictions
const SubmittedOnFormat = "2006-01-02 15:04:05"

// Record canonical form of one record crossing the bridge. The payload is an
// open document; fields either schema knows nothing about are carried as-is.
type Record map[string]interface{}

// Message RPC-facing form of a record, restricted to the competition schema
type Message map[string]interface{}

// Schema message schema of one competition, derived from the competition's
// stored configuration
type Schema struct {
	// CompetitionID the owning competition
	CompetitionID int64 `validate:"required"`
	// Fields known message fields. Empty means the schema places no
	// restriction on the message field set.
	Fields []string
	// Targets the label columns clients predict
	Targets []string
}

// SchemaFromConfig build a Schema from a competition's config document. The
// config keys are the label columns; embedded spaces are stripped.
func SchemaFromConfig(competitionID int64, config map[string]interface{}) Schema {
	targets := make([]string, 0, len(config))
	for key := range config {
		targets = append(targets, strings.ReplaceAll(key, " ", ""))
	}
	sort.Strings(targets)
	return Schema{CompetitionID: competitionID, Targets: targets}
}

// Codec converts between the feed transport encoding and the RPC message
// schema of one competition
type Codec interface {
	// Decode parse one transport payload into a canonical record
	Decode(wire []byte) (Record, error)
	// ToMessage project a canonical record onto the RPC message schema.
	// Fields outside the schema are dropped, schema fields missing from the
	// record are left absent.
	ToMessage(record Record) Message
	// EncodeWire serialize a canonical record into the feed transport encoding
	EncodeWire(record Record) ([]byte, error)
	// Targets the label columns of the owning competition
	Targets() []string
}

// codecImpl implements Codec
type codecImpl struct {
	common.Component
	schema Schema
}

// getCodec define a Codec for one competition schema
func getCodec(schema Schema) Codec {
	logTags := log.Fields{
		"module":      "codec",
		"component":   "wire-codec",
		"competition": schema.CompetitionID,
	}
	return &codecImpl{Component: common.Component{LogTags: logTags}, schema: schema}
}

// Decode parse one transport payload into a canonical record
func (c *codecImpl) Decode(wire []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(wire, &record); err != nil {
		log.WithError(err).WithFields(c.LogTags).Debugf("Discarding undecodable record")
		return nil, err
	}
	return record, nil
}

// ToMessage project a canonical record onto the RPC message schema
func (c *codecImpl) ToMessage(record Record) Message {
	if len(c.schema.Fields) == 0 {
		return Message(record)
	}
	result := Message{}
	for _, field := range c.schema.Fields {
		if value, ok := record[field]; ok {
			result[field] = value
		}
	}
	return result
}

// EncodeWire serialize a canonical record into the feed transport encoding
func (c *codecImpl) EncodeWire(record Record) ([]byte, error) {
	return json.Marshal(record)
}

// Targets the label columns of the owning competition
func (c *codecImpl) Targets() []string {
	return c.schema.Targets
}

// ==============================================================================

// Registry maps a competition to its wire codec. Codecs are built once from
// the competition's stored config and reused for every later session.
type Registry interface {
	// CodecFor fetch the codec of a competition, building it on first use
	CodecFor(competitionID int64, config map[string]interface{}) (Codec, error)
}

// registryImpl implements Registry
type registryImpl struct {
	common.Component
	codecs map[int64]Codec
	lock   *sync.Mutex
}

// GetRegistry define a codec Registry
func GetRegistry() (Registry, error) {
	logTags := log.Fields{"module": "codec", "component": "codec-registry"}
	return &registryImpl{
		Component: common.Component{LogTags: logTags},
		codecs:    make(map[int64]Codec),
		lock:      &sync.Mutex{},
	}, nil
}

// CodecFor fetch the codec of a competition, building it on first use
func (r *registryImpl) CodecFor(
	competitionID int64, config map[string]interface{},
) (Codec, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if competitionID <= 0 {
		return nil, fmt.Errorf("invalid competition ID %d", competitionID)
	}
	if existing, ok := r.codecs[competitionID]; ok {
		return existing, nil
	}
	newCodec := getCodec(SchemaFromConfig(competitionID, config))
	r.codecs[competitionID] = newCodec
	log.WithFields(r.LogTags).Infof("Built codec for competition %d", competitionID)
	return newCodec, nil
}
