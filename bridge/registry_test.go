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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeFeedReader canned feed reader for registry tests
type fakeFeedReader struct {
	name string
}

func (r *fakeFeedReader) Poll(timeout time.Duration) ([]byte, error) {
	return nil, nil
}

func TestFeedRegistry(t *testing.T) {
	assert := assert.New(t)

	factoryCalls := 0
	factory := func(userID string, params FeedParams) (FeedReader, error) {
		factoryCalls++
		return &fakeFeedReader{name: fmt.Sprintf("%s-%d", userID, factoryCalls)}, nil
	}
	uut, err := GetFeedRegistry(factory)
	assert.Nil(err)

	params := FeedParams{Subject: "iris", ConsumerTimeout: time.Minute}

	// Case 0: first use subscribes
	reader0, err := uut.GetOrCreate("user-0@unit-test.streambench.org", params)
	assert.Nil(err)
	assert.NotNil(reader0)
	assert.Equal(1, factoryCalls)

	// Case 1: the same user reuses the existing reader
	reader1, err := uut.GetOrCreate("user-0@unit-test.streambench.org", params)
	assert.Nil(err)
	assert.Same(reader0, reader1)
	assert.Equal(1, factoryCalls)

	// Case 2: the reuse ignores the caller's params
	reader2, err := uut.GetOrCreate(
		"user-0@unit-test.streambench.org",
		FeedParams{Subject: "another-feed", ConsumerTimeout: time.Second},
	)
	assert.Nil(err)
	assert.Same(reader0, reader2)
	assert.Equal(1, factoryCalls)

	// Case 3: a different user gets a reader of their own
	reader3, err := uut.GetOrCreate("user-1@unit-test.streambench.org", params)
	assert.Nil(err)
	assert.NotSame(reader0, reader3)
	assert.Equal(2, factoryCalls)

	// Case 4: a factory failure is not cached
	failures := 0
	uut, err = GetFeedRegistry(func(userID string, params FeedParams) (FeedReader, error) {
		failures++
		if failures == 1 {
			return nil, fmt.Errorf("dummy subscribe failure")
		}
		return &fakeFeedReader{name: userID}, nil
	})
	assert.Nil(err)
	_, err = uut.GetOrCreate("user-2@unit-test.streambench.org", params)
	assert.NotNil(err)
	reader4, err := uut.GetOrCreate("user-2@unit-test.streambench.org", params)
	assert.Nil(err)
	assert.NotNil(reader4)
}

func TestFeedRegistryConcurrentCreate(t *testing.T) {
	assert := assert.New(t)

	created := 0
	lock := sync.Mutex{}
	factory := func(userID string, params FeedParams) (FeedReader, error) {
		lock.Lock()
		defer lock.Unlock()
		created++
		return &fakeFeedReader{name: userID}, nil
	}
	uut, err := GetFeedRegistry(factory)
	assert.Nil(err)

	// Case 0: racing callers for one user all land on a single subscription
	results := make([]FeedReader, 8)
	wg := sync.WaitGroup{}
	for idx := 0; idx < len(results); idx++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			reader, err := uut.GetOrCreate(
				"user-3@unit-test.streambench.org",
				FeedParams{Subject: "iris", ConsumerTimeout: time.Minute},
			)
			assert.Nil(err)
			results[slot] = reader
		}(idx)
	}
	wg.Wait()
	assert.Equal(1, created)
	for _, reader := range results {
		assert.Same(results[0], reader)
	}
}
