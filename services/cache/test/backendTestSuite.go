// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cogment/rag-backend/services/cache"
)

func RunSuite(t *testing.T, createBackend func(ttl time.Duration) cache.Backend, destroyBackend func(cache.Backend)) {
	t.Run("TestCreateBackend", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		assert.NotNil(t, b)
	})
	t.Run("TestGetMissingEntry", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		entry, found, err := b.Get(context.Background(), cache.Key("unknown", 5))
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, entry)
	})
	t.Run("TestSetThenGet", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		key := cache.Key("what is cogment?", 5)
		createdAt := time.Now().Truncate(time.Second)
		err := b.Set(context.Background(), key, &cache.Entry{
			Answer:    "Cogment is a framework.",
			Sources:   []string{"chunk-1", "chunk-2"},
			CreatedAt: createdAt,
		})
		assert.NoError(t, err)

		entry, found, err := b.Get(context.Background(), key)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "Cogment is a framework.", entry.Answer)
		assert.Equal(t, []string{"chunk-1", "chunk-2"}, entry.Sources)
		assert.True(t, createdAt.Equal(entry.CreatedAt))
	})
	t.Run("TestOverwrite", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		key := cache.Key("question", 3)
		assert.NoError(t, b.Set(context.Background(), key, &cache.Entry{Answer: "first", CreatedAt: time.Now()}))
		assert.NoError(t, b.Set(context.Background(), key, &cache.Entry{Answer: "second", CreatedAt: time.Now()}))

		entry, found, err := b.Get(context.Background(), key)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "second", entry.Answer)
	})
	t.Run("TestReturnedEntryIsACopy", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		key := cache.Key("question", 3)
		original := &cache.Entry{Answer: "answer", Sources: []string{"a"}, CreatedAt: time.Now()}
		assert.NoError(t, b.Set(context.Background(), key, original))
		original.Sources[0] = "mutated"

		entry, found, err := b.Get(context.Background(), key)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []string{"a"}, entry.Sources)
	})
	t.Run("TestExpiredEntry", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		key := cache.Key("old question", 5)
		err := b.Set(context.Background(), key, &cache.Entry{
			Answer:    "stale",
			CreatedAt: time.Now().Add(-time.Hour),
		})
		assert.NoError(t, err)

		_, found, err := b.Get(context.Background(), key)
		assert.NoError(t, err)
		assert.False(t, found)
	})
	t.Run("TestNoExpiration", func(t *testing.T) {
		b := createBackend(0)
		defer destroyBackend(b)

		key := cache.Key("old question", 5)
		err := b.Set(context.Background(), key, &cache.Entry{
			Answer:    "still valid",
			CreatedAt: time.Now().Add(-24 * time.Hour),
		})
		assert.NoError(t, err)

		entry, found, err := b.Get(context.Background(), key)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "still valid", entry.Answer)
	})
	t.Run("TestConcurrentAccess", func(t *testing.T) {
		b := createBackend(time.Minute)
		defer destroyBackend(b)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := cache.Key(fmt.Sprintf("question %d", i), 5)
				assert.NoError(t, b.Set(context.Background(), key, &cache.Entry{
					Answer:    fmt.Sprintf("answer %d", i),
					CreatedAt: time.Now(),
				}))
				entry, found, err := b.Get(context.Background(), key)
				assert.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, fmt.Sprintf("answer %d", i), entry.Answer)
			}(i)
		}
		wg.Wait()
	})
}
