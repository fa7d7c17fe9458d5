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

package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cogment/rag-backend/services/cache"
)

type memoryBackend struct {
	entries *lru.Cache
	ttl     time.Duration
}

// CreateMemoryBackend creates an in-process LRU cache holding at most size entries.
func CreateMemoryBackend(size int, ttl time.Duration) (cache.Backend, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, cache.NewUnexpectedError("unable to create the lru cache (%w)", err)
	}
	return &memoryBackend{
		entries: entries,
		ttl:     ttl,
	}, nil
}

func (b *memoryBackend) Destroy() {
	b.entries.Purge()
}

func (b *memoryBackend) Get(_ context.Context, key string) (*cache.Entry, bool, error) {
	value, ok := b.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := value.(cache.Entry)
	if entry.Expired(b.ttl, time.Now()) {
		b.entries.Remove(key)
		return nil, false, nil
	}
	return copyEntry(&entry), true, nil
}

func (b *memoryBackend) Set(_ context.Context, key string, entry *cache.Entry) error {
	b.entries.Add(key, *copyEntry(entry))
	return nil
}

func copyEntry(entry *cache.Entry) *cache.Entry {
	sources := make([]string, len(entry.Sources))
	copy(sources, entry.Sources)
	return &cache.Entry{
		Answer:    entry.Answer,
		Sources:   sources,
		CreatedAt: entry.CreatedAt,
	}
}
