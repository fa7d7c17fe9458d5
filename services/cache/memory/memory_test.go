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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cogment/rag-backend/services/cache"
	"github.com/cogment/rag-backend/services/cache/test"
)

func TestSuiteMemoryBackend(t *testing.T) {
	test.RunSuite(t, func(ttl time.Duration) cache.Backend {
		b, err := CreateMemoryBackend(16, ttl)
		assert.NoError(t, err)
		return b
	}, func(b cache.Backend) {
		b.Destroy()
	})
}

func TestMemoryBackendEviction(t *testing.T) {
	b, err := CreateMemoryBackend(2, 0)
	assert.NoError(t, err)
	defer b.Destroy()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := b.Set(ctx, fmt.Sprintf("key-%d", i), &cache.Entry{
			Answer:    fmt.Sprintf("answer-%d", i),
			CreatedAt: time.Now(),
		})
		assert.NoError(t, err)
	}

	_, found, err := b.Get(ctx, "key-0")
	assert.NoError(t, err)
	assert.False(t, found)

	entry, found, err := b.Get(ctx, "key-2")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "answer-2", entry.Answer)
}

func TestCreateMemoryBackendInvalidSize(t *testing.T) {
	_, err := CreateMemoryBackend(0, 0)
	assert.Error(t, err)
}
