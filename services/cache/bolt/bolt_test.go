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

package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogment/rag-backend/services/cache"
	"github.com/cogment/rag-backend/services/cache/test"
)

func TestSuiteBoltBackend(t *testing.T) {
	test.RunSuite(t, func(ttl time.Duration) cache.Backend {
		// create and open a temporary file
		f, err := os.CreateTemp("", "rag-cache-bolt-test")
		assert.NoError(t, err)

		// close and remove the temporary file
		defer f.Close()

		bolt, err := CreateBoltBackend(f.Name(), ttl)
		assert.NoError(t, err)
		return bolt
	}, func(b cache.Backend) {
		rb := b.(*boltBackend)

		defer os.Remove(rb.filePath)
		defer rb.Destroy()
	})
}

func TestBoltBackendPersistence(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	b, err := CreateBoltBackend(filePath, time.Hour)
	require.NoError(t, err)
	err = b.Set(ctx, "key", &cache.Entry{
		Answer:    "persisted answer",
		Sources:   []string{"chunk"},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	b.Destroy()

	reopened, err := CreateBoltBackend(filePath, time.Hour)
	require.NoError(t, err)
	defer reopened.Destroy()

	entry, found, err := reopened.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "persisted answer", entry.Answer)
	assert.Equal(t, []string{"chunk"}, entry.Sources)
}
