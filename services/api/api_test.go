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

package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestOptions(t *testing.T) Options {
	registry := prometheus.NewRegistry()

	options := DefaultOptions
	options.Search.Endpoint = "https://search.example.net"
	options.Search.Key = "search-key"
	options.Search.IndexName = "docs-index"
	options.Chat.Endpoint = "https://openai.example.net"
	options.Chat.APIKey = "openai-key"
	options.Port = 0
	options.CacheFile = filepath.Join(t.TempDir(), "cache.db")
	options.Registerer = registry
	options.Gatherer = registry
	return options
}

func TestCreateCacheBackend(t *testing.T) {
	options := createTestOptions(t)

	for _, kind := range []string{"", CacheNone} {
		options.Cache = kind
		backend, err := CreateCacheBackend(options)
		assert.NoError(t, err)
		assert.Nil(t, backend)
	}

	for _, kind := range []string{CacheMemory, CacheBolt} {
		options.Cache = kind
		backend, err := CreateCacheBackend(options)
		require.NoError(t, err, kind)
		require.NotNil(t, backend, kind)
		backend.Destroy()
	}

	options.Cache = "redis"
	_, err := CreateCacheBackend(options)
	assert.ErrorContains(t, err, "unknown cache backend [redis]")
}

func TestCreateEngine(t *testing.T) {
	options := createTestOptions(t)

	engine, err := CreateEngine(options, nil)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestCreateEngineWithPromptsFile(t *testing.T) {
	options := createTestOptions(t)
	options.PromptsFile = filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(options.PromptsFile, []byte("system: You are a helpful assistant.\n"), 0600))

	engine, err := CreateEngine(options, nil)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestCreateEngineFailures(t *testing.T) {
	options := createTestOptions(t)
	options.PromptsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := CreateEngine(options, nil)
	assert.Error(t, err)

	options = createTestOptions(t)
	options.Search.IndexName = ""
	_, err = CreateEngine(options, nil)
	assert.ErrorContains(t, err, "index name is required")

	options = createTestOptions(t)
	options.Chat.Endpoint = ""
	_, err = CreateEngine(options, nil)
	assert.ErrorContains(t, err, "endpoint is required")

	options = createTestOptions(t)
	options.Workers = 0
	_, err = CreateEngine(options, nil)
	assert.ErrorContains(t, err, "invalid number of workers")
}

func TestRunStopsWhenCanceled(t *testing.T) {
	options := createTestOptions(t)
	options.Cache = CacheMemory

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, options)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after the context was canceled")
	}
}
