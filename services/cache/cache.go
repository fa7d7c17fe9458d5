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

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is a cached answer to a query.
type Entry struct {
	Answer    string
	Sources   []string
	CreatedAt time.Time
}

// Expired reports whether the entry is older than ttl, a zero ttl never expires.
func (e *Entry) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > ttl
}

type Backend interface {
	Destroy()

	// Get returns the entry stored for key, expired entries are reported as missing.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Key computes the cache key of a query and its number of retrieved documents.
func Key(query string, topK int) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%d|%s", topK, query)))
}

type UnexpectedError struct {
	Err error
}

func NewUnexpectedError(format string, a ...interface{}) *UnexpectedError {
	return &UnexpectedError{Err: fmt.Errorf(format, a...)}
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected cache error: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
