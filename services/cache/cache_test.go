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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("what is cogment?", 5), Key("what is cogment?", 5))
	assert.NotEqual(t, Key("what is cogment?", 5), Key("what is cogment?", 6))
	assert.NotEqual(t, Key("what is cogment?", 5), Key("what is Cogment?", 5))
	assert.Len(t, Key("", 1), 16)
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	entry := &Entry{CreatedAt: now.Add(-2 * time.Minute)}

	assert.True(t, entry.Expired(time.Minute, now))
	assert.False(t, entry.Expired(5*time.Minute, now))
	assert.False(t, entry.Expired(0, now))
}
