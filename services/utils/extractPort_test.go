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

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPort(t *testing.T) {
	port, err := ExtractPort("[::]:8000")
	assert.NoError(t, err)
	assert.Equal(t, uint(8000), port)

	port, err = ExtractPort("127.0.0.1:9000")
	assert.NoError(t, err)
	assert.Equal(t, uint(9000), port)
}

func TestExtractPortInvalid(t *testing.T) {
	for _, address := range []string{"localhost", "localhost:http", "localhost:70000", "localhost:-2"} {
		_, err := ExtractPort(address)
		assert.Error(t, err, address)
	}
}
