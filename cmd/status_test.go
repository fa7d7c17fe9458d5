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

package cmd

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/fatih/color"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogment/rag-backend/clients/api"
)

const testEndpoint = "http://localhost:8000"

func createTestClient(t *testing.T) *api.Client {
	client, err := api.NewClient(testEndpoint, "", 0)
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestStatusHealthy(t *testing.T) {
	color.NoColor = true
	client := createTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/health",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"status": "ok"}),
	)

	out := &bytes.Buffer{}
	assert.NoError(t, runStatus(context.Background(), out, client, testEndpoint))
	assert.Contains(t, out.String(), "[http://localhost:8000] is ok, answered in ")
}

func TestStatusUnhealthy(t *testing.T) {
	client := createTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/health",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"status": "starting"}),
	)

	err := runStatus(context.Background(), &bytes.Buffer{}, client, testEndpoint)
	assert.ErrorContains(t, err, "is unhealthy")
}

func TestStatusUnreachable(t *testing.T) {
	client := createTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/health",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"),
	)

	err := runStatus(context.Background(), &bytes.Buffer{}, client, testEndpoint)
	assert.ErrorContains(t, err, "unable to reach [http://localhost:8000]")
}
