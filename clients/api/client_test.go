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
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/openlyinc/pointy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queryURL = "http://localhost:8000/query"
const healthURL = "http://localhost:8000/health"

func createTestClient(t *testing.T, token string) *Client {
	client, err := NewClient("http://localhost:8000/", token, time.Second)
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient("", "", 0)
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	client := createTestClient(t, "my-token")

	var receivedBody map[string]interface{}
	httpmock.RegisterResponder(http.MethodPost, queryURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer my-token", req.Header.Get("Authorization"))
			if err := json.NewDecoder(req.Body).Decode(&receivedBody); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"answer":  "Paris",
				"sources": []string{"France's capital is Paris."},
			})
		},
	)

	res, err := client.Query(context.Background(), "capital of France?", pointy.Int(3))
	require.NoError(t, err)
	assert.Equal(t, "Paris", res.Answer)
	assert.Equal(t, []string{"France's capital is Paris."}, res.Sources)
	assert.Equal(t, map[string]interface{}{"query": "capital of France?", "top_k": float64(3)}, receivedBody)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestQueryWithoutTopK(t *testing.T) {
	client := createTestClient(t, "")

	var receivedBody map[string]interface{}
	httpmock.RegisterResponder(http.MethodPost, queryURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Empty(t, req.Header.Get("Authorization"))
			if err := json.NewDecoder(req.Body).Decode(&receivedBody); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"answer":  "No idea",
				"sources": []string{},
			})
		},
	)

	res, err := client.Query(context.Background(), "anything?", nil)
	require.NoError(t, err)
	assert.Equal(t, "No idea", res.Answer)
	assert.NotContains(t, receivedBody, "top_k")
}

func TestQueryErrorStatus(t *testing.T) {
	for _, statusCode := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(fmt.Sprintf("%d", statusCode), func(t *testing.T) {
			client := createTestClient(t, "")
			httpmock.RegisterResponder(http.MethodPost, queryURL,
				httpmock.NewJsonResponderOrPanic(statusCode, map[string]interface{}{"message": "it failed"}),
			)

			res, err := client.Query(context.Background(), "q", nil)
			assert.Nil(t, res)

			var apiErr *ResponseError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, statusCode, apiErr.StatusCode)
			assert.Equal(t, "it failed", apiErr.Message)
		})
	}
}

func TestHealth(t *testing.T) {
	client := createTestClient(t, "")
	httpmock.RegisterResponder(http.MethodGet, healthURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"status": "ok"}),
	)

	res, latency, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.GreaterOrEqual(t, latency, time.Duration(0))
}

func TestHealthUnavailable(t *testing.T) {
	client := createTestClient(t, "")
	httpmock.RegisterResponder(http.MethodGet, healthURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "service unavailable"),
	)

	_, _, err := client.Health(context.Background())
	var apiErr *ResponseError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "service unavailable", apiErr.Message)
}
