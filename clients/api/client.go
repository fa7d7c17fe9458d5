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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client calls a running rag backend over http.
type Client struct {
	client *resty.Client
}

func NewClient(endpoint string, token string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("api endpoint is required")
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(endpoint, "/"))
	client.SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &Client{client: client}, nil
}

func (c *Client) HTTPClient() *http.Client {
	return c.client.GetClient()
}

func responseError(res *resty.Response) error {
	apiErr := &ResponseError{StatusCode: res.StatusCode()}
	if body, ok := res.Error().(*errorResponse); ok && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(res.Body()))
	}
	return apiErr
}

// Query asks a question, the server default is used when topK is nil.
func (c *Client) Query(ctx context.Context, query string, topK *int) (*QueryResponse, error) {
	var result QueryResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(queryRequest{Query: query, TopK: topK}).
		SetResult(&result).
		SetError(&errorResponse{}).
		Post("/query")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, responseError(res)
	}
	return &result, nil
}

// Health checks the service health and returns the round trip latency.
func (c *Client) Health(ctx context.Context) (*HealthResponse, time.Duration, error) {
	var result HealthResponse
	start := time.Now()
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&errorResponse{}).
		Get("/health")
	latency := time.Since(start)
	if err != nil {
		return nil, latency, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, latency, responseError(res)
	}
	return &result, latency, nil
}
