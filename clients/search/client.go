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

package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "search-client")

const scoreField = "@search.score"

type Options struct {
	Endpoint   string
	Key        string
	IndexName  string
	APIVersion string
	ChunkField string
	Timeout    time.Duration
}

var DefaultOptions = Options{
	APIVersion: "2023-11-01",
	ChunkField: "chunk",
	Timeout:    30 * time.Second,
}

// Document is a single hit returned by the search index, keyed by field name.
type Document struct {
	Fields map[string]interface{}
	Score  float64
}

type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("search request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("search request failed with status %d: %s", e.StatusCode, e.Message)
}

type searchRequest struct {
	Search string `json:"search"`
	Top    int    `json:"top"`
}

type searchResponse struct {
	Value []map[string]interface{} `json:"value"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	client     *resty.Client
	indexName  string
	apiVersion string
	chunkField string
}

func NewClient(options Options) (*Client, error) {
	if options.Endpoint == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}
	if options.IndexName == "" {
		return nil, fmt.Errorf("search index name is required")
	}
	if options.APIVersion == "" {
		options.APIVersion = DefaultOptions.APIVersion
	}
	if options.ChunkField == "" {
		options.ChunkField = DefaultOptions.ChunkField
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(options.Endpoint, "/"))
	client.SetHeader("api-key", options.Key)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if options.Timeout > 0 {
		client.SetTimeout(options.Timeout)
	}

	return &Client{
		client:     client,
		indexName:  options.IndexName,
		apiVersion: options.APIVersion,
		chunkField: options.ChunkField,
	}, nil
}

// HTTPClient exposes the underlying http client, mostly so that tests can mock the transport.
func (c *Client) HTTPClient() *http.Client {
	return c.client.GetClient()
}

// Search runs a full text search against the index and returns at most `top` documents.
func (c *Client) Search(ctx context.Context, text string, top int) ([]Document, error) {
	result := searchResponse{}
	errResult := errorResponse{}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("index", c.indexName).
		SetQueryParam("api-version", c.apiVersion).
		SetBody(searchRequest{
			Search: text,
			Top:    top,
		}).
		SetResult(&result).
		SetError(&errResult).
		Post("/indexes/{index}/docs/search")
	if err != nil {
		return nil, fmt.Errorf("search request to index %q failed: %w", c.indexName, err)
	}
	if resp.IsError() {
		return nil, &ResponseError{
			StatusCode: resp.StatusCode(),
			Message:    errResult.Error.Message,
		}
	}

	docs := make([]Document, 0, len(result.Value))
	for _, fields := range result.Value {
		doc := Document{Fields: fields}
		if score, ok := fields[scoreField].(float64); ok {
			doc.Score = score
		}
		docs = append(docs, doc)
	}

	log.WithFields(logrus.Fields{
		"index":   c.indexName,
		"top":     top,
		"nb_hits": len(docs),
	}).Debug("search done")

	return docs, nil
}

// Retrieve searches the index and extracts the chunk field of every hit.
func (c *Client) Retrieve(ctx context.Context, text string, top int) ([]string, error) {
	docs, err := c.Search(ctx, text, top)
	if err != nil {
		return nil, err
	}
	return Chunks(docs, c.chunkField), nil
}

// Chunks returns the non-empty string values of `field`, in hit order.
func Chunks(docs []Document, field string) []string {
	chunks := []string{}
	for _, doc := range docs {
		value, ok := doc.Fields[field]
		if !ok {
			continue
		}
		chunk, ok := value.(string)
		if !ok || chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
