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

package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/cogment/rag-backend/services/cache"
)

var log = logrus.WithField("component", "rag")

var tracer = otel.Tracer("github.com/cogment/rag-backend/services/rag")

const (
	DefaultTopK = 5
	MinTopK     = 1
	MaxTopK     = 20
)

var ErrInvalidRequest = errors.New("invalid query request")

type QueryRequest struct {
	Query string
	TopK  int
}

func (r QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.TopK < MinTopK || r.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be between %d and %d, got %d", ErrInvalidRequest, MinTopK, MaxTopK, r.TopK)
	}
	return nil
}

type QueryResponse struct {
	Answer  string
	Sources []string
}

// Retriever fetches the text chunks relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, top int) ([]string, error)
}

// Generator produces the answer from a system and a user prompt.
type Generator interface {
	CompleteWithSystem(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

type Options struct {
	// Workers is the maximum number of queries processed concurrently
	Workers int
	Prompts Prompts
	// Cache is optional, no caching when nil
	Cache   cache.Backend
	Metrics *Metrics
}

var DefaultOptions = Options{
	Workers: 4,
	Prompts: DefaultPrompts,
}

type Engine struct {
	retriever Retriever
	generator Generator
	prompts   *compiledPrompts
	workers   *semaphore.Weighted
	cache     cache.Backend
	metrics   *Metrics
}

func NewEngine(retriever Retriever, generator Generator, options Options) (*Engine, error) {
	if options.Workers <= 0 {
		return nil, fmt.Errorf("invalid number of workers %d, expecting at least 1", options.Workers)
	}
	prompts, err := compilePrompts(options.Prompts)
	if err != nil {
		return nil, err
	}
	return &Engine{
		retriever: retriever,
		generator: generator,
		prompts:   prompts,
		workers:   semaphore.NewWeighted(int64(options.Workers)),
		cache:     options.Cache,
		metrics:   options.Metrics,
	}, nil
}

// Query answers the request using the chunks retrieved from the search index as context.
func (e *Engine) Query(ctx context.Context, request QueryRequest) (*QueryResponse, error) {
	ctx, span := tracer.Start(ctx, "rag.query", trace.WithAttributes(
		attribute.Int("rag.top_k", request.TopK),
	))
	defer span.End()

	response, outcome, err := e.query(ctx, request)
	e.metrics.observeOutcome(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("rag.outcome", outcome))
	return response, nil
}

func (e *Engine) query(ctx context.Context, request QueryRequest) (*QueryResponse, string, error) {
	if err := request.Validate(); err != nil {
		return nil, outcomeInvalid, err
	}

	log := log.WithField("top_k", request.TopK)
	log.WithField("query", request.Query).Info("query received")

	if err := e.workers.Acquire(ctx, 1); err != nil {
		return nil, outcomeError, fmt.Errorf("no worker available: %w", err)
	}
	defer e.workers.Release(1)

	start := time.Now()

	cacheKey := cache.Key(request.Query, request.TopK)
	if e.cache != nil {
		entry, found, err := e.cache.Get(ctx, cacheKey)
		if err != nil {
			log.WithField("error", err).Warn("unable to read from the cache")
		} else if found {
			log.Debug("answer retrieved from the cache")
			e.metrics.observeCacheHit()
			sources := entry.Sources
			if sources == nil {
				// Empty slices don't survive every cache encoding
				sources = []string{}
			}
			return &QueryResponse{
				Answer:  entry.Answer,
				Sources: sources,
			}, outcomeCached, nil
		}
	}

	chunks, err := e.retrieve(ctx, request)
	if err != nil {
		return nil, outcomeError, err
	}
	e.metrics.observeRetrievedChunks(len(chunks))

	answer, err := e.generate(ctx, request, chunks)
	if err != nil {
		return nil, outcomeError, err
	}

	response := &QueryResponse{
		Answer:  answer,
		Sources: dedupe(chunks),
	}

	if e.cache != nil {
		err := e.cache.Set(ctx, cacheKey, &cache.Entry{
			Answer:    response.Answer,
			Sources:   response.Sources,
			CreatedAt: time.Now(),
		})
		if err != nil {
			log.WithField("error", err).Warn("unable to write to the cache")
		}
	}

	duration := time.Since(start)
	e.metrics.observeDuration(duration.Seconds())
	log.WithFields(logrus.Fields{
		"nb_sources": len(response.Sources),
		"duration":   duration,
	}).Debug("query answered")

	return response, outcomeSuccess, nil
}

func (e *Engine) retrieve(ctx context.Context, request QueryRequest) ([]string, error) {
	ctx, span := tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	chunks, err := e.retriever.Retrieve(ctx, request.Query, request.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to retrieve context: %w", err)
	}
	span.SetAttributes(attribute.Int("rag.nb_chunks", len(chunks)))
	return chunks, nil
}

func (e *Engine) generate(ctx context.Context, request QueryRequest, chunks []string) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.generate")
	defer span.End()

	userPrompt, err := e.prompts.renderUser(e.buildContext(chunks), request.Query)
	if err != nil {
		return "", err
	}

	answer, err := e.generator.CompleteWithSystem(ctx, e.prompts.System, userPrompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("unable to generate the answer: %w", err)
	}
	return answer, nil
}

func (e *Engine) buildContext(chunks []string) string {
	if len(chunks) == 0 {
		return e.prompts.NoContext
	}
	return strings.Join(chunks, e.prompts.Separator)
}

// dedupe removes duplicated chunks, keeping the first occurrence order.
func dedupe(chunks []string) []string {
	seen := make(map[string]struct{}, len(chunks))
	unique := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := seen[chunk]; ok {
			continue
		}
		seen[chunk] = struct{}{}
		unique = append(unique, chunk)
	}
	return unique
}
