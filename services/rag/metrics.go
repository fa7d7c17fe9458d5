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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeCached  = "cached"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

type Metrics struct {
	queries         *prometheus.CounterVec
	duration        prometheus.Histogram
	retrievedChunks prometheus.Histogram
	cacheHits       prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_queries_total",
			Help: "Number of processed queries by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "Duration of the processing of successful queries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		retrievedChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieved_chunks",
			Help:    "Number of chunks retrieved from the search index per query.",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_cache_hits_total",
			Help: "Number of queries answered from the cache.",
		}),
	}

	for _, collector := range []prometheus.Collector{m.queries, m.duration, m.retrievedChunks, m.cacheHits} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) observeRetrievedChunks(count int) {
	if m == nil {
		return
	}
	m.retrievedChunks.Observe(float64(count))
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
