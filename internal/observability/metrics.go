// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the process-wide Prometheus collectors for the query-time
// pipeline. A nil *Metrics is safe to call methods on (they become no-ops),
// so components don't need to nil-check before recording.
type Metrics struct {
	llmCallDuration       *prometheus.HistogramVec
	retrievalDuration     *prometheus.HistogramVec
	llmCallsTotal         *prometheus.CounterVec
	quotaDenialsTotal     prometheus.Counter
	cacheHitsTotal        prometheus.Counter
	cacheMissesTotal      prometheus.Counter
}

var globalMetrics *Metrics

// NewMetrics creates and registers the collectors against registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "scholarsearch_llm_call_duration_seconds",
			Help: "Duration of LLM adapter calls.",
		}, []string{"model", "outcome"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "scholarsearch_retrieval_duration_seconds",
			Help: "Duration of retrieval adapter calls.",
		}, []string{"mode"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarsearch_llm_calls_total",
			Help: "Total LLM adapter calls by model and outcome.",
		}, []string{"model", "outcome"}),
		quotaDenialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarsearch_quota_denials_total",
			Help: "Total requests denied by the quota gate.",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarsearch_cache_hits_total",
			Help: "Total fingerprint cache hits.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarsearch_cache_misses_total",
			Help: "Total fingerprint cache misses.",
		}),
	}
	registry.MustRegister(m.llmCallDuration, m.retrievalDuration, m.llmCallsTotal,
		m.quotaDenialsTotal, m.cacheHitsTotal, m.cacheMissesTotal)
	globalMetrics = m
	return m
}

// GetGlobalMetrics returns the process-wide metrics, or nil if NewMetrics was
// never called.
func GetGlobalMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) RecordLLMCall(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmCallDuration.WithLabelValues(model, outcome).Observe(d.Seconds())
	m.llmCallsTotal.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) RecordRetrieval(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RecordQuotaDenial() {
	if m == nil {
		return
	}
	m.quotaDenialsTotal.Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}
