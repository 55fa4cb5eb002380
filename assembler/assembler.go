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

// Package assembler is the Response Assembler / Stream: it wires the
// quota gate, cache, planner, fan-out executor, and analyzer into the
// single Server-Sent Events sequence a search request emits, in the order
// thinking?, plan, progress*, sources, chunk+, complete (spec.md §4.9).
package assembler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/scholarsearch/analyzer"
	"github.com/kadirpekel/scholarsearch/cache"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/executor"
	"github.com/kadirpekel/scholarsearch/memory"
	"github.com/kadirpekel/scholarsearch/planner"
	"github.com/kadirpekel/scholarsearch/quota"
)

// Timing breaks down a request's wall-clock cost by stage, carried in the
// complete event.
type Timing struct {
	TotalMs     int64 `json:"totalMs"`
	PlanMs      int64 `json:"planMs,omitempty"`
	RetrievalMs int64 `json:"retrievalMs,omitempty"`
	AnalysisMs  int64 `json:"analysisMs,omitempty"`
}

type thinkingEvent struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	IsExhaustive bool   `json:"isExhaustive"`
}

type planEvent struct {
	Type    string      `json:"type"`
	Plan    domain.Plan `json:"plan"`
	TwoPass bool        `json:"twoPass,omitempty"`
	Cached  bool        `json:"cached,omitempty"`
}

type progressEvent struct {
	Type    string `json:"type"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

type sourcesEvent struct {
	Type    string                   `json:"type"`
	Sources []domain.AnnotatedPassage `json:"sources"`
}

type chunkEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type queryLimitInfo struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

type completeEvent struct {
	Type            string         `json:"type"`
	Timing          Timing         `json:"timing"`
	QueryLimit      queryLimitInfo `json:"queryLimit"`
	IsAuthenticated bool           `json:"isAuthenticated"`
	Cached          bool           `json:"cached,omitempty"`
	CacheAgeSeconds float64        `json:"cacheAge,omitempty"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Pipeline is the Response Assembler: one instance serves every request,
// wiring the already-constructed component adapters together.
type Pipeline struct {
	Cache    *cache.Cache
	Quota    *quota.Gate
	Planner  *planner.Planner
	Executor *executor.Executor
	Analyzer *analyzer.Analyzer
	Memory   memory.Adapter

	// BatchSize/MaxConcurrent feed the analyzer; RetrievalLimitPerQuery
	// bounds each subquery's own hit count before merge/truncation.
	BatchSize             int
	MaxConcurrent         int
	RetrievalLimitPerQuery int
	MemoryTopK            int

	// Model names the LLM model the planner/analyzer run against, surfaced
	// verbatim in the buffered /search/analyze response.
	Model string
}

// New builds a Pipeline with sane defaults for the tunables.
func New(c *cache.Cache, q *quota.Gate, p *planner.Planner, ex *executor.Executor, an *analyzer.Analyzer, mem memory.Adapter) *Pipeline {
	return &Pipeline{
		Cache:                  c,
		Quota:                  q,
		Planner:                p,
		Executor:               ex,
		Analyzer:               an,
		Memory:                 mem,
		BatchSize:              2,
		MaxConcurrent:          10,
		RetrievalLimitPerQuery: 20,
		MemoryTopK:             5,
	}
}

// Run executes one request end to end, writing the SSE event sequence to
// w. ctx should be r.Context() so client disconnection cancels in-flight
// work cooperatively.
func (p *Pipeline) Run(ctx context.Context, w http.ResponseWriter, identity domain.Identity, req domain.QueryRequest) {
	start := time.Now()

	cleanQuery, filterTerms := ExtractFilterTerms(req.RawText)
	req.RawText = cleanQuery
	if len(filterTerms) > 0 {
		req.Filters.TextContains = append(req.Filters.TextContains, filterTerms...)
	}

	decision, err := p.Quota.Check(ctx, identity)
	if err != nil {
		// A quota-store failure denies the request: the alternative
		// (fail open) would let an outage erase every budget.
		slog.Warn("quota check failed, denying request", "error", err)
		writeSSEError(w, http.StatusPaymentRequired, "query_limit_exceeded")
		return
	}
	if !decision.Allowed {
		writeSSEError(w, http.StatusPaymentRequired, "query_limit_exceeded")
		return
	}

	sw, err := newSSEWriter(w)
	if err != nil {
		slog.Error("assembler: response does not support streaming", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var memEntries []domain.MemoryEntry
	if p.Memory != nil && identity.ID() != "" {
		memEntries, _ = p.Memory.Recall(ctx, identity.ID(), cleanQuery, p.memoryTopK())
	}

	eligible := cache.Eligible(req)
	var cached *domain.CachedResponse
	if eligible {
		cached = p.Cache.Lookup(ctx, cleanQuery)
	}

	if cached != nil {
		p.streamCacheHit(sw, cached, identity, decision, start)
		if ctx.Err() == nil {
			_ = p.Quota.Increment(ctx, identity)
		}
		return
	}

	strategy := planner.Classify(cleanQuery, req.UseResearcher)
	isExhaustive := strategy == domain.StrategyExhaustive
	if isExhaustive {
		_ = sw.WriteEvent(thinkingEvent{
			Type:         "thinking",
			Message:      "Researching across traditions for a comprehensive answer...",
			IsExhaustive: true,
		})
	}

	adapter := &plannerExecAdapter{ex: p.Executor, limitPerQuery: p.RetrievalLimitPerQuery}

	planStart := time.Now()
	plan := p.Planner.Plan(ctx, planner.Request{
		QueryText:     cleanQuery,
		Filters:       req.Filters,
		Memory:        memEntries,
		UseResearcher: req.UseResearcher,
	}, adapter)
	planMs := time.Since(planStart).Milliseconds()

	_ = sw.WriteEvent(planEvent{Type: "plan", Plan: plan, TwoPass: plan.IsExhaustive()})

	if plan.IsExhaustive() {
		_ = sw.WriteEvent(progressEvent{Type: "progress", Phase: "pass1", Message: "retrieving pass-1 candidates"})
		_ = sw.WriteEvent(progressEvent{Type: "progress", Phase: "pass2", Message: "refining with pass-2 queries"})
	}

	if ctx.Err() != nil {
		return
	}

	retrievalStart := time.Now()
	hits := p.Executor.Run(ctx, plan.Queries, req.Filters, p.RetrievalLimitPerQuery, 0)
	retrievalMs := time.Since(retrievalStart).Milliseconds()

	if ctx.Err() != nil {
		return
	}

	toReturn := req.ClampedResultCap()
	if plan.IsExhaustive() {
		toReturn *= 3
	}

	analysisStart := time.Now()
	result := p.Analyzer.Analyze(ctx, analyzer.Request{
		Query:         cleanQuery,
		Candidates:    hits,
		BatchSize:     p.batchSize(),
		MaxConcurrent: p.maxConcurrent(),
		ToReturn:      toReturn,
		SemanticNote:  plan.SemanticNote,
	})
	analysisMs := time.Since(analysisStart).Milliseconds()

	if ctx.Err() != nil {
		return
	}

	_ = sw.WriteEvent(sourcesEvent{Type: "sources", Sources: result.Sources})
	for _, part := range chunkify(result.Introduction) {
		_ = sw.WriteEvent(chunkEvent{Type: "chunk", Text: part})
	}

	timing := Timing{
		TotalMs:     time.Since(start).Milliseconds(),
		PlanMs:      planMs,
		RetrievalMs: retrievalMs,
		AnalysisMs:  analysisMs,
	}
	_ = sw.WriteEvent(completeEvent{
		Type:            "complete",
		Timing:          timing,
		QueryLimit:      remainingAfterIncrement(decision),
		IsAuthenticated: identity.IsAuthenticated(),
	})

	// Cancellation: no side effects if the client is gone (spec.md §4.9,
	// §5 — partial results are not persisted).
	if ctx.Err() != nil {
		return
	}

	// Completion side-effects, strictly in this order (spec.md §4.9).
	if err := p.Quota.Increment(ctx, identity); err != nil {
		slog.Warn("quota increment failed", "error", err)
	}
	if eligible {
		if err := p.Cache.Store(ctx, cleanQuery, plan, result.Sources, result.Introduction); err != nil {
			slog.Warn("cache write failed", "error", err)
		}
	}
	if p.Memory != nil && identity.ID() != "" {
		if err := p.Memory.Append(ctx, domain.MemoryEntry{IdentityID: identity.ID(), Role: domain.RoleUser, Text: cleanQuery}); err != nil {
			slog.Warn("memory append (user turn) failed", "error", err)
		}
		if err := p.Memory.Append(ctx, domain.MemoryEntry{IdentityID: identity.ID(), Role: domain.RoleAssistant, Text: result.Introduction}); err != nil {
			slog.Warn("memory append (assistant turn) failed", "error", err)
		}
	}
}

func (p *Pipeline) streamCacheHit(sw *sseWriter, cached *domain.CachedResponse, identity domain.Identity, decision quota.Decision, start time.Time) {
	_ = sw.WriteEvent(planEvent{Type: "plan", Plan: cached.Plan, TwoPass: cached.Plan.IsExhaustive(), Cached: true})
	_ = sw.WriteEvent(sourcesEvent{Type: "sources", Sources: cached.Sources})
	_ = sw.WriteEvent(chunkEvent{Type: "chunk", Text: cached.Introduction})

	limit := remainingAfterIncrement(decision)
	_ = sw.WriteEvent(completeEvent{
		Type:            "complete",
		Timing:          Timing{TotalMs: time.Since(start).Milliseconds()},
		QueryLimit:      limit,
		IsAuthenticated: identity.IsAuthenticated(),
		Cached:          true,
		CacheAgeSeconds: time.Since(cached.CreatedAt).Seconds(),
	})
}

// remainingAfterIncrement projects decision.Remaining one increment
// forward, since the complete event reports the caller's budget as of
// right after this request is counted.
func remainingAfterIncrement(decision quota.Decision) queryLimitInfo {
	if decision.Limit < 0 {
		return queryLimitInfo{Remaining: -1, Limit: -1}
	}
	remaining := decision.Remaining - 1
	if remaining < 0 {
		remaining = 0
	}
	return queryLimitInfo{Remaining: remaining, Limit: decision.Limit}
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize <= 0 {
		return 2
	}
	return p.BatchSize
}

func (p *Pipeline) maxConcurrent() int {
	if p.MaxConcurrent <= 0 {
		return 10
	}
	return p.MaxConcurrent
}

func (p *Pipeline) memoryTopK() int {
	if p.MemoryTopK <= 0 {
		return 5
	}
	return p.MemoryTopK
}

// chunkify splits text into a handful of word-grouped deltas so the chunk
// event actually streams rather than arriving as one blob; always returns
// at least one element for non-empty text.
func chunkify(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	const groupSize = 6
	var chunks []string
	for i := 0; i < len(words); i += groupSize {
		end := i + groupSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " ")+" ")
	}
	return chunks
}

// plannerExecAdapter bridges the concrete fan-out executor to the
// planner's narrow Executor interface, so the planner package stays free
// of any retrieval dependency.
type plannerExecAdapter struct {
	ex            *executor.Executor
	limitPerQuery int
}

func (a *plannerExecAdapter) Run(ctx context.Context, queries []domain.SubQuery, filters domain.Filters) (planner.PassSummary, error) {
	angleByText := make(map[string]string, len(queries))
	for _, q := range queries {
		angleByText[q.Text] = q.Angle
	}

	hits := a.ex.Run(ctx, queries, filters, a.limitPerQuery, 0)

	summary := planner.PassSummary{CountsByAngle: make(map[string]int)}
	for i, h := range hits {
		angle := angleByText[h.ProvenanceQuery]
		if angle == "" {
			angle = "general"
		}
		summary.CountsByAngle[angle]++
		if i < 5 {
			summary.SampleTitles = append(summary.SampleTitles, h.Title)
		}
	}
	return summary, nil
}
