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

package assembler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/scholarsearch/analyzer"
	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/cache"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/planner"
)

// BufferedResult is the buffered (non-streaming) counterpart of the SSE
// event sequence: everything a client would have assembled from
// plan+sources+chunk+complete, collected into one value for POST
// /search/analyze.
type BufferedResult struct {
	Plan            domain.Plan
	Sources         []domain.AnnotatedPassage
	Introduction    string
	Cached          bool
	CacheAgeSeconds float64
	ProcessingTime  time.Duration
}

// RunBuffered runs the same pipeline as Run (quota gate, cache, planner,
// fan-out, analyzer, completion side effects) but returns the complete
// result instead of streaming it, for callers that want one JSON response
// rather than an event stream. Quota and cache participate identically:
// a buffered analysis is no cheaper than a streamed one, so it draws from
// the same budget and is eligible for the same cache entries.
func (p *Pipeline) RunBuffered(ctx context.Context, identity domain.Identity, req domain.QueryRequest) (*BufferedResult, error) {
	start := time.Now()

	cleanQuery, filterTerms := ExtractFilterTerms(req.RawText)
	req.RawText = cleanQuery
	if len(filterTerms) > 0 {
		req.Filters.TextContains = append(req.Filters.TextContains, filterTerms...)
	}

	decision, err := p.Quota.Check(ctx, identity)
	if err != nil {
		slog.Warn("quota check failed, denying request", "error", err)
		return nil, apierrors.NewQuotaError("store_error")
	}
	if !decision.Allowed {
		return nil, apierrors.NewQuotaError("limit_exceeded")
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
		if ctx.Err() == nil {
			_ = p.Quota.Increment(ctx, identity)
		}
		return &BufferedResult{
			Plan:            cached.Plan,
			Sources:         cached.Sources,
			Introduction:    cached.Introduction,
			Cached:          true,
			CacheAgeSeconds: time.Since(cached.CreatedAt).Seconds(),
			ProcessingTime:  time.Since(start),
		}, nil
	}

	adapter := &plannerExecAdapter{ex: p.Executor, limitPerQuery: p.RetrievalLimitPerQuery}
	plan := p.Planner.Plan(ctx, planner.Request{
		QueryText:     cleanQuery,
		Filters:       req.Filters,
		Memory:        memEntries,
		UseResearcher: req.UseResearcher,
	}, adapter)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	hits := p.Executor.Run(ctx, plan.Queries, req.Filters, p.RetrievalLimitPerQuery, 0)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	toReturn := req.ClampedResultCap()
	if plan.IsExhaustive() {
		toReturn *= 3
	}

	result := p.Analyzer.Analyze(ctx, analyzer.Request{
		Query:         cleanQuery,
		Candidates:    hits,
		BatchSize:     p.batchSize(),
		MaxConcurrent: p.maxConcurrent(),
		ToReturn:      toReturn,
		SemanticNote:  plan.SemanticNote,
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

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

	return &BufferedResult{
		Plan:           plan,
		Sources:        result.Sources,
		Introduction:   result.Introduction,
		ProcessingTime: time.Since(start),
	}, nil
}
