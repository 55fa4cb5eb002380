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

// Package executor is the Fan-out Executor: given a Plan and caller
// filters, it runs every SubQuery concurrently (capped), tolerates single
// subquery failures by degrading to an empty result for that subquery, and
// merges the results into one deduplicated, order-preserving candidate
// list.
package executor

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/retrieval"
)

// Executor runs a plan's SubQueries against the retrieval adapter.
type Executor struct {
	adapter     retrieval.Adapter
	concurrency int
	hardCap     int
}

// New builds an Executor. concurrency bounds how many SubQueries run at
// once (≈5 per spec.md §5); hardCap bounds the merged candidate list
// regardless of how many hits came back.
func New(adapter retrieval.Adapter, concurrency, hardCap int) *Executor {
	if concurrency <= 0 {
		concurrency = 5
	}
	if hardCap <= 0 {
		hardCap = 200
	}
	return &Executor{adapter: adapter, concurrency: concurrency, hardCap: hardCap}
}

// subResult is one SubQuery's outcome, keeping its plan index so the merge
// step can recover plan order regardless of completion order.
type subResult struct {
	index       int
	subQuery    domain.SubQuery
	hits        []domain.CandidatePassage
}

// Run executes every SubQuery in plan concurrently and returns the merged,
// deduplicated, first-seen-ordered candidate list, truncated to
// min(maxResults, hardCap).
func (e *Executor) Run(ctx context.Context, queries []domain.SubQuery, callerFilters domain.Filters, limitPerQuery, maxResults int) []domain.CandidatePassage {
	results := make([]subResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, sq := range queries {
		i, sq := i, sq
		g.Go(func() error {
			req := retrieval.Request{
				Mode:      sq.Mode,
				QueryText: sq.Text,
				Filters:   sq.Filters.Intersect(callerFilters),
				Limit:     limitPerQuery,
			}
			resp, err := e.adapter.Retrieve(gctx, req)
			if errors.Is(err, apierrors.ErrIndexUnavailable) {
				// A transient index failure gets one retry before degrading.
				resp, err = e.adapter.Retrieve(gctx, req)
			}
			if err != nil {
				// A single subquery failing degrades to an empty list for
				// that subquery rather than failing the whole fan-out
				// (spec.md §4.7).
				slog.Warn("subquery retrieval failed", "query", sq.Text, "mode", sq.Mode, "error", err)
				results[i] = subResult{index: i, subQuery: sq}
				return nil
			}
			results[i] = subResult{index: i, subQuery: sq, hits: resp.Hits}
			return nil
		})
	}
	// errgroup's own Go functions never return an error (failures degrade
	// in place), so Wait always returns nil here.
	_ = g.Wait()

	return mergeResults(results, e.hardCap, maxResults)
}

// mergeResults iterates subqueries in plan order, then hits in
// index-provided order within each, keeping the first occurrence of each
// candidate id (spec.md §4.7, §8 "Deduplication").
func mergeResults(results []subResult, hardCap, maxResults int) []domain.CandidatePassage {
	limit := hardCap
	if maxResults > 0 && maxResults < limit {
		limit = maxResults
	}

	seen := make(map[string]bool)
	merged := make([]domain.CandidatePassage, 0, limit)
	for _, r := range results {
		for _, hit := range r.hits {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			hit.ProvenanceQuery = r.subQuery.Text
			merged = append(merged, hit)
			if len(merged) >= limit {
				return merged
			}
		}
	}
	return merged
}
