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

// Package retrieval is the thin, typed facade the Fan-out Executor calls
// against the index: keyword (SQL full-text), semantic (vector.Provider),
// and hybrid (rank-fusion blend of both) modes behind one Adapter.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/embedder"
	"github.com/kadirpekel/scholarsearch/vector"
)

// Request is one retrieval call.
type Request struct {
	Mode          domain.RetrievalMode
	QueryText     string
	Filters       domain.Filters
	Limit         int
	SemanticRatio float64  // used only in hybrid mode; defaults to 0.5
	Embedding     []float32 // precomputed query vector; embedded on demand if nil
}

// Response is the result of one retrieval call.
type Response struct {
	Hits           []domain.CandidatePassage
	TotalEstimated int
	Timing         time.Duration
}

// Adapter is the uniform interface regardless of mode (spec.md §4.3).
type Adapter interface {
	Retrieve(ctx context.Context, req Request) (*Response, error)
}

// index is the combining Adapter implementation: keyword mode queries the
// SQL paragraph store, semantic mode delegates to a vector.Provider, hybrid
// blends both with reciprocal-rank fusion.
type index struct {
	keyword    *KeywordStore
	provider   vector.Provider
	embedder   embedder.Embedder
	collection string
}

// New builds the combining Adapter. keyword may be nil (keyword/hybrid mode
// then returns no keyword hits); provider may be vector.NilProvider{} for
// the same reason on the semantic side.
func New(keyword *KeywordStore, provider vector.Provider, emb embedder.Embedder, collection string) Adapter {
	return &index{keyword: keyword, provider: provider, embedder: emb, collection: collection}
}

func (a *index) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", apierrors.ErrIndexBadRequest)
	}

	var resp *Response
	var err error

	switch req.Mode {
	case domain.ModeKeyword:
		resp, err = a.retrieveKeyword(ctx, req)
	case domain.ModeSemantic:
		resp, err = a.retrieveSemantic(ctx, req)
	case domain.ModeHybrid:
		resp, err = a.retrieveHybrid(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown retrieval mode %q", apierrors.ErrIndexBadRequest, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Timing = time.Since(start)
	return resp, nil
}

func (a *index) retrieveKeyword(ctx context.Context, req Request) (*Response, error) {
	if a.keyword == nil {
		return &Response{Hits: nil, TotalEstimated: 0}, nil
	}
	hits, total, err := a.keyword.Search(ctx, req.QueryText, req.Filters, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Hits: hits, TotalEstimated: total}, nil
}

func (a *index) retrieveSemantic(ctx context.Context, req Request) (*Response, error) {
	vec, err := a.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []vector.Result
	filter := vectorFilter(req.Filters)
	if len(filter) > 0 {
		results, err = a.provider.SearchWithFilter(ctx, a.collection, vec, req.Limit, filter)
	} else {
		results, err = a.provider.Search(ctx, a.collection, vec, req.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
	}

	hits := make([]domain.CandidatePassage, 0, len(results))
	for _, r := range results {
		hits = append(hits, resultToCandidate(r))
	}
	hits = applyTextContains(hits, req.Filters)
	hits = applyYearRange(hits, req.Filters)

	return &Response{Hits: hits, TotalEstimated: len(hits)}, nil
}

// retrieveHybrid fetches from both sides and blends with reciprocal-rank
// fusion, scaling the per-side fetch the way rag/search.go:searchSingle
// scales fetchK for reranking (more candidates in, so the fused ranking has
// material to work with).
func (a *index) retrieveHybrid(ctx context.Context, req Request) (*Response, error) {
	ratio := req.SemanticRatio
	if ratio <= 0 {
		ratio = 0.5
	}

	fetchK := req.Limit * 3
	if fetchK > 100 {
		fetchK = 100
	}

	keywordReq := req
	keywordReq.Limit = fetchK
	semanticReq := req
	semanticReq.Limit = fetchK

	var keywordResp, semanticResp *Response
	var keywordErr, semanticErr error

	keywordResp, keywordErr = a.retrieveKeyword(ctx, keywordReq)
	semanticResp, semanticErr = a.retrieveSemantic(ctx, semanticReq)

	// Either side degrading gracefully is acceptable; only fail if both did.
	if keywordErr != nil && semanticErr != nil {
		return nil, fmt.Errorf("both keyword and semantic retrieval failed: %v; %v", keywordErr, semanticErr)
	}
	var keywordHits, semanticHits []domain.CandidatePassage
	if keywordResp != nil {
		keywordHits = keywordResp.Hits
	}
	if semanticResp != nil {
		semanticHits = semanticResp.Hits
	}

	fused := fuseRanks(keywordHits, semanticHits, ratio)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	return &Response{Hits: fused, TotalEstimated: len(fused)}, nil
}

func (a *index) queryVector(ctx context.Context, req Request) ([]float32, error) {
	if len(req.Embedding) > 0 {
		return req.Embedding, nil
	}
	if a.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured for semantic retrieval", apierrors.ErrIndexBadRequest)
	}
	vec, err := a.embedder.Embed(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
	}
	return vec, nil
}

// rrfConstant is the standard reciprocal-rank-fusion smoothing constant.
const rrfConstant = 60.0

// fuseRanks merges two ranked hit lists by reciprocal-rank fusion, weighting
// each side's contribution by ratio (semantic) and 1-ratio (keyword). Used
// only when the backend exposes no native hybrid call.
func fuseRanks(keywordHits, semanticHits []domain.CandidatePassage, semanticRatio float64) []domain.CandidatePassage {
	type scored struct {
		passage domain.CandidatePassage
		score   float64
	}

	byID := make(map[string]*scored)
	order := make([]string, 0, len(keywordHits)+len(semanticHits))

	add := func(hits []domain.CandidatePassage, weight float64) {
		for rank, h := range hits {
			s, ok := byID[h.ID]
			if !ok {
				s = &scored{passage: h}
				byID[h.ID] = s
				order = append(order, h.ID)
			}
			s.score += weight * (1.0 / (rrfConstant + float64(rank+1)))
		}
	}

	add(keywordHits, 1-semanticRatio)
	add(semanticHits, semanticRatio)

	out := make([]scored, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	result := make([]domain.CandidatePassage, len(out))
	for i, s := range out {
		result[i] = s.passage
	}
	return result
}

// vectorFilter translates the structured filter fields a generic
// vector.Provider equality filter can express. Year ranges and
// text-contains disjunction have no equality-map representation, so they're
// applied as a post-filter over the returned hits instead.
func vectorFilter(f domain.Filters) map[string]any {
	out := make(map[string]any)
	if f.Tradition != "" {
		out["tradition"] = f.Tradition
	}
	if f.Collection != "" {
		out["collection"] = f.Collection
	}
	if f.Language != "" {
		out["language"] = f.Language
	}
	if f.DocumentID != "" {
		out["document_id"] = f.DocumentID
	}
	return out
}

// applyTextContains keeps only hits matching the text-contains disjunction
// `(author ~ t) ∨ (collection ~ t) ∨ (title ~ t)` over the extracted terms
// (spec.md §4.3), case-insensitive substring match.
func applyTextContains(hits []domain.CandidatePassage, f domain.Filters) []domain.CandidatePassage {
	if !f.HasTextContains() {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		for _, term := range f.TextContains {
			t := strings.ToLower(term)
			if strings.Contains(strings.ToLower(h.Author), t) ||
				strings.Contains(strings.ToLower(h.Collection), t) ||
				strings.Contains(strings.ToLower(h.Title), t) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func applyYearRange(hits []domain.CandidatePassage, f domain.Filters) []domain.CandidatePassage {
	if f.YearMin == nil && f.YearMax == nil {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if f.YearMin != nil && h.Year < *f.YearMin {
			continue
		}
		if f.YearMax != nil && h.Year > *f.YearMax {
			continue
		}
		out = append(out, h)
	}
	return out
}

// resultToCandidate converts a vector.Result into a CandidatePassage,
// extracting stored fields from its metadata map the way
// rag/search.go:searchSingle does (including the float64-from-JSON fallback
// for integer fields).
func resultToCandidate(r vector.Result) domain.CandidatePassage {
	text := r.Content
	if text == "" {
		if c, ok := r.Metadata["content"].(string); ok {
			text = c
		}
	}

	c := domain.CandidatePassage{
		ID:   r.ID,
		Text: text,
	}
	if v, ok := r.Metadata["document_id"].(string); ok {
		c.DocumentID = v
	}
	if v, ok := r.Metadata["paragraph_index"].(int); ok {
		c.ParagraphIndex = v
	} else if v, ok := r.Metadata["paragraph_index"].(float64); ok {
		c.ParagraphIndex = int(v)
	}
	if v, ok := r.Metadata["title"].(string); ok {
		c.Title = v
	}
	if v, ok := r.Metadata["author"].(string); ok {
		c.Author = v
	}
	if v, ok := r.Metadata["tradition"].(string); ok {
		c.Tradition = v
	}
	if v, ok := r.Metadata["collection"].(string); ok {
		c.Collection = v
	}
	if v, ok := r.Metadata["language"].(string); ok {
		c.Language = v
	}
	if v, ok := r.Metadata["year"].(int); ok {
		c.Year = v
	} else if v, ok := r.Metadata["year"].(float64); ok {
		c.Year = int(v)
	}
	return c
}
