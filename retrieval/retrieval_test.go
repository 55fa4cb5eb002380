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

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/vector"
)

// fakeProvider is a minimal in-memory vector.Provider for testing semantic
// and hybrid retrieval without a real backend.
type fakeProvider struct {
	results []vector.Result
}

func (f *fakeProvider) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	return nil
}

func (f *fakeProvider) Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.Result, error) {
	return f.SearchWithFilter(ctx, collection, vec, topK, nil)
}

func (f *fakeProvider) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	var out []vector.Result
	for _, r := range f.results {
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		out = append(out, r)
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func (f *fakeProvider) Delete(ctx context.Context, collection, id string) error { return nil }
func (f *fakeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return nil
}
func (f *fakeProvider) CreateCollection(ctx context.Context, collection string, dim int) error {
	return nil
}
func (f *fakeProvider) DeleteCollection(ctx context.Context, collection string) error { return nil }
func (f *fakeProvider) Name() string                                                 { return "fake" }
func (f *fakeProvider) Close() error                                                 { return nil }

// fakeEmbedder returns a fixed vector regardless of input text.
type fakeEmbedder struct {
	vec []float32
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vec, nil
}
func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}
func (e *fakeEmbedder) Dimension() int { return len(e.vec) }
func (e *fakeEmbedder) Model() string  { return "fake" }
func (e *fakeEmbedder) Close() error   { return nil }

func semanticHitsFixture() []vector.Result {
	return []vector.Result{
		{ID: "s1", Score: 0.9, Content: "Justice is the virtue of the soul.", Metadata: map[string]any{
			"document_id": "d1", "title": "Republic", "author": "Plato", "tradition": "western", "year": -380,
		}},
		{ID: "s2", Score: 0.8, Content: "The Tao that can be spoken is not the eternal Tao.", Metadata: map[string]any{
			"document_id": "d2", "title": "Tao Te Ching", "author": "Laozi", "tradition": "eastern", "year": -500,
		}},
	}
}

func TestRetrieve_RejectsNonPositiveLimit(t *testing.T) {
	a := New(nil, vector.NilProvider{}, nil, "passages")
	_, err := a.Retrieve(context.Background(), Request{Mode: domain.ModeKeyword, Limit: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrIndexBadRequest))
}

func TestRetrieve_RejectsUnknownMode(t *testing.T) {
	a := New(nil, vector.NilProvider{}, nil, "passages")
	_, err := a.Retrieve(context.Background(), Request{Mode: "bogus", Limit: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrIndexBadRequest))
}

func TestRetrieve_KeywordMode(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)
	a := New(s, vector.NilProvider{}, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{Mode: domain.ModeKeyword, QueryText: "justice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "p1", resp.Hits[0].ID)
}

func TestRetrieve_SemanticMode_UsesPrecomputedEmbedding(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(nil, provider, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{
		Mode:      domain.ModeSemantic,
		Limit:     10,
		Embedding: []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, "s1", resp.Hits[0].ID)
	assert.Equal(t, "Plato", resp.Hits[0].Author)
	assert.Equal(t, -380, resp.Hits[0].Year)
}

func TestRetrieve_SemanticMode_EmbedsQueryWhenNoVectorGiven(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	emb := &fakeEmbedder{vec: []float32{1, 2, 3}}
	a := New(nil, provider, emb, "passages")

	resp, err := a.Retrieve(context.Background(), Request{Mode: domain.ModeSemantic, QueryText: "justice", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
}

func TestRetrieve_SemanticMode_NoEmbedderIsBadRequest(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(nil, provider, nil, "passages")

	_, err := a.Retrieve(context.Background(), Request{Mode: domain.ModeSemantic, QueryText: "justice", Limit: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrIndexBadRequest))
}

func TestRetrieve_SemanticMode_AppliesYearRangePostFilter(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(nil, provider, nil, "passages")

	min := -450
	resp, err := a.Retrieve(context.Background(), Request{
		Mode:      domain.ModeSemantic,
		Limit:     10,
		Embedding: []float32{0.1, 0.2, 0.3},
		Filters:   domain.Filters{YearMin: &min},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "s1", resp.Hits[0].ID)
}

func TestRetrieve_SemanticMode_AppliesTextContainsPostFilter(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(nil, provider, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{
		Mode:      domain.ModeSemantic,
		Limit:     10,
		Embedding: []float32{0.1, 0.2, 0.3},
		Filters:   domain.Filters{TextContains: []string{"laozi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "s2", resp.Hits[0].ID)
}

func TestRetrieve_SemanticMode_PushesEqualityFilterIntoProvider(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(nil, provider, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{
		Mode:      domain.ModeSemantic,
		Limit:     10,
		Embedding: []float32{0.1, 0.2, 0.3},
		Filters:   domain.Filters{Tradition: "eastern"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "s2", resp.Hits[0].ID)
}

func TestRetrieve_HybridMode_FusesBothSides(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)
	provider := &fakeProvider{results: semanticHitsFixture()}
	a := New(s, provider, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{
		Mode:          domain.ModeHybrid,
		Limit:         10,
		SemanticRatio: 0.5,
		Embedding:     []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Hits)

	seen := make(map[string]bool)
	for _, h := range resp.Hits {
		assert.False(t, seen[h.ID], "duplicate hit %s in fused results", h.ID)
		seen[h.ID] = true
	}
}

func TestRetrieve_HybridMode_ToleratesMissingKeywordStore(t *testing.T) {
	provider := &fakeProvider{results: semanticHitsFixture()}
	// keyword store is nil: retrieveKeyword degrades to empty rather than erroring.
	a := New(nil, provider, nil, "passages")

	resp, err := a.Retrieve(context.Background(), Request{
		Mode:          domain.ModeHybrid,
		Limit:         10,
		SemanticRatio: 0.5,
		Embedding:     []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
}

func TestFuseRanks_WeightsBySemanticRatio(t *testing.T) {
	keyword := []domain.CandidatePassage{{ID: "a"}, {ID: "b"}}
	semantic := []domain.CandidatePassage{{ID: "b"}, {ID: "a"}}

	fused := fuseRanks(keyword, semantic, 0.9)
	require.Len(t, fused, 2)
	assert.Equal(t, "b", fused[0].ID, "heavier semantic weight should favor b's semantic rank-1 position")
}
