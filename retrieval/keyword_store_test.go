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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/domain"
)

func newTestKeywordStore(t *testing.T) *KeywordStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenKeywordStore(ctx, "sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedParagraphs(t *testing.T, s *KeywordStore) {
	t.Helper()
	ctx := context.Background()
	passages := []domain.CandidatePassage{
		{ID: "p1", DocumentID: "d1", ParagraphIndex: 0, Text: "Justice is the virtue of the soul.", Title: "Republic", Author: "Plato", Tradition: "western", Collection: "classics", Language: "en", Year: -380},
		{ID: "p2", DocumentID: "d1", ParagraphIndex: 1, Text: "The philosopher king must rule.", Title: "Republic", Author: "Plato", Tradition: "western", Collection: "classics", Language: "en", Year: -380},
		{ID: "p3", DocumentID: "d2", ParagraphIndex: 0, Text: "The Tao that can be spoken is not the eternal Tao.", Title: "Tao Te Ching", Author: "Laozi", Tradition: "eastern", Collection: "classics", Language: "en", Year: -500},
	}
	for _, p := range passages {
		require.NoError(t, s.Upsert(ctx, p))
	}
}

func TestKeywordStore_SearchMatchesText(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)

	hits, total, err := s.Search(context.Background(), "justice", domain.Filters{}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
}

func TestKeywordStore_SearchFiltersByTradition(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)

	hits, total, err := s.Search(context.Background(), "", domain.Filters{Tradition: "eastern"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].ID)
}

func TestKeywordStore_SearchTextContainsDisjunction(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)

	hits, _, err := s.Search(context.Background(), "", domain.Filters{TextContains: []string{"laozi"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].ID)
}

func TestKeywordStore_SearchYearRange(t *testing.T) {
	s := newTestKeywordStore(t)
	seedParagraphs(t, s)

	min := -450
	hits, _, err := s.Search(context.Background(), "", domain.Filters{YearMin: &min}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestKeywordStore_Upsert_ReplacesExisting(t *testing.T) {
	s := newTestKeywordStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, domain.CandidatePassage{ID: "p1", DocumentID: "d1", Text: "first version"}))
	require.NoError(t, s.Upsert(ctx, domain.CandidatePassage{ID: "p1", DocumentID: "d1", Text: "second version"}))

	hits, total, err := s.Search(ctx, "version", domain.Filters{}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "second version", hits[0].Text)
}
