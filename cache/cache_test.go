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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/domain"
)

func TestNormalize_CaseAndWhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("  Justice   In Plato's  Republic "), Normalize("justice in plato's republic"))
}

func TestFingerprint_StableForEquivalentQueries(t *testing.T) {
	assert.Equal(t, Fingerprint("Hello   World"), Fingerprint("hello world"))
	assert.NotEqual(t, Fingerprint("hello world"), Fingerprint("goodbye world"))
}

func TestCache_MissThenHit(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour, false)
	ctx := context.Background()

	assert.Nil(t, c.Lookup(ctx, "what is justice"))

	require.NoError(t, c.Store(ctx, "what is justice", domain.Plan{Strategy: domain.StrategySimple}, nil, "intro"))

	entry := c.Lookup(ctx, "WHAT IS   JUSTICE")
	require.NotNil(t, entry)
	assert.Equal(t, "intro", entry.Introduction)
	assert.Equal(t, 1, entry.HitCount)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := New(NewMemoryStore(), -time.Hour, false)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "stale query", domain.Plan{}, nil, "intro"))

	assert.Nil(t, c.Lookup(ctx, "stale query"))
}

func TestCache_DevModeAlwaysMisses(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour, true)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "dev query", domain.Plan{}, nil, "intro"))

	assert.Nil(t, c.Lookup(ctx, "dev query"))
}

func TestEligible_TextContainsBypassesCache(t *testing.T) {
	plain := domain.QueryRequest{RawText: "justice"}
	assert.True(t, Eligible(plain))

	withFilter := domain.QueryRequest{RawText: "justice", Filters: domain.Filters{TextContains: []string{"plato"}}}
	assert.False(t, Eligible(withFilter))
}

func TestCache_InvalidateAll(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour, false)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "q1", domain.Plan{}, nil, "i1"))

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Nil(t, c.Lookup(ctx, "q1"))
}

func TestCache_SweepExpired(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, time.Hour, false)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "fresh", domain.Plan{}, nil, "i"))

	require.NoError(t, store.Upsert(ctx, domain.CachedResponse{
		QueryHash: Fingerprint("old"),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	removed, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NotNil(t, c.Lookup(ctx, "fresh"))
}
