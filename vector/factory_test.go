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

package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfig_SetDefaults(t *testing.T) {
	cfg := &ProviderConfig{}
	cfg.SetDefaults()
	assert.Equal(t, ProviderChromem, cfg.Type)
	require.NotNil(t, cfg.Chromem)
}

func TestProviderConfig_Validate(t *testing.T) {
	assert.NoError(t, (&ProviderConfig{Type: ProviderChromem}).Validate())
	assert.Error(t, (&ProviderConfig{Type: ProviderQdrant}).Validate())
	assert.NoError(t, (&ProviderConfig{Type: ProviderQdrant, Qdrant: &QdrantConfig{Host: "localhost"}}).Validate())
	assert.Error(t, (&ProviderConfig{Type: ProviderPinecone}).Validate())
	assert.NoError(t, (&ProviderConfig{Type: ProviderPinecone, Pinecone: &PineconeConfig{APIKey: "k"}}).Validate())
	assert.Error(t, (&ProviderConfig{Type: "unknown"}).Validate())
}

func TestNewProvider_NilConfigYieldsNilProvider(t *testing.T) {
	p, err := NewProvider(nil)
	require.NoError(t, err)
	assert.Equal(t, "nil", p.Name())
}

func TestNewProvider_Chromem(t *testing.T) {
	p, err := NewProvider(&ProviderConfig{Type: ProviderChromem})
	require.NoError(t, err)
	assert.Equal(t, "chromem", p.Name())
	require.NoError(t, p.Close())
}

func TestNilProvider_SearchesComeBackEmpty(t *testing.T) {
	p := NilProvider{}
	ctx := context.Background()

	results, err := p.Search(ctx, "passages", []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, p.Upsert(ctx, "passages", "id-1", []float32{0.1}, nil))
	require.NoError(t, p.CreateCollection(ctx, "passages", 3))
	require.NoError(t, p.DeleteCollection(ctx, "passages"))
	require.NoError(t, p.Close())
}

func TestRegistry_RegisterGetClose(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("primary", NilProvider{}))
	assert.Error(t, r.Register("primary", NilProvider{}))
	assert.Error(t, r.Register("", NilProvider{}))

	p, ok := r.Get("primary")
	require.True(t, ok)
	assert.Equal(t, "nil", p.Name())

	assert.Contains(t, r.List(), "primary")
	require.NoError(t, r.Close())
	assert.Empty(t, r.List())
}

func TestChromemProvider_UpsertAndSearch(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "passages", "p1", []float32{1, 0, 0}, map[string]any{
		"content":   "on justice in the republic",
		"tradition": "platonist",
	}))
	require.NoError(t, p.Upsert(ctx, "passages", "p2", []float32{0, 1, 0}, map[string]any{
		"content":   "on the categories of being",
		"tradition": "aristotelian",
	}))

	results, err := p.Search(ctx, "passages", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)

	filtered, err := p.SearchWithFilter(ctx, "passages", []float32{1, 0, 0}, 5, map[string]any{"tradition": "aristotelian"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "p2", filtered[0].ID)
}
