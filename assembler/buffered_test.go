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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
)

func TestRunBuffered_MissAssemblesPlanSourcesIntroduction(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	req := domain.QueryRequest{RawText: "what is justice", ResultCap: 10}

	result, err := p.RunBuffered(context.Background(), anonymousIdentity("user_buf-1"), req)
	require.NoError(t, err)

	assert.Equal(t, "simple", result.Plan.Strategy)
	assert.NotEmpty(t, result.Sources)
	assert.NotEmpty(t, result.Introduction)
	assert.False(t, result.Cached)
	assert.GreaterOrEqual(t, result.ProcessingTime.Nanoseconds(), int64(0))
}

func TestRunBuffered_CacheHitReplaysStoredResponse(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	req := domain.QueryRequest{RawText: "what is justice"}
	ctx := context.Background()

	first, err := p.RunBuffered(ctx, anonymousIdentity("user_buf-cache-1"), req)
	require.NoError(t, err)

	second, err := p.RunBuffered(ctx, anonymousIdentity("user_buf-cache-2"), req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Introduction, second.Introduction)
	assert.Equal(t, len(first.Sources), len(second.Sources))
	assert.GreaterOrEqual(t, second.CacheAgeSeconds, 0.0)
}

func TestRunBuffered_QuotaDeniedReturnsQuotaError(t *testing.T) {
	p, q := newTestPipeline(t, &fakeLLMClient{})
	id := anonymousIdentity("user_buf-limit-1")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Increment(ctx, id))
	}

	_, err := p.RunBuffered(ctx, id, domain.QueryRequest{RawText: "what is justice"})
	require.Error(t, err)
	var qerr *apierrors.QuotaError
	assert.True(t, errors.As(err, &qerr))
}

func TestRunBuffered_FilterTermsBypassCache(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	ctx := context.Background()
	req := domain.QueryRequest{RawText: "what is justice (shoghi, pilgrim)"}

	first, err := p.RunBuffered(ctx, anonymousIdentity("user_buf-filter-1"), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := p.RunBuffered(ctx, anonymousIdentity("user_buf-filter-2"), req)
	require.NoError(t, err)
	assert.False(t, second.Cached, "a filtered query must never be served from cache")
}
