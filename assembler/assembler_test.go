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
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/analyzer"
	"github.com/kadirpekel/scholarsearch/cache"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/executor"
	"github.com/kadirpekel/scholarsearch/llm"
	"github.com/kadirpekel/scholarsearch/memory"
	"github.com/kadirpekel/scholarsearch/planner"
	"github.com/kadirpekel/scholarsearch/quota"
	"github.com/kadirpekel/scholarsearch/retrieval"
)

var errPlannerUnavailable = errors.New("planner llm unavailable")

// fakeRetrievalAdapter returns a fixed set of hits for any query, useful
// since the assembler tests exercise wiring, not retrieval semantics
// (those are covered in package retrieval).
type fakeRetrievalAdapter struct{}

func (fakeRetrievalAdapter) Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	return &retrieval.Response{Hits: []domain.CandidatePassage{
		{ID: "p1", Title: "Republic", Author: "Plato", Text: "Justice is doing one's own work.", ProvenanceQuery: req.QueryText},
		{ID: "p2", Title: "Analects", Author: "Confucius", Text: "The superior man is just.", ProvenanceQuery: req.QueryText},
	}}, nil
}

// fakeLLMClient returns a canned simple-plan JSON response, suitable for
// both planner and analyzer calls via dispatch on prompt content.
type fakeLLMClient struct {
	planErr error
}

func (f *fakeLLMClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if f.planErr != nil && looksLikePlannerPrompt(messages) {
		return "", f.planErr
	}
	if looksLikePlannerPrompt(messages) {
		return `{"reasoning":"test","queries":[{"text":"justice","mode":"hybrid","rationale":"r","angle":"a"}],"assumptions":[]}`, nil
	}
	return `{"results":[{"batch_index":0,"key_phrase":"Justice","score":0.9},{"batch_index":1,"key_phrase":"just","score":0.7}],"irrelevant":[]}`, nil
}

func looksLikePlannerPrompt(messages []llm.Message) bool {
	for _, m := range messages {
		if strings.Contains(m.Content, "query planner") {
			return true
		}
	}
	return false
}

func newTestPipeline(t *testing.T, llmClient llm.Client) (*Pipeline, *quota.Gate) {
	t.Helper()
	cacheStore := cache.NewMemoryStore()
	c := cache.New(cacheStore, time.Hour, false)
	quotaStore := quota.NewMemoryStore()
	q := quota.New(quotaStore, 20, 10)
	pl := planner.New(llmClient)
	ex := executor.New(fakeRetrievalAdapter{}, 5, 200)
	an := analyzer.New(llmClient)
	mem := memory.NewInMemoryAdapter()
	p := New(c, q, pl, ex, an, mem)
	return p, q
}

func decodeEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		events = append(events, m)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e["type"].(string)
	}
	return out
}

func anonymousIdentity(id string) domain.Identity {
	return domain.Identity{Anonymous: &domain.AnonymousIdentity{OpaqueID: id}}
}

func TestRun_SimpleMissEmitsPlanSourcesChunkComplete(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	w := httptest.NewRecorder()
	req := domain.QueryRequest{RawText: "what is justice", ResultCap: 10}
	p.Run(context.Background(), w, anonymousIdentity("user_abc-123"), req)

	events := decodeEvents(t, w.Body.String())
	require.Equal(t, []string{"plan", "sources", "chunk", "complete"}, eventTypes(events))

	sources := events[1]["sources"].([]any)
	assert.GreaterOrEqual(t, len(sources), 1)
	complete := events[3]
	timing := complete["timing"].(map[string]any)
	assert.NotNil(t, timing["totalMs"])
}

func TestRun_ExhaustiveEmitsThinkingBeforePlanAndProgressBeforeSources(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	w := httptest.NewRecorder()
	req := domain.QueryRequest{RawText: "compare teachings on justice across all traditions", ResultCap: 10}
	p.Run(context.Background(), w, anonymousIdentity("user_xyz-000"), req)

	events := decodeEvents(t, w.Body.String())
	types := eventTypes(events)
	require.Contains(t, types, "thinking")
	require.Contains(t, types, "progress")
	assert.Less(t, indexOf(types, "thinking"), indexOf(types, "plan"))
	assert.Less(t, indexOf(types, "plan"), indexOf(types, "progress"))
	assert.Less(t, indexOf(types, "progress"), indexOf(types, "sources"))
}

func indexOf(ss []string, target string) int {
	for i, s := range ss {
		if s == target {
			return i
		}
	}
	return -1
}

func TestRun_QuotaDeniedEmitsSingleErrorEventAndNoSideEffects(t *testing.T) {
	p, q := newTestPipeline(t, &fakeLLMClient{})
	id := anonymousIdentity("user_limit-000")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Increment(ctx, id))
	}

	w := httptest.NewRecorder()
	p.Run(ctx, w, id, domain.QueryRequest{RawText: "what is justice"})

	assert.Equal(t, 402, w.Code)
	events := decodeEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0]["type"])
	assert.Equal(t, "query_limit_exceeded", events[0]["error"])

	decision, err := q.Check(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, decision.Remaining)
}

func TestRun_FilterTermsBypassCacheInBothDirections(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	w1 := httptest.NewRecorder()
	req := domain.QueryRequest{RawText: "what is justice (shoghi, pilgrim)"}
	p.Run(context.Background(), w1, anonymousIdentity("user_filters-111"), req)

	events := decodeEvents(t, w1.Body.String())
	planPayload := events[0]["plan"].(map[string]any)
	queries := planPayload["queries"].([]any)
	require.NotEmpty(t, queries)
	firstQuery := queries[0].(map[string]any)
	filters := firstQuery["filters"].(map[string]any)
	textContains := filters["textContains"].([]any)
	assert.ElementsMatch(t, []any{"shoghi", "pilgrim"}, textContains)

	// A second identical request must still miss the cache (no cache write
	// occurred because text-contains filters are present).
	w2 := httptest.NewRecorder()
	p.Run(context.Background(), w2, anonymousIdentity("user_filters-222"), req)
	events2 := decodeEvents(t, w2.Body.String())
	planPayload2 := events2[0]["plan"].(map[string]any)
	_, cachedFlagPresent := planPayload2["cached"]
	assert.False(t, cachedFlagPresent, "a filtered query must never be served from cache")
}

func TestRun_CacheHitReplaysSourcesAndMarksCached(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{})
	req := domain.QueryRequest{RawText: "what is justice"}

	w1 := httptest.NewRecorder()
	p.Run(context.Background(), w1, anonymousIdentity("user_cache-1"), req)
	firstEvents := decodeEvents(t, w1.Body.String())
	firstSources, _ := json.Marshal(firstEvents[1]["sources"])

	w2 := httptest.NewRecorder()
	p.Run(context.Background(), w2, anonymousIdentity("user_cache-2"), req)
	secondEvents := decodeEvents(t, w2.Body.String())

	require.Equal(t, []string{"plan", "sources", "chunk", "complete"}, eventTypes(secondEvents))
	planPayload := secondEvents[0]["plan"].(map[string]any)
	assert.Equal(t, true, planPayload["cached"])

	secondSources, _ := json.Marshal(secondEvents[1]["sources"])
	assert.JSONEq(t, string(firstSources), string(secondSources))

	complete := secondEvents[3]
	assert.Equal(t, true, complete["cached"])
	assert.NotNil(t, complete["cacheAge"])
}

func TestRun_PlannerFailureFallsBackWithNoErrorEvent(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeLLMClient{planErr: errPlannerUnavailable})
	w := httptest.NewRecorder()
	req := domain.QueryRequest{RawText: "what is justice"}
	p.Run(context.Background(), w, anonymousIdentity("user_fallback-1"), req)

	events := decodeEvents(t, w.Body.String())
	types := eventTypes(events)
	assert.NotContains(t, types, "error")
	require.Contains(t, types, "plan")
	planPayload := events[indexOf(types, "plan")]["plan"].(map[string]any)
	assert.Equal(t, "simple", planPayload["strategy"])
}

func TestExtractFilterTerms_NoTrailingParen(t *testing.T) {
	clean, terms := ExtractFilterTerms("what is justice")
	assert.Equal(t, "what is justice", clean)
	assert.Nil(t, terms)
}

func TestExtractFilterTerms_ExtractsCommaSeparatedTerms(t *testing.T) {
	clean, terms := ExtractFilterTerms("what is justice (shoghi, pilgrim)")
	assert.Equal(t, "what is justice", clean)
	assert.Equal(t, []string{"shoghi", "pilgrim"}, terms)
}

func TestExtractFilterTerms_EmptyParenIsIgnored(t *testing.T) {
	clean, terms := ExtractFilterTerms("what is justice ()")
	assert.Equal(t, "what is justice ()", clean)
	assert.Nil(t, terms)
}
