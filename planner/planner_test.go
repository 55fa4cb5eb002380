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

package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/llm"
)

// fakeClient returns canned responses in order, or an error if configured.
type fakeClient struct {
	responses []string
	err       error
	calls     int
}

func (c *fakeClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[idx], nil
}

func (c *fakeClient) ChatStream(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeClient) Model() string { return "fake" }
func (c *fakeClient) Close() error  { return nil }

type fakeExecutor struct {
	summary PassSummary
	err     error
}

func (e *fakeExecutor) Run(ctx context.Context, queries []domain.SubQuery, filters domain.Filters) (PassSummary, error) {
	return e.summary, e.err
}

func TestClassify_KeywordTriggersExhaustive(t *testing.T) {
	assert.Equal(t, domain.StrategyExhaustive, Classify("compare teachings on justice across all traditions", false))
	assert.Equal(t, domain.StrategySimple, Classify("what is justice", false))
	assert.Equal(t, domain.StrategyExhaustive, Classify("what is justice", true))
}

func TestClassify_LengthTriggersExhaustive(t *testing.T) {
	long := "what do the various traditions say about justice and mercy and forgiveness in times of conflict"
	assert.Equal(t, domain.StrategyExhaustive, Classify(long, false))
}

func TestPlanner_SimplePlan_ParsesJSON(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"reasoning": "straightforward", "queries": [{"text": "what is justice", "mode": "hybrid", "rationale": "broad"}]}`,
	}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "what is justice"}, nil)

	assert.Equal(t, domain.StrategySimple, plan.Strategy)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, domain.ModeHybrid, plan.Queries[0].Mode)
}

func TestPlanner_SimplePlan_TolerantOfMarkdownFence(t *testing.T) {
	client := &fakeClient{responses: []string{
		"Here is the plan:\n```json\n{\"reasoning\": \"ok\", \"queries\": [{\"text\": \"x\", \"mode\": \"keyword\"}]}\n```",
	}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "x"}, nil)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, domain.ModeKeyword, plan.Queries[0].Mode)
}

func TestPlanner_SimplePlan_FallsBackOnLLMError(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "what is justice"}, nil)

	assert.Equal(t, domain.StrategySimple, plan.Strategy)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, domain.ModeHybrid, plan.Queries[0].Mode)
	assert.Equal(t, "what is justice", plan.Queries[0].Text)
}

func TestPlanner_SimplePlan_FallsBackOnMalformedJSON(t *testing.T) {
	client := &fakeClient{responses: []string{"this is not json at all"}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "what is justice"}, nil)

	require.Len(t, plan.Queries, 1)
	assert.Equal(t, "fallback", plan.Queries[0].Rationale)
}

func TestPlanner_SimplePlan_CapsAtThreeQueries(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"queries": [{"text":"a","mode":"hybrid"},{"text":"b","mode":"hybrid"},{"text":"c","mode":"hybrid"},{"text":"d","mode":"hybrid"}]}`,
	}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "a b c d"}, nil)
	assert.Len(t, plan.Queries, 3)
}

func TestPlanner_ExhaustivePlan_TwoPassUnion(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"reasoning": "broad", "queries": [{"text":"q1","mode":"hybrid","angle":"a1"}], "traditions_to_cover": ["eastern","western"]}`,
		`{"reasoning": "refined", "queries": [{"text":"q1","mode":"hybrid","angle":"a1"},{"text":"q2","mode":"semantic","angle":"a2"}], "gaps": ["a2 undercovered"]}`,
	}}
	exec := &fakeExecutor{summary: PassSummary{CountsByAngle: map[string]int{"a1": 3}}}
	p := New(client)

	plan := p.Plan(context.Background(), Request{QueryText: "compare teachings on justice across all traditions"}, exec)

	assert.Equal(t, domain.StrategyExhaustive, plan.Strategy)
	require.NotNil(t, plan.Pass1)
	require.NotNil(t, plan.Pass2)
	assert.Len(t, plan.Pass1.Queries, 1)
	assert.Len(t, plan.Pass2.Queries, 2)
	assert.Len(t, plan.Queries, 2, "union deduplicates q1 appearing in both passes")
}

func TestPlanner_SimplePlan_SurfacesSemanticNote(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"reasoning": "ok", "queries": [{"text": "bank", "mode": "hybrid"}], "semantic_note": "Spans both riverbank and financial-institution senses."}`,
	}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "bank"}, nil)

	assert.Equal(t, "Spans both riverbank and financial-institution senses.", plan.SemanticNote)
}

func TestPlanner_ExhaustivePlan_SurfacesSemanticNoteFromLaterPass(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"reasoning": "broad", "queries": [{"text":"q1","mode":"hybrid","angle":"a1"}], "semantic_note": "pass-1 note"}`,
		`{"reasoning": "refined", "queries": [{"text":"q2","mode":"semantic","angle":"a2"}], "semantic_note": "pass-2 note"}`,
	}}
	exec := &fakeExecutor{summary: PassSummary{CountsByAngle: map[string]int{"a1": 3}}}
	p := New(client)

	plan := p.Plan(context.Background(), Request{QueryText: "compare teachings on justice across all traditions"}, exec)
	assert.Equal(t, "pass-2 note", plan.SemanticNote, "a later pass's semantic_note should win over an earlier one")
}

func TestPlanner_ExhaustivePlan_FallsBackWhenNoExecutorGiven(t *testing.T) {
	client := &fakeClient{responses: []string{`{"queries":[{"text":"x","mode":"hybrid"}]}`}}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "compare teachings on justice across all traditions"}, nil)
	assert.Equal(t, domain.StrategySimple, plan.Strategy)
}

func TestPlanner_ExhaustivePlan_Pass1FailureFallsBack(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	exec := &fakeExecutor{}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "compare teachings on justice across all traditions"}, exec)
	assert.Equal(t, domain.StrategySimple, plan.Strategy)
	assert.Equal(t, "fallback", plan.Queries[0].Rationale)
}

func TestPlanner_ExhaustivePlan_ExecutorFailureStillProducesPlan(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"queries": [{"text":"q1","mode":"hybrid"}]}`,
		`{"queries": [{"text":"q1","mode":"hybrid"},{"text":"q3","mode":"keyword"}]}`,
	}}
	exec := &fakeExecutor{err: errors.New("fan-out failed")}
	p := New(client)
	plan := p.Plan(context.Background(), Request{QueryText: "compare teachings on justice across all traditions"}, exec)
	assert.Equal(t, domain.StrategyExhaustive, plan.Strategy)
	assert.Len(t, plan.Queries, 2)
}

func TestDedupeSubQueries_FirstOccurrenceWins(t *testing.T) {
	in := []domain.SubQuery{
		{Text: "a", Mode: domain.ModeHybrid, Rationale: "first"},
		{Text: "a", Mode: domain.ModeHybrid, Rationale: "duplicate"},
		{Text: "a", Mode: domain.ModeKeyword, Rationale: "different mode"},
	}
	out := dedupeSubQueries(in)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Rationale)
}

func TestUnknownModeDefaultsToHybrid(t *testing.T) {
	out := toSubQueries([]subQueryJSON{{Text: "x", Mode: "bogus"}}, domain.Filters{})
	require.Len(t, out, 1)
	assert.Equal(t, domain.ModeHybrid, out[0].Mode)
}
