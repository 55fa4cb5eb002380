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

// Package planner turns one user query into a retrieval Plan: a
// deterministic heuristic classifies it simple or exhaustive, then one (or,
// for exhaustive queries, two) LLM call produces the SubQueries that the
// fan-out executor will run. Planning never blocks the request: any LLM
// failure or unparseable response degrades to domain.FallbackPlan.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/internal/tokens"
	"github.com/kadirpekel/scholarsearch/llm"
)

// exhaustiveKeywords trigger the exhaustive branch regardless of length.
var exhaustiveKeywords = []string{
	"all", "every", "compare across", "comprehensive", "across all", "every tradition",
}

// lengthThreshold is the query-length (in words) above which the
// classifier also routes to the exhaustive branch.
const lengthThreshold = 12

// Classify decides simple vs exhaustive via the deterministic heuristic
// (spec.md §4.6): presence of broadening keywords, or a query longer than
// lengthThreshold words, or an explicit client hint.
func Classify(queryText string, useResearcher bool) domain.PlanStrategy {
	if useResearcher {
		return domain.StrategyExhaustive
	}
	lower := strings.ToLower(queryText)
	for _, kw := range exhaustiveKeywords {
		if strings.Contains(lower, kw) {
			return domain.StrategyExhaustive
		}
	}
	if len(strings.Fields(queryText)) > lengthThreshold {
		return domain.StrategyExhaustive
	}
	return domain.StrategySimple
}

// Request is the input to Plan.
type Request struct {
	QueryText     string
	Filters       domain.Filters
	Memory        []domain.MemoryEntry // optional prior turns; may be empty
	UseResearcher bool
}

// PassSummary is the light summary of pass-1 execution results fed back
// into the planner for pass-2 gap analysis (spec.md §4.6).
type PassSummary struct {
	CountsByAngle map[string]int
	SampleTitles  []string
}

// Executor runs a SubPlan's queries and reports a light summary, without
// the planner needing to know anything about retrieval or fan-out. The
// core wires this to the fan-out executor.
type Executor interface {
	Run(ctx context.Context, queries []domain.SubQuery, filters domain.Filters) (PassSummary, error)
}

// Planner produces Plans.
type Planner struct {
	client llm.Client
}

// New builds a Planner using client for both simple-plan and pass-1/pass-2
// exhaustive-plan completions.
func New(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Plan classifies req and runs the matching strategy. It never returns an
// error: any failure produces domain.FallbackPlan(req.QueryText), honoring
// the "plan totality" invariant (spec.md §8) that no code path downstream
// of the planner ever sees an empty plan.
func (p *Planner) Plan(ctx context.Context, req Request, exec Executor) domain.Plan {
	strategy := Classify(req.QueryText, req.UseResearcher)
	if strategy == domain.StrategyExhaustive && exec != nil {
		plan, err := p.planExhaustive(ctx, req, exec)
		if err != nil {
			return domain.FallbackPlan(req.QueryText)
		}
		return plan
	}
	plan, err := p.planSimple(ctx, req)
	if err != nil {
		return domain.FallbackPlan(req.QueryText)
	}
	return plan
}

// simplePlanResponse is the JSON shape the LLM is asked to return for a
// simple plan.
type simplePlanResponse struct {
	Reasoning    string         `json:"reasoning"`
	Queries      []subQueryJSON `json:"queries"`
	Assumptions  []string       `json:"assumptions"`
	SemanticNote string         `json:"semantic_note"`
}

type subQueryJSON struct {
	Text      string         `json:"text"`
	Mode      string         `json:"mode"`
	Rationale string         `json:"rationale"`
	Angle     string         `json:"angle"`
	Filters   domain.Filters `json:"filters"`
}

func (p *Planner) planSimple(ctx context.Context, req Request) (domain.Plan, error) {
	messages := []llm.Message{
		{Role: "system", Content: simplePlannerSystemPrompt()},
		{Role: "user", Content: p.buildPlannerUserPrompt(req, nil)},
	}
	raw, err := p.client.Chat(ctx, messages)
	if err != nil {
		return domain.Plan{}, err
	}
	parsed, err := parseSimplePlanResponse(raw)
	if err != nil {
		return domain.Plan{}, err
	}
	queries := toSubQueries(parsed.Queries, req.Filters)
	if len(queries) == 0 {
		return domain.Plan{}, errors.New("planner: empty query list")
	}
	if len(queries) > 3 {
		queries = queries[:3]
	}
	return domain.Plan{
		Strategy:     domain.StrategySimple,
		Reasoning:    parsed.Reasoning,
		Queries:      queries,
		Assumptions:  parsed.Assumptions,
		SemanticNote: parsed.SemanticNote,
	}, nil
}

// exhaustivePlanResponse is the JSON shape for both pass-1 and pass-2 LLM
// calls; pass-2 additionally populates Gaps/PromisingDirections.
type exhaustivePlanResponse struct {
	Reasoning           string         `json:"reasoning"`
	Queries             []subQueryJSON `json:"queries"`
	TraditionsToCover   []string       `json:"traditions_to_cover"`
	Gaps                []string       `json:"gaps"`
	PromisingDirections []string       `json:"promising_directions"`
	SemanticNote        string         `json:"semantic_note"`
}

func (p *Planner) planExhaustive(ctx context.Context, req Request, exec Executor) (domain.Plan, error) {
	pass1Resp, err := p.chatExhaustive(ctx, req, nil)
	if err != nil {
		return domain.Plan{}, err
	}
	pass1Queries := toSubQueries(pass1Resp.Queries, req.Filters)
	if len(pass1Queries) == 0 {
		return domain.Plan{}, errors.New("planner: empty pass-1 query list")
	}
	if len(pass1Queries) > 5 {
		pass1Queries = pass1Queries[:5]
	}

	summary, err := exec.Run(ctx, pass1Queries, req.Filters)
	if err != nil {
		// A fan-out failure during pass 1 doesn't sink the whole plan: run
		// pass 2 off an empty summary rather than erroring out entirely.
		summary = PassSummary{}
	}

	pass2Resp, err := p.chatExhaustive(ctx, req, &summary)
	var pass2Queries []domain.SubQuery
	if err == nil {
		pass2Queries = toSubQueries(pass2Resp.Queries, req.Filters)
	}

	allQueries := dedupeSubQueries(append(append([]domain.SubQuery{}, pass1Queries...), pass2Queries...))

	semanticNote := pass1Resp.SemanticNote
	if pass2Resp != nil && pass2Resp.SemanticNote != "" {
		semanticNote = pass2Resp.SemanticNote
	}

	plan := domain.Plan{
		Strategy:          domain.StrategyExhaustive,
		Reasoning:         pass1Resp.Reasoning,
		Queries:           allQueries,
		TraditionsToCover: pass1Resp.TraditionsToCover,
		Pass1:             &domain.SubPlan{Queries: pass1Queries},
		SemanticNote:      semanticNote,
	}
	if pass2Resp != nil {
		plan.Pass2 = &domain.SubPlan{Queries: pass2Queries, Gaps: pass2Resp.Gaps}
	}
	return plan, nil
}

func (p *Planner) chatExhaustive(ctx context.Context, req Request, summary *PassSummary) (*exhaustivePlanResponse, error) {
	messages := []llm.Message{
		{Role: "system", Content: exhaustivePlannerSystemPrompt()},
		{Role: "user", Content: p.buildPlannerUserPrompt(req, summary)},
	}
	raw, err := p.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	parsed, err := parseExhaustivePlanResponse(raw)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func toSubQueries(in []subQueryJSON, callerFilters domain.Filters) []domain.SubQuery {
	out := make([]domain.SubQuery, 0, len(in))
	for _, q := range in {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		mode := domain.RetrievalMode(q.Mode)
		switch mode {
		case domain.ModeKeyword, domain.ModeSemantic, domain.ModeHybrid:
		default:
			mode = domain.ModeHybrid
		}
		out = append(out, domain.SubQuery{
			Text:      q.Text,
			Mode:      mode,
			Filters:   q.Filters.Intersect(callerFilters),
			Rationale: q.Rationale,
			Angle:     q.Angle,
		})
	}
	return out
}

// dedupeSubQueries keeps the union of pass-1 and pass-2 queries actually
// executed, first occurrence by (text, mode) wins (spec.md §4.6: "the union
// of queries actually executed").
func dedupeSubQueries(queries []domain.SubQuery) []domain.SubQuery {
	seen := make(map[string]bool, len(queries))
	out := make([]domain.SubQuery, 0, len(queries))
	for _, q := range queries {
		key := string(q.Mode) + "\x00" + q.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// memoryTokenBudget caps the "Recent prior turns" section of the planner
// prompt; older turns are dropped first when the budget is exceeded.
const memoryTokenBudget = 800

func (p *Planner) buildPlannerUserPrompt(req Request, summary *PassSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", sanitizeForPrompt(req.QueryText))
	if req.Filters.Tradition != "" || req.Filters.Collection != "" || req.Filters.Language != "" {
		fmt.Fprintf(&sb, "Caller filters: tradition=%q collection=%q language=%q\n",
			req.Filters.Tradition, req.Filters.Collection, req.Filters.Language)
	}
	if len(req.Memory) > 0 {
		sb.WriteString("Recent prior turns:\n")
		for _, line := range p.budgetedMemoryLines(req.Memory) {
			sb.WriteString(line)
		}
	}
	if summary != nil {
		sb.WriteString("Pass-1 results summary:\n")
		for angle, count := range summary.CountsByAngle {
			fmt.Fprintf(&sb, "- angle %q: %d results\n", angle, count)
		}
		for _, title := range summary.SampleTitles {
			fmt.Fprintf(&sb, "- sample: %s\n", title)
		}
		sb.WriteString("Identify gaps and promising directions, then return a refined plan.\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// budgetedMemoryLines formats entries oldest-first and drops the oldest
// ones that don't fit memoryTokenBudget, counted against the planner's own
// model's tokenizer. A tokenizer resolution failure (unrecognized model
// name and no cl100k_base fallback available) degrades to a flat per-entry
// character truncation rather than failing the whole plan.
func (p *Planner) budgetedMemoryLines(entries []domain.MemoryEntry) []string {
	lines := make([]string, len(entries))
	for i, m := range entries {
		lines[i] = fmt.Sprintf("- [%s] %s\n", m.Role, sanitizeForPrompt(m.Text))
	}

	counter, err := tokens.NewCounter(p.client.Model())
	if err != nil {
		for i, m := range entries {
			lines[i] = fmt.Sprintf("- [%s] %s\n", m.Role, truncate(sanitizeForPrompt(m.Text), 300))
		}
		return lines
	}
	return counter.FitWithinLimit(lines, memoryTokenBudget)
}

// sanitizeForPrompt strips common prompt-injection delimiters from
// caller-controlled text before it's embedded in an LLM prompt.
func sanitizeForPrompt(s string) string {
	replacer := strings.NewReplacer(
		"SYSTEM:", "", "System:", "", "system:", "",
		"ASSISTANT:", "", "Assistant:", "", "assistant:", "",
		"```", "",
	)
	return strings.TrimSpace(replacer.Replace(s))
}

func simplePlannerSystemPrompt() string {
	return `You are the query planner for a scholarly search service over a multi-tradition text library.
Given a user's query, return a JSON object with this shape:
{"reasoning": "...", "queries": [{"text": "...", "mode": "keyword|semantic|hybrid", "rationale": "...", "angle": "..."}], "assumptions": ["..."]}
Return 1 to 3 queries. If the query term carries multiple distinct senses across traditions, note it in "semantic_note".
Return only the JSON object, no surrounding text.`
}

func exhaustivePlannerSystemPrompt() string {
	return `You are the query planner for a scholarly search service over a multi-tradition text library, running in exhaustive research mode.
Return a JSON object: {"reasoning": "...", "queries": [{"text": "...", "mode": "keyword|semantic|hybrid", "rationale": "...", "angle": "..."}], "traditions_to_cover": ["..."], "gaps": ["..."], "promising_directions": ["..."], "semantic_note": "..."}
Propose up to 5 queries, each from a distinct angle. When shown a prior pass's results summary, identify gaps and refine.
If the query term carries multiple distinct senses across traditions, note it in "semantic_note".
Return only the JSON object, no surrounding text.`
}

// parseSimplePlanResponse tolerates markdown code fences and any leading or
// trailing commentary the LLM emits around the JSON object, the way
// reranker.go:parseRerankingResponse extracts a JSON array from free text.
func parseSimplePlanResponse(raw string) (*simplePlanResponse, error) {
	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var parsed simplePlanResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("planner: malformed plan JSON: %w", err)
	}
	return &parsed, nil
}

func parseExhaustivePlanResponse(raw string) (*exhaustivePlanResponse, error) {
	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var parsed exhaustivePlanResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("planner: malformed plan JSON: %w", err)
	}
	return &parsed, nil
}

// extractJSONObject finds the outermost {...} span in s, tolerating
// surrounding markdown fences or commentary.
func extractJSONObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || start >= end {
		return "", errors.New("planner: no JSON object found in response")
	}
	return s[start : end+1], nil
}
