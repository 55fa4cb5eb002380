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

// Package analyzer is the Parallel Analyzer: it batches the merged
// candidate list, scores and summarizes each batch with an LLM call, then
// globally sorts and truncates the result. A batch whose LLM call fails
// survives with a neutral score rather than being dropped; if every batch
// fails, the whole candidate set is returned unscored in first-seen order.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/llm"
)

// Request is the input to Analyze.
type Request struct {
	Query           string
	Candidates      []domain.CandidatePassage
	BatchSize       int
	MaxConcurrent   int
	ResearchContext string // optional: plan reasoning, for exhaustive queries
	ToReturn        int    // truncate the sorted result to this length
	SemanticNote    string // from the planner, concatenated into the introduction
}

// Result is Analyze's output.
type Result struct {
	Sources      []domain.AnnotatedPassage
	Introduction string
}

// Analyzer scores and summarizes candidate passages in concurrent batches.
type Analyzer struct {
	client llm.Client
}

// New builds an Analyzer using client for batch-scoring completions.
func New(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// batchResponseEntry is one scored result within a batch's LLM response.
type batchResponseEntry struct {
	BatchIndex int      `json:"batch_index"`
	KeyPhrase  string   `json:"key_phrase"`
	CoreTerms  []string `json:"core_terms"`
	Summary    string   `json:"summary"`
	Score      float64  `json:"score"`
}

type batchResponse struct {
	Results    []batchResponseEntry `json:"results"`
	Irrelevant []int                `json:"irrelevant"`
}

const neutralScore = 0.5

// Analyze partitions req.Candidates into batches of req.BatchSize, scores
// up to req.MaxConcurrent batches at a time, then globally sorts by score
// descending (ties broken by first-seen index) and truncates to
// req.ToReturn.
func (a *Analyzer) Analyze(ctx context.Context, req Request) Result {
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = 2
	}
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	if len(req.Candidates) == 0 {
		return Result{Introduction: "Found 0 passages matching your query."}
	}

	batches := partition(req.Candidates, batchSize)
	annotated := make([]domain.AnnotatedPassage, len(req.Candidates))
	dropped := make([]bool, len(req.Candidates))
	var anySucceeded int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			results, err := a.scoreBatch(gctx, req.Query, req.ResearchContext, b)
			if err != nil {
				slog.Warn("analyzer batch failed, using neutral scores", "error", err, "batch_start", b.globalStart)
				for _, c := range b.candidates {
					annotated[c.globalIndex] = neutralAnnotation(c.passage)
				}
				return nil
			}
			atomic.StoreInt32(&anySucceeded, 1)
			applyBatchResults(annotated, dropped, b, results)
			return nil
		})
	}
	_ = g.Wait()

	if atomic.LoadInt32(&anySucceeded) == 0 {
		// Every batch failed: return raw candidates, first-seen order,
		// canned introduction (spec.md §4.8).
		out := make([]domain.AnnotatedPassage, len(req.Candidates))
		for i, c := range req.Candidates {
			out[i] = neutralAnnotation(c)
		}
		return Result{
			Sources:      out,
			Introduction: fmt.Sprintf("Found %d passages matching your query.", len(req.Candidates)),
		}
	}

	// Irrelevant entries are dropped from the result set entirely, not
	// merely deprioritized (spec.md §4.8).
	kept := annotated[:0]
	for i, ap := range annotated {
		if !dropped[i] {
			kept = append(kept, ap)
		}
	}
	annotated = kept

	sort.SliceStable(annotated, func(i, j int) bool {
		return annotated[i].Score > annotated[j].Score
	})

	toReturn := req.ToReturn
	if toReturn > 0 && toReturn < len(annotated) {
		annotated = annotated[:toReturn]
	}

	intro := buildIntroduction(len(req.Candidates), req.SemanticNote)
	return Result{Sources: annotated, Introduction: intro}
}

type batchCandidate struct {
	passage     domain.CandidatePassage
	globalIndex int
	localIndex  int
}

type batch struct {
	candidates  []batchCandidate
	globalStart int
}

func partition(candidates []domain.CandidatePassage, batchSize int) []batch {
	var batches []batch
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		var bc []batchCandidate
		for i := start; i < end; i++ {
			bc = append(bc, batchCandidate{passage: candidates[i], globalIndex: i, localIndex: i - start})
		}
		batches = append(batches, batch{candidates: bc, globalStart: start})
	}
	return batches
}

func (a *Analyzer) scoreBatch(ctx context.Context, query, researchContext string, b batch) (*batchResponse, error) {
	messages := []llm.Message{
		{Role: "system", Content: analyzerSystemPrompt()},
		{Role: "user", Content: buildBatchPrompt(query, researchContext, b)},
	}
	raw, err := a.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var resp batchResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("analyzer: malformed batch response: %w", err)
	}
	return &resp, nil
}

func applyBatchResults(annotated []domain.AnnotatedPassage, dropped []bool, b batch, resp *batchResponse) {
	irrelevant := make(map[int]bool, len(resp.Irrelevant))
	for _, idx := range resp.Irrelevant {
		irrelevant[idx] = true
	}

	byLocalIndex := make(map[int]batchResponseEntry, len(resp.Results))
	for _, r := range resp.Results {
		byLocalIndex[r.BatchIndex] = r
	}

	for _, c := range b.candidates {
		if irrelevant[c.localIndex] {
			dropped[c.globalIndex] = true
			continue
		}
		entry, ok := byLocalIndex[c.localIndex]
		if !ok {
			annotated[c.globalIndex] = neutralAnnotation(c.passage)
			continue
		}
		annotated[c.globalIndex] = domain.AnnotatedPassage{
			CandidateID:     c.passage.ID,
			Score:           entry.Score,
			KeyPhrase:       entry.KeyPhrase,
			CoreTerms:       entry.CoreTerms,
			Summary:         entry.Summary,
			HighlightedText: Highlight(c.passage.Text, entry.KeyPhrase, entry.CoreTerms),
			Passage:         c.passage,
		}
	}
}

func neutralAnnotation(p domain.CandidatePassage) domain.AnnotatedPassage {
	return domain.AnnotatedPassage{
		CandidateID:     p.ID,
		Score:           neutralScore,
		HighlightedText: p.Text,
		Passage:         p,
	}
}

func buildIntroduction(count int, semanticNote string) string {
	intro := fmt.Sprintf("Found %d passages matching your query.", count)
	if strings.TrimSpace(semanticNote) != "" {
		intro += " " + semanticNote
	}
	return intro
}

func buildBatchPrompt(query, researchContext string, b batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	if researchContext != "" {
		fmt.Fprintf(&sb, "Research context: %s\n", researchContext)
	}
	sb.WriteString("Passages:\n")
	for _, c := range b.candidates {
		fmt.Fprintf(&sb, "[%d] (%s, %s) %s\n", c.localIndex, c.passage.Author, c.passage.Title, c.passage.Text)
	}
	sb.WriteString(`Return JSON: {"results":[{"batch_index":0,"key_phrase":"...","core_terms":["..."],"summary":"...","score":0.0}],"irrelevant":[]}` + "\n")
	sb.WriteString("Score in [0,1]. List batch_index values of passages irrelevant to the query under \"irrelevant\" and omit them from \"results\".\n")
	return sb.String()
}

func analyzerSystemPrompt() string {
	return `You are the relevance analyzer for a scholarly search service. For each passage in a batch, score its relevance to the query, extract the single key phrase that best captures that relevance, list core terms within it, and write a one-sentence summary. Return only the JSON object described in the prompt.`
}

// extractJSONObject finds the outermost {...} span in s, tolerating
// surrounding markdown fences or commentary — same idiom as the planner's
// response parsing.
func extractJSONObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || start >= end {
		return "", errors.New("analyzer: no JSON object found in response")
	}
	return s[start : end+1], nil
}
