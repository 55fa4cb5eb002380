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

// Package domain holds the shared data model for the query-time pipeline:
// query requests, identity, plans, candidate and annotated passages, cached
// responses and memory entries.
package domain

import "time"

// RetrievalMode selects how the Retrieval Adapter answers a SubQuery.
type RetrievalMode string

const (
	ModeKeyword  RetrievalMode = "keyword"
	ModeSemantic RetrievalMode = "semantic"
	ModeHybrid   RetrievalMode = "hybrid"
)

// Filters are the structured predicates a caller or SubQuery may apply.
type Filters struct {
	Tradition    string   `json:"tradition,omitempty"`
	Collection   string   `json:"collection,omitempty"`
	Language     string   `json:"language,omitempty"`
	YearMin      *int     `json:"yearMin,omitempty"`
	YearMax      *int     `json:"yearMax,omitempty"`
	DocumentID   string   `json:"documentId,omitempty"`
	TextContains []string `json:"textContains,omitempty"`
}

// Intersect composes two Filters by intersection: a field set on either side
// must also be satisfied; TextContains terms are unioned.
func (f Filters) Intersect(other Filters) Filters {
	out := f
	if out.Tradition == "" {
		out.Tradition = other.Tradition
	}
	if out.Collection == "" {
		out.Collection = other.Collection
	}
	if out.Language == "" {
		out.Language = other.Language
	}
	if out.YearMin == nil {
		out.YearMin = other.YearMin
	}
	if out.YearMax == nil {
		out.YearMax = other.YearMax
	}
	if out.DocumentID == "" {
		out.DocumentID = other.DocumentID
	}
	if len(other.TextContains) > 0 {
		out.TextContains = append(append([]string{}, f.TextContains...), other.TextContains...)
	}
	return out
}

// HasTextContains reports whether the filters carry extracted free-text
// terms (§4.1: such queries bypass the cache entirely).
func (f Filters) HasTextContains() bool {
	return len(f.TextContains) > 0
}

// QueryRequest is the immutable input to one pipeline run.
type QueryRequest struct {
	RawText       string
	ModeHint      RetrievalMode // optional; empty means "let the planner decide"
	ResultCap     int           // clamped to [1,50]
	Filters       Filters
	CallerToken   string // opaque bearer token, if any
	AnonymousID   string // from X-User-ID header, if any
	UseResearcher bool   // client hint to prefer the exhaustive strategy
}

// ClampedResultCap returns ResultCap clamped into [1,50], or 10 when it is
// unset (zero or negative).
func (q QueryRequest) ClampedResultCap() int {
	switch {
	case q.ResultCap <= 0:
		return 10
	case q.ResultCap > 50:
		return 50
	default:
		return q.ResultCap
	}
}

// Tier is an authenticated identity's account tier.
type Tier string

const (
	TierBanned        Tier = "banned"
	TierVerified      Tier = "verified"
	TierApproved      Tier = "approved"
	TierPatron        Tier = "patron"
	TierInstitutional Tier = "institutional"
	TierAdmin         Tier = "admin"
)

// Unbounded reports whether the tier has unmetered quota (§3: all tiers
// above "verified" are unbounded).
func (t Tier) Unbounded() bool {
	switch t {
	case TierApproved, TierPatron, TierInstitutional, TierAdmin:
		return true
	default:
		return false
	}
}

// Identity is a tagged union: exactly one of Authenticated/Anonymous is set.
type Identity struct {
	Authenticated *AuthenticatedIdentity
	Anonymous     *AnonymousIdentity
}

// AuthenticatedIdentity is a resolved bearer-token caller.
type AuthenticatedIdentity struct {
	SubjectID   string
	Tier        Tier
	SearchCount int
}

// AnonymousIdentity is a caller resolved only via an X-User-ID-style header,
// or entirely unrecognized (OpaqueID == "").
type AnonymousIdentity struct {
	OpaqueID    string
	UserAgent   string
	SearchCount int
}

// IsAuthenticated reports whether this is an authenticated identity.
func (id Identity) IsAuthenticated() bool {
	return id.Authenticated != nil
}

// ID returns a stable string key for counter/cache lookups.
func (id Identity) ID() string {
	if id.Authenticated != nil {
		return "auth:" + id.Authenticated.SubjectID
	}
	if id.Anonymous != nil && id.Anonymous.OpaqueID != "" {
		return "anon:" + id.Anonymous.OpaqueID
	}
	return ""
}

// SubQuery is one concrete retrieval call contributed by the Planner.
type SubQuery struct {
	Text      string        `json:"text"`
	Mode      RetrievalMode `json:"mode"`
	Filters   Filters       `json:"filters,omitempty"`
	Rationale string        `json:"rationale,omitempty"`
	Angle     string        `json:"angle,omitempty"`
}

// PlanStrategy distinguishes the Planner's two branches.
type PlanStrategy string

const (
	StrategySimple     PlanStrategy = "simple"
	StrategyExhaustive PlanStrategy = "exhaustive"
)

// Plan is a sum type discriminated by Strategy: the Pass1/Pass2 sub-plans
// belong to the exhaustive branch only. Implemented as a single struct (rather than an
// interface with two implementations) because both branches share every
// field except the exhaustive two-pass sub-plans, and callers need to
// serialize the whole thing to JSON for the "plan" SSE event regardless of
// strategy.
type Plan struct {
	Strategy          PlanStrategy `json:"strategy"`
	Reasoning         string       `json:"reasoning,omitempty"`
	Queries           []SubQuery   `json:"queries"`
	Assumptions       []string     `json:"assumptions,omitempty"`
	TraditionsToCover []string     `json:"traditionsToCover,omitempty"`
	FollowUpHints     []string     `json:"followUpHints,omitempty"`
	SemanticNote      string       `json:"semanticNote,omitempty"`
	MaxResults        int          `json:"maxResults,omitempty"`

	// Exhaustive-only.
	Pass1 *SubPlan `json:"pass1,omitempty"`
	Pass2 *SubPlan `json:"pass2,omitempty"`
}

// SubPlan is one pass of an exhaustive plan.
type SubPlan struct {
	Queries []SubQuery `json:"queries"`
	Gaps    []string   `json:"gaps,omitempty"`
}

// IsExhaustive reports whether the plan used the two-pass strategy.
func (p Plan) IsExhaustive() bool {
	return p.Strategy == StrategyExhaustive
}

// FallbackPlan is the degenerate plan used whenever the Planner LLM fails or
// returns nothing parseable (spec.md §4.6): a single hybrid SubQuery.
func FallbackPlan(cleanQuery string) Plan {
	return Plan{
		Strategy:  StrategySimple,
		Reasoning: "fallback",
		Queries: []SubQuery{
			{Text: cleanQuery, Mode: ModeHybrid, Rationale: "fallback"},
		},
	}
}

// CandidatePassage is a retrieval hit prior to analysis.
type CandidatePassage struct {
	ID              string `json:"id"`
	DocumentID      string `json:"documentId"`
	ParagraphIndex  int    `json:"paragraphIndex"`
	Text            string `json:"text"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Tradition       string `json:"tradition"`
	Collection      string `json:"collection"`
	Language        string `json:"language"`
	Year            int    `json:"year,omitempty"`
	ProvenanceQuery string `json:"provenanceQuery"`
}

// AnnotatedPassage is the Parallel Analyzer's per-candidate output.
type AnnotatedPassage struct {
	CandidateID     string   `json:"candidateId"`
	Score           float64  `json:"score"`
	KeyPhrase       string   `json:"keyPhrase"`
	CoreTerms       []string `json:"coreTerms"`
	Summary         string   `json:"summary"`
	BriefAnswer     string   `json:"briefAnswer,omitempty"`
	HighlightedText string   `json:"highlightedText"`

	// Carried through from the source CandidatePassage for client display.
	Passage CandidatePassage `json:"passage"`
}

// CachedResponse is a complete prior response, keyed by query fingerprint.
type CachedResponse struct {
	QueryHash       string             `json:"queryHash"`
	NormalizedQuery string             `json:"normalizedQuery"`
	Plan            Plan               `json:"plan"`
	Sources         []AnnotatedPassage `json:"sources"`
	Introduction    string             `json:"introduction"`
	CreatedAt       time.Time          `json:"createdAt"`
	ExpiresAt       time.Time          `json:"expiresAt"`
	HitCount        int                `json:"hitCount"`
	LastHitAt       time.Time          `json:"lastHitAt"`
}

// MemoryRole distinguishes a memory entry's speaker.
type MemoryRole string

const (
	RoleUser      MemoryRole = "user"
	RoleAssistant MemoryRole = "assistant"
)

// MemoryEntry is one append-only turn in an identity's history.
type MemoryEntry struct {
	ID         string
	IdentityID string
	Role       MemoryRole
	Text       string
	Metadata   map[string]any
	CreatedAt  time.Time
}
