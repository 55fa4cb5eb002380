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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/identity"
	"github.com/kadirpekel/scholarsearch/retrieval"
)

type searchRequest struct {
	Query         string         `json:"query"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	Mode          string         `json:"mode"`
	SemanticRatio float64        `json:"semanticRatio"`
	Filters       domain.Filters `json:"filters"`
}

type searchResponse struct {
	Hits             []domain.CandidatePassage `json:"hits"`
	Mode             domain.RetrievalMode      `json:"mode"`
	Filters          domain.Filters            `json:"filters"`
	ProcessingTimeMs int64                     `json:"processingTimeMs"`
}

// handleSearch is the non-streaming, un-planned passthrough to the
// retrieval adapter: one mode, one call, no planner/analyzer/cache/quota
// involvement (spec.md §6).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := domain.RetrievalMode(req.Mode)
	switch mode {
	case domain.ModeKeyword, domain.ModeSemantic, domain.ModeHybrid:
	default:
		mode = domain.ModeHybrid
	}

	limit := clampLimit(req.Limit)
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	resp, err := s.Retrieval.Retrieve(r.Context(), retrieval.Request{
		Mode:          mode,
		QueryText:     req.Query,
		Filters:       req.Filters,
		Limit:         limit + offset,
		SemanticRatio: req.SemanticRatio,
	})
	if err != nil {
		if errors.Is(err, apierrors.ErrIndexBadRequest) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Warn("search retrieval failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "index unavailable")
		return
	}

	hits := resp.Hits
	if offset > 0 {
		if offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[offset:]
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Hits:             hits,
		Mode:             mode,
		Filters:          req.Filters,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}

type analyzeRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Mode  string `json:"mode"`
}

type analyzeResponse struct {
	Analysis         string                    `json:"analysis"`
	Sources          []domain.AnnotatedPassage `json:"sources"`
	Query            string                    `json:"query"`
	Model            string                    `json:"model"`
	ProcessingTimeMs int64                     `json:"processingTimeMs"`
}

// handleAnalyze is the buffered (non-SSE) counterpart of the streaming
// analyzer route: same pipeline, one JSON response instead of an event
// stream (spec.md §6).
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := identity.Resolve(r, 0)
	qreq := domain.QueryRequest{
		RawText:   req.Query,
		ModeHint:  domain.RetrievalMode(req.Mode),
		ResultCap: req.Limit,
	}

	result, err := s.Pipeline.RunBuffered(r.Context(), id, qreq)
	if err != nil {
		var qerr *apierrors.QuotaError
		if errors.As(err, &qerr) {
			writeJSONError(w, http.StatusPaymentRequired, "query_limit_exceeded")
			return
		}
		slog.Warn("buffered analyze failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Analysis:         result.Introduction,
		Sources:          result.Sources,
		Query:            req.Query,
		Model:            s.Pipeline.Model,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
	})
}

type streamRequest struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	Mode          string `json:"mode"`
	UseResearcher bool   `json:"useResearcher"`
}

// handleAnalyzeStream is the SSE route driving the Response Assembler
// directly (spec.md §4.9, §6).
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := identity.Resolve(r, 0)
	qreq := domain.QueryRequest{
		RawText:       req.Query,
		ModeHint:      domain.RetrievalMode(req.Mode),
		ResultCap:     req.Limit,
		UseResearcher: req.UseResearcher,
	}

	s.Pipeline.Run(r.Context(), w, id, qreq)
}

type statsResponse struct {
	retrieval.Stats
	ServerVersion string `json:"serverVersion"`
}

// handleStats reports index statistics plus the running server version.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var stats retrieval.Stats
	if sp, ok := s.Retrieval.(retrieval.StatsProvider); ok {
		st, err := sp.Stats(r.Context())
		if err != nil {
			slog.Warn("stats lookup failed", "error", err)
		} else {
			stats = st
		}
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, ServerVersion: s.Version})
}

type healthResponse struct {
	Status string `json:"status"`
	Index  bool   `json:"index"`
	LLM    bool   `json:"llm"`
}

// handleHealth reports index reachability and LLM adapter configuration.
// It deliberately does not issue a live LLM completion: billing a provider
// call on every health probe would make the probe itself a cost driver.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	indexOK := true
	if pinger, ok := s.Retrieval.(pingable); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			indexOK = false
		}
	}
	llmOK := s.LLM != nil

	status := http.StatusOK
	health := "ok"
	if !indexOK || !llmOK {
		status = http.StatusServiceUnavailable
		health = "degraded"
	}
	writeJSON(w, status, healthResponse{Status: health, Index: indexOK, LLM: llmOK})
}

// pingable is implemented by a retrieval.Adapter that can report liveness.
type pingable interface {
	Ping(ctx context.Context) error
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > 50:
		return 50
	default:
		return limit
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
