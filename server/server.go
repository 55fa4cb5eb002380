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

// Package server exposes the query-time pipeline over HTTP: the
// non-streaming passthrough search, the buffered and streaming analyzers,
// and the stats/health endpoints (spec.md §6).
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/scholarsearch/assembler"
	"github.com/kadirpekel/scholarsearch/identity"
	"github.com/kadirpekel/scholarsearch/llm"
	"github.com/kadirpekel/scholarsearch/retrieval"
)

// Server holds the already-constructed components an HTTP request needs.
type Server struct {
	Pipeline  *assembler.Pipeline
	Retrieval retrieval.Adapter
	LLM       llm.Client
	Auth      identity.TokenValidator // nil disables bearer-token validation
	Version   string
}

// NewRouter builds the chi router for the search surface.
func NewRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware)

	r.Post("/search", s.handleSearch)
	r.With(s.authMiddleware()).Post("/search/analyze", s.handleAnalyze)
	r.With(s.authMiddleware()).Post("/search/analyze/stream", s.handleAnalyzeStream)
	r.Get("/search/stats", s.handleStats)
	r.Get("/search/health", s.handleHealth)

	return r
}

// authMiddleware validates a bearer token when present; a nil s.Auth means
// the deployment runs without authentication at all, so every caller is
// resolved anonymously.
func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	if s.Auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return identity.OptionalMiddleware(s.Auth)
}
