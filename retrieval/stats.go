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

package retrieval

import "context"

// Stats is the index statistics surfaced by GET /search/stats (spec.md §6).
type Stats struct {
	ParagraphCount int    `json:"paragraphCount"`
	VectorProvider string `json:"vectorProvider"`
}

// StatsProvider is implemented by an Adapter that can report index
// statistics; not every Adapter needs to (a test double may not), so
// callers type-assert for it rather than widening the core interface.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats reports the paragraph count from the keyword store (0 if no
// keyword store is configured) and the configured vector provider's name.
func (a *index) Stats(ctx context.Context) (Stats, error) {
	var count int
	if a.keyword != nil {
		n, err := a.keyword.Count(ctx)
		if err != nil {
			return Stats{}, err
		}
		count = n
	}
	return Stats{ParagraphCount: count, VectorProvider: a.provider.Name()}, nil
}

// Ping verifies the keyword store's database connection is reachable; a nil
// keyword store (vector-only deployment) is always considered healthy.
func (a *index) Ping(ctx context.Context) error {
	if a.keyword == nil {
		return nil
	}
	return a.keyword.Ping(ctx)
}

// Count returns the number of indexed paragraph rows.
func (s *KeywordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paragraphs").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Ping verifies the underlying database connection is reachable.
func (s *KeywordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
