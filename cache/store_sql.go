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

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/internal/sqlstore"
)

// SQLStore persists cache entries in a single table, the plan and sources
// serialized as JSON (spec.md §6: `(query_hash PRIMARY KEY, normalized_query,
// response JSON, created_at, expires_at, hit_count, last_hit_at)`).
type SQLStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// cachedPayload is the JSON blob stored in the response column: everything
// in domain.CachedResponse except the columns broken out for indexing.
type cachedPayload struct {
	Plan         domain.Plan               `json:"plan"`
	Sources      []domain.AnnotatedPassage `json:"sources"`
	Introduction string                    `json:"introduction"`
}

// OpenSQLStore opens a cache store against the given driver/DSN and ensures
// its table exists.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, dialect, err := sqlstore.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS query_cache (
			query_hash       TEXT PRIMARY KEY,
			normalized_query TEXT NOT NULL,
			response         TEXT NOT NULL,
			created_at       TIMESTAMP NOT NULL,
			expires_at       TIMESTAMP NOT NULL,
			hit_count        INTEGER NOT NULL DEFAULT 0,
			last_hit_at      TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate query_cache: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, hash string) (*domain.CachedResponse, error) {
	query := fmt.Sprintf(
		"SELECT normalized_query, response, created_at, expires_at, hit_count, last_hit_at FROM query_cache WHERE query_hash = %s",
		s.dialect.Placeholder(1),
	)
	var (
		normalized   string
		responseJSON string
		createdAt    time.Time
		expiresAt    time.Time
		hitCount     int
		lastHitAt    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&normalized, &responseJSON, &createdAt, &expiresAt, &hitCount, &lastHitAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache Get: %w", err)
	}

	var payload cachedPayload
	if err := json.Unmarshal([]byte(responseJSON), &payload); err != nil {
		return nil, fmt.Errorf("cache Get: decode response: %w", err)
	}

	entry := &domain.CachedResponse{
		QueryHash:       hash,
		NormalizedQuery: normalized,
		Plan:            payload.Plan,
		Sources:         payload.Sources,
		Introduction:    payload.Introduction,
		CreatedAt:       createdAt,
		ExpiresAt:       expiresAt,
		HitCount:        hitCount,
	}
	if lastHitAt.Valid {
		entry.LastHitAt = lastHitAt.Time
	}
	return entry, nil
}

func (s *SQLStore) Upsert(ctx context.Context, resp domain.CachedResponse) error {
	payload, err := json.Marshal(cachedPayload{Plan: resp.Plan, Sources: resp.Sources, Introduction: resp.Introduction})
	if err != nil {
		return fmt.Errorf("cache Upsert: encode response: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO query_cache (query_hash, normalized_query, response, created_at, expires_at, hit_count, last_hit_at)
		 VALUES (%s, %s, %s, %s, %s, 0, NULL) %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5),
		s.dialect.UpsertSuffix("query_hash",
			[]string{
				"normalized_query = " + s.dialect.ExcludedRef("normalized_query"),
				"response = " + s.dialect.ExcludedRef("response"),
				"created_at = " + s.dialect.ExcludedRef("created_at"),
				"expires_at = " + s.dialect.ExcludedRef("expires_at"),
				"hit_count = 0",
				"last_hit_at = NULL",
			},
			[]string{
				"normalized_query = VALUES(normalized_query)",
				"response = VALUES(response)",
				"created_at = VALUES(created_at)",
				"expires_at = VALUES(expires_at)",
				"hit_count = 0",
				"last_hit_at = NULL",
			},
		),
	)
	_, err = s.db.ExecContext(ctx, query, resp.QueryHash, resp.NormalizedQuery, string(payload), resp.CreatedAt, resp.ExpiresAt)
	if err != nil {
		return fmt.Errorf("cache Upsert: %w", err)
	}
	return nil
}

func (s *SQLStore) IncrementHit(ctx context.Context, hash string) error {
	query := fmt.Sprintf(
		"UPDATE query_cache SET hit_count = hit_count + 1, last_hit_at = %s WHERE query_hash = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2),
	)
	_, err := s.db.ExecContext(ctx, query, time.Now(), hash)
	if err != nil {
		return fmt.Errorf("cache IncrementHit: %w", err)
	}
	return nil
}

func (s *SQLStore) InvalidateAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM query_cache")
	if err != nil {
		return fmt.Errorf("cache InvalidateAll: %w", err)
	}
	return nil
}

func (s *SQLStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	query := fmt.Sprintf("DELETE FROM query_cache WHERE expires_at < %s", s.dialect.Placeholder(1))
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("cache SweepExpired: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
