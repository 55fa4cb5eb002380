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

package identity

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/scholarsearch/internal/sqlstore"
)

// AnonymousRecord is a sighted-but-unauthenticated caller.
type AnonymousRecord struct {
	OpaqueID    string
	UserAgent   string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	Converted   bool // true once unified into an authenticated identity
}

// AnonymousStore persists anonymous sightings (§3: "lazily created in a side
// store on first sighting") and records identity-unification conversions.
type AnonymousStore interface {
	// Touch records a sighting of opaqueID, creating the record on first use
	// and updating LastSeenAt/UserAgent otherwise.
	Touch(ctx context.Context, opaqueID, userAgent string) error

	// MarkConverted flags opaqueID as unified into an authenticated identity.
	MarkConverted(ctx context.Context, opaqueID string) error
}

// MemoryAnonymousStore is an in-memory AnonymousStore.
type MemoryAnonymousStore struct {
	mu      sync.Mutex
	records map[string]*AnonymousRecord
}

// NewMemoryAnonymousStore creates an empty in-memory store.
func NewMemoryAnonymousStore() *MemoryAnonymousStore {
	return &MemoryAnonymousStore{records: make(map[string]*AnonymousRecord)}
}

func (s *MemoryAnonymousStore) Touch(ctx context.Context, opaqueID, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	record, ok := s.records[opaqueID]
	if !ok {
		s.records[opaqueID] = &AnonymousRecord{OpaqueID: opaqueID, UserAgent: userAgent, FirstSeenAt: now, LastSeenAt: now}
		return nil
	}
	record.LastSeenAt = now
	record.UserAgent = userAgent
	return nil
}

func (s *MemoryAnonymousStore) MarkConverted(ctx context.Context, opaqueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[opaqueID]; ok {
		record.Converted = true
	}
	return nil
}

var _ AnonymousStore = (*MemoryAnonymousStore)(nil)

// SQLAnonymousStore persists anonymous sightings in a SQL table.
type SQLAnonymousStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// OpenSQLAnonymousStore opens a store against the given driver/DSN and
// ensures its table exists.
func OpenSQLAnonymousStore(ctx context.Context, driver, dsn string) (*SQLAnonymousStore, error) {
	db, dialect, err := sqlstore.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLAnonymousStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLAnonymousStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS anonymous_identities (
			opaque_id     TEXT PRIMARY KEY,
			user_agent    TEXT,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at  TIMESTAMP NOT NULL,
			converted     BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate anonymous_identities: %w", err)
	}
	return nil
}

func (s *SQLAnonymousStore) Touch(ctx context.Context, opaqueID, userAgent string) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(
		"INSERT INTO anonymous_identities (opaque_id, user_agent, first_seen_at, last_seen_at, converted) VALUES (%s, %s, %s, %s, FALSE) %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4),
		s.dialect.UpsertSuffix("opaque_id",
			[]string{"user_agent = " + s.dialect.ExcludedRef("user_agent"), "last_seen_at = " + s.dialect.ExcludedRef("last_seen_at")},
			[]string{"user_agent = VALUES(user_agent)", "last_seen_at = VALUES(last_seen_at)"},
		),
	)
	_, err := s.db.ExecContext(ctx, query, opaqueID, userAgent, now, now)
	if err != nil {
		return fmt.Errorf("anonymous Touch: %w", err)
	}
	return nil
}

func (s *SQLAnonymousStore) MarkConverted(ctx context.Context, opaqueID string) error {
	query := fmt.Sprintf("UPDATE anonymous_identities SET converted = TRUE WHERE opaque_id = %s", s.dialect.Placeholder(1))
	_, err := s.db.ExecContext(ctx, query, opaqueID)
	if err != nil {
		return fmt.Errorf("anonymous MarkConverted: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLAnonymousStore) Close() error {
	return s.db.Close()
}

var _ AnonymousStore = (*SQLAnonymousStore)(nil)
