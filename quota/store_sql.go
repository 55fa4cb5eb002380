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

package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kadirpekel/scholarsearch/internal/sqlstore"
)

// SQLStore persists quota counters in a single table, one row per identity.
type SQLStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// OpenSQLStore opens a quota store against the given driver/DSN and ensures
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
		CREATE TABLE IF NOT EXISTS quota_usage (
			identity_id TEXT PRIMARY KEY,
			count       INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate quota_usage: %w", err)
	}
	return nil
}

func (s *SQLStore) GetCount(ctx context.Context, identityID string) (int, error) {
	query := fmt.Sprintf("SELECT count FROM quota_usage WHERE identity_id = %s", s.dialect.Placeholder(1))
	var count int
	err := s.db.QueryRowContext(ctx, query, identityID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota GetCount: %w", err)
	}
	return count, nil
}

func (s *SQLStore) Increment(ctx context.Context, identityID string) (int, error) {
	upsert := fmt.Sprintf(
		"INSERT INTO quota_usage (identity_id, count) VALUES (%s, 1) %s",
		s.dialect.Placeholder(1),
		s.dialect.UpsertSuffix("identity_id",
			[]string{"count = quota_usage.count + 1"},
			[]string{"count = count + 1"},
		),
	)
	if _, err := s.db.ExecContext(ctx, upsert, identityID); err != nil {
		return 0, fmt.Errorf("quota Increment: %w", err)
	}
	return s.GetCount(ctx, identityID)
}

func (s *SQLStore) Reset(ctx context.Context, identityID string) error {
	query := fmt.Sprintf("DELETE FROM quota_usage WHERE identity_id = %s", s.dialect.Placeholder(1))
	_, err := s.db.ExecContext(ctx, query, identityID)
	if err != nil {
		return fmt.Errorf("quota Reset: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
