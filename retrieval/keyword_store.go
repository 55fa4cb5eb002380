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

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/internal/sqlstore"
)

// KeywordStore answers keyword-mode retrieval with a LIKE/ILIKE full-text
// predicate against a flat paragraph table, the way the index_endpoint in
// spec.md §4.3 is assumed to be a SQL-backed paragraph store rather than a
// dedicated search service.
type KeywordStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// OpenKeywordStore opens a keyword store against the given driver/DSN and
// ensures its table exists.
func OpenKeywordStore(ctx context.Context, driver, dsn string) (*KeywordStore, error) {
	db, dialect, err := sqlstore.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &KeywordStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *KeywordStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS paragraphs (
			id              TEXT PRIMARY KEY,
			document_id     TEXT NOT NULL,
			paragraph_index INTEGER NOT NULL,
			text            TEXT NOT NULL,
			title           TEXT,
			author          TEXT,
			tradition       TEXT,
			collection      TEXT,
			language        TEXT,
			year            INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate paragraphs: %w", err)
	}
	return nil
}

// Upsert indexes or replaces one paragraph row.
func (s *KeywordStore) Upsert(ctx context.Context, p domain.CandidatePassage) error {
	cols := []string{"document_id", "paragraph_index", "text", "title", "author", "tradition", "collection", "language", "year"}
	pgSets := make([]string, len(cols))
	mysqlSets := make([]string, len(cols))
	for i, c := range cols {
		pgSets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		mysqlSets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}

	query := fmt.Sprintf(
		`INSERT INTO paragraphs (id, document_id, paragraph_index, text, title, author, tradition, collection, language, year)
		 VALUES (%s) %s`,
		s.dialect.Placeholders(1, 10),
		s.dialect.UpsertSuffix("id", pgSets, mysqlSets),
	)
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.DocumentID, p.ParagraphIndex, p.Text, p.Title, p.Author, p.Tradition, p.Collection, p.Language, p.Year,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert paragraph %s: %w", p.ID, err)
	}
	return nil
}

// Search runs a keyword-mode retrieval: a LIKE/ILIKE match of queryText
// against the paragraph text, conjoined with the structured filter
// predicates and the text-contains disjunction over author/collection/title
// (spec.md §4.3).
func (s *KeywordStore) Search(ctx context.Context, queryText string, filters domain.Filters, limit int) ([]domain.CandidatePassage, int, error) {
	var where []string
	var args []any
	n := 1

	likeOp := "LIKE"
	if s.dialect == sqlstore.Postgres {
		likeOp = "ILIKE"
	}

	if strings.TrimSpace(queryText) != "" {
		where = append(where, fmt.Sprintf("text %s %s", likeOp, s.dialect.Placeholder(n)))
		args = append(args, "%"+queryText+"%")
		n++
	}
	if filters.Tradition != "" {
		where = append(where, fmt.Sprintf("tradition = %s", s.dialect.Placeholder(n)))
		args = append(args, filters.Tradition)
		n++
	}
	if filters.Collection != "" {
		where = append(where, fmt.Sprintf("collection = %s", s.dialect.Placeholder(n)))
		args = append(args, filters.Collection)
		n++
	}
	if filters.Language != "" {
		where = append(where, fmt.Sprintf("language = %s", s.dialect.Placeholder(n)))
		args = append(args, filters.Language)
		n++
	}
	if filters.DocumentID != "" {
		where = append(where, fmt.Sprintf("document_id = %s", s.dialect.Placeholder(n)))
		args = append(args, filters.DocumentID)
		n++
	}
	if filters.YearMin != nil {
		where = append(where, fmt.Sprintf("year >= %s", s.dialect.Placeholder(n)))
		args = append(args, *filters.YearMin)
		n++
	}
	if filters.YearMax != nil {
		where = append(where, fmt.Sprintf("year <= %s", s.dialect.Placeholder(n)))
		args = append(args, *filters.YearMax)
		n++
	}
	if filters.HasTextContains() {
		var disj []string
		for _, term := range filters.TextContains {
			placeholder := s.dialect.Placeholder(n)
			disj = append(disj, fmt.Sprintf("(author %s %s OR collection %s %s OR title %s %s)",
				likeOp, placeholder, likeOp, placeholder, likeOp, placeholder))
			args = append(args, "%"+term+"%")
			n++
		}
		where = append(where, "("+strings.Join(disj, " OR ")+")")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM paragraphs %s", whereClause)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
	}

	selectQuery := fmt.Sprintf(
		`SELECT id, document_id, paragraph_index, text, title, author, tradition, collection, language, year
		 FROM paragraphs %s ORDER BY document_id, paragraph_index LIMIT %s`,
		whereClause, s.dialect.Placeholder(n),
	)
	rows, err := s.db.QueryContext(ctx, selectQuery, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var hits []domain.CandidatePassage
	for rows.Next() {
		var p domain.CandidatePassage
		var title, author, tradition, collection, language sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.ParagraphIndex, &p.Text, &title, &author, &tradition, &collection, &language, &year); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
		}
		p.Title = title.String
		p.Author = author.String
		p.Tradition = tradition.String
		p.Collection = collection.String
		p.Language = language.String
		p.Year = int(year.Int64)
		hits = append(hits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apierrors.ErrIndexUnavailable, err)
	}

	return hits, total, nil
}

// Close releases the underlying database handle.
func (s *KeywordStore) Close() error {
	return s.db.Close()
}
