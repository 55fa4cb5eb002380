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

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/scholarsearch/domain"
	"github.com/kadirpekel/scholarsearch/embedder"
	"github.com/kadirpekel/scholarsearch/internal/sqlstore"
)

// SQLAdapter persists memory entries append-only in a SQL table (spec.md
// §7: "(id, identity_id, role, text, metadata JSON, created_at)"). When an
// embedder is configured, Recall ranks by cosine similarity against a
// stored embedding column; otherwise it falls back to recency, the same
// degrade-gracefully shape retrieval.index uses when no embedder is wired.
type SQLAdapter struct {
	db      *sql.DB
	dialect sqlstore.Dialect
	emb     embedder.Embedder // optional
}

// OpenSQLAdapter opens a memory store against the given driver/DSN. emb may
// be nil to disable semantic ranking and use recency only.
func OpenSQLAdapter(ctx context.Context, driver, dsn string, emb embedder.Embedder) (*SQLAdapter, error) {
	db, dialect, err := sqlstore.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	a := &SQLAdapter{db: db, dialect: dialect, emb: emb}
	if err := a.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLAdapter) migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_entries (
			id          TEXT PRIMARY KEY,
			identity_id TEXT NOT NULL,
			role        TEXT NOT NULL,
			text        TEXT NOT NULL,
			metadata    TEXT,
			embedding   TEXT,
			created_at  TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate memory_entries: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memory_identity ON memory_entries (identity_id)`)
	if err != nil {
		return fmt.Errorf("failed to create memory_entries identity index: %w", err)
	}
	return nil
}

func (a *SQLAdapter) Append(ctx context.Context, entry domain.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry metadata: %w", err)
	}

	var embeddingJSON []byte
	if a.emb != nil {
		vec, err := a.emb.Embed(ctx, entry.Text)
		if err == nil {
			embeddingJSON, _ = json.Marshal(vec)
		}
		// An embedding failure degrades to recency-ranked recall for this
		// entry rather than failing the append; memory persistence must
		// never block completion (spec.md §5).
	}

	query := fmt.Sprintf(
		"INSERT INTO memory_entries (id, identity_id, role, text, metadata, embedding, created_at) VALUES (%s)",
		a.dialect.Placeholders(1, 7),
	)
	_, err = a.db.ExecContext(ctx, query, entry.ID, entry.IdentityID, string(entry.Role), entry.Text, string(metadataJSON), string(embeddingJSON), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append memory entry: %w", err)
	}
	return nil
}

func (a *SQLAdapter) Recall(ctx context.Context, identityID, queryText string, topK int) ([]domain.MemoryEntry, error) {
	query := fmt.Sprintf(
		`SELECT id, identity_id, role, text, metadata, embedding, created_at
		 FROM memory_entries WHERE identity_id = %s ORDER BY created_at DESC`,
		a.dialect.Placeholder(1),
	)
	// When ranking semantically, scan every owned row (topK is applied
	// after scoring); otherwise the DB-level ORDER BY + LIMIT already
	// gives the right order, so push the limit down.
	if a.emb == nil {
		query += fmt.Sprintf(" LIMIT %s", a.dialect.Placeholder(2))
	}

	var rows *sql.Rows
	var err error
	if a.emb == nil {
		rows, err = a.db.QueryContext(ctx, query, identityID, topK)
	} else {
		rows, err = a.db.QueryContext(ctx, query, identityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recall memory entries: %w", err)
	}
	defer rows.Close()

	type scanned struct {
		entry     domain.MemoryEntry
		embedding []float32
	}
	var all []scanned
	for rows.Next() {
		var e domain.MemoryEntry
		var role, metadataJSON, embeddingJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.IdentityID, &role, &e.Text, &metadataJSON, &embeddingJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		e.Role = domain.MemoryRole(role.String)
		if metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		var vec []float32
		if embeddingJSON.String != "" {
			_ = json.Unmarshal([]byte(embeddingJSON.String), &vec)
		}
		all = append(all, scanned{entry: e, embedding: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to recall memory entries: %w", err)
	}

	if a.emb == nil {
		out := make([]domain.MemoryEntry, len(all))
		for i, s := range all {
			out[i] = s.entry
		}
		return out, nil
	}

	queryVec, err := a.emb.Embed(ctx, queryText)
	if err != nil {
		// Embedding the query failed: degrade to the recency order already
		// fetched rather than erroring the whole recall.
		out := make([]domain.MemoryEntry, 0, topK)
		for i := 0; i < len(all) && i < topK; i++ {
			out = append(out, all[i].entry)
		}
		return out, nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		return cosineSimilarity(queryVec, all[i].embedding) > cosineSimilarity(queryVec, all[j].embedding)
	})
	if len(all) > topK {
		all = all[:topK]
	}
	out := make([]domain.MemoryEntry, len(all))
	for i, s := range all {
		out[i] = s.entry
	}
	return out, nil
}

func (a *SQLAdapter) Rekey(ctx context.Context, fromIdentityID, toIdentityID string) error {
	query := fmt.Sprintf("UPDATE memory_entries SET identity_id = %s WHERE identity_id = %s",
		a.dialect.Placeholder(1), a.dialect.Placeholder(2))
	_, err := a.db.ExecContext(ctx, query, toIdentityID, fromIdentityID)
	if err != nil {
		return fmt.Errorf("failed to rekey memory entries from %s to %s: %w", fromIdentityID, toIdentityID, err)
	}
	return nil
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

// cosineSimilarity scores two embedding vectors; a length mismatch or a
// zero-norm vector (no embedding stored for that entry) scores lowest
// rather than panicking, so rows written before an embedder was configured
// still recall, just unranked relative to scored ones.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Adapter = (*SQLAdapter)(nil)
