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

// Package sqlstore holds the dialect-switching shared by every persistence
// adapter that can run against postgres, mysql or sqlite (cache, quota,
// identity, memory): placeholder syntax and upsert clause construction,
// kept in one place so the four stores don't each reinvent it.
package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL dialect a Store is speaking.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Open opens a *sql.DB for the named driver ("postgres" | "mysql" |
// "sqlite" | "sqlite3") and returns the matching Dialect.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	var dialect Dialect
	driverName := driver
	switch driver {
	case "postgres", "pq":
		dialect = Postgres
		driverName = "postgres"
	case "mysql":
		dialect = MySQL
	case "sqlite", "sqlite3":
		dialect = SQLite
		driverName = "sqlite3"
	default:
		return nil, "", fmt.Errorf("unsupported sql driver: %s", driver)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if dialect == SQLite {
		// An in-memory DSN gets a fresh, empty database per connection unless
		// the pool is pinned to exactly one; a pooled second connection would
		// otherwise silently see none of the first connection's writes.
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// Placeholder returns the dialect's positional parameter marker for the
// n-th (1-indexed) bound argument: "$1" for postgres, "?" for mysql/sqlite.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders renders n comma-separated placeholders starting at offset.
func (d Dialect) Placeholders(offset, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = d.Placeholder(offset + i)
	}
	return strings.Join(parts, ", ")
}

// UpsertSuffix returns the dialect-specific clause appended to an INSERT to
// turn it into an upsert keyed on keyCol, setting the given assignment
// clauses (already dialect-formatted, e.g. "amount = excluded.amount" for
// postgres or "amount = VALUES(amount)" for mysql) on conflict.
//
// sqlite and postgres share "ON CONFLICT"/excluded syntax; mysql uses its
// own "ON DUPLICATE KEY UPDATE" with VALUES(col) references.
func (d Dialect) UpsertSuffix(keyCol string, pgSQLiteSets, mysqlSets []string) string {
	switch d {
	case MySQL:
		return "ON DUPLICATE KEY UPDATE " + strings.Join(mysqlSets, ", ")
	default: // Postgres, SQLite
		return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", keyCol, strings.Join(pgSQLiteSets, ", "))
	}
}

// ExcludedRef returns how to reference the to-be-inserted value of col in an
// upsert's conflict-update clause: "excluded.col" (postgres/sqlite) or
// "VALUES(col)" (mysql).
func (d Dialect) ExcludedRef(col string) string {
	if d == MySQL {
		return fmt.Sprintf("VALUES(%s)", col)
	}
	return "excluded." + col
}
