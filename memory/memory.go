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

// Package memory is read-only during planning (fetch the top-k prior turns
// for an identity) and append-only after a request completes (store this
// turn's user and assistant text). It also supports identity unification:
// rekeying an anonymous caller's history onto their authenticated id once
// they log in, without duplicating entries.
package memory

import (
	"context"

	"github.com/kadirpekel/scholarsearch/domain"
)

// Adapter is the uniform interface the core pipeline uses: a top-k recall
// during planning, an append after completion, and a rekey on identity
// unification.
type Adapter interface {
	// Recall returns up to topK prior entries for identityID most relevant
	// to queryText, newest-first when no embedder is configured (plain
	// recency) or similarity-ranked when one is.
	Recall(ctx context.Context, identityID, queryText string, topK int) ([]domain.MemoryEntry, error)

	// Append records one turn. Entries are never mutated once written.
	Append(ctx context.Context, entry domain.MemoryEntry) error

	// Rekey reassigns every entry owned by fromIdentityID to toIdentityID,
	// the way an anonymous caller's history is unified onto their
	// authenticated identity on login (spec.md §3: "rekeyed, not copied
	// twice").
	Rekey(ctx context.Context, fromIdentityID, toIdentityID string) error

	// Close releases any resources held by the adapter.
	Close() error
}

// NilAdapter is a no-op Adapter, returned when memory is disabled
// (config.MemoryConfig.Enabled == false): the planner must function with
// zero memory (spec.md §9), so callers never need a nil check.
type NilAdapter struct{}

func (NilAdapter) Recall(ctx context.Context, identityID, queryText string, topK int) ([]domain.MemoryEntry, error) {
	return nil, nil
}

func (NilAdapter) Append(ctx context.Context, entry domain.MemoryEntry) error { return nil }

func (NilAdapter) Rekey(ctx context.Context, fromIdentityID, toIdentityID string) error { return nil }

func (NilAdapter) Close() error { return nil }

var _ Adapter = NilAdapter{}
