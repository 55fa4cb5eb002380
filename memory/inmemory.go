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
	"strconv"
	"sync"

	"github.com/kadirpekel/scholarsearch/domain"
)

// InMemoryAdapter keeps entries in a process-local slice, scoped to
// development and tests the way identity.MemoryAnonymousStore mirrors
// SQLAnonymousStore for the same reason.
type InMemoryAdapter struct {
	mu      sync.Mutex
	entries []domain.MemoryEntry
	idSeq   int
}

// NewInMemoryAdapter creates an empty adapter.
func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{}
}

func (a *InMemoryAdapter) Recall(ctx context.Context, identityID, queryText string, topK int) ([]domain.MemoryEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var owned []domain.MemoryEntry
	for _, e := range a.entries {
		if e.IdentityID == identityID {
			owned = append(owned, e)
		}
	}
	// Newest-first: no embedder configured for this adapter, so recall
	// falls back to plain recency (spec.md §9 tolerates this).
	for i, j := 0, len(owned)-1; i < j; i, j = i+1, j-1 {
		owned[i], owned[j] = owned[j], owned[i]
	}
	if len(owned) > topK {
		owned = owned[:topK]
	}
	return owned, nil
}

func (a *InMemoryAdapter) Append(ctx context.Context, entry domain.MemoryEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idSeq++
	if entry.ID == "" {
		entry.ID = "mem-" + strconv.Itoa(a.idSeq)
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *InMemoryAdapter) Rekey(ctx context.Context, fromIdentityID, toIdentityID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.entries {
		if a.entries[i].IdentityID == fromIdentityID {
			a.entries[i].IdentityID = toIdentityID
		}
	}
	return nil
}

func (a *InMemoryAdapter) Close() error { return nil }

var _ Adapter = (*InMemoryAdapter)(nil)
