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
	"sync"
	"time"

	"github.com/kadirpekel/scholarsearch/domain"
)

// MemoryStore is an in-memory Store, suitable for development, testing and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*domain.CachedResponse
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*domain.CachedResponse)}
}

func (s *MemoryStore) Get(ctx context.Context, hash string) (*domain.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[hash]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, resp domain.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := resp
	cp.HitCount = 0
	cp.LastHitAt = time.Time{}
	s.entries[resp.QueryHash] = &cp
	return nil
}

func (s *MemoryStore) IncrementHit(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[hash]; ok {
		entry.HitCount++
		entry.LastHitAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) InvalidateAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*domain.CachedResponse)
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, entry := range s.entries {
		if !entry.ExpiresAt.After(now) {
			delete(s.entries, hash)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
