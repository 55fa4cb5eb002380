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

// Package cache implements the Query Fingerprint & Cache Store: normalizes
// a query to a stable cache key, persists a complete prior response with
// TTL, hit counter and explicit invalidation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kadirpekel/scholarsearch/domain"
)

// Normalize lowercases text, collapses internal whitespace to a single
// space, and trims leading/trailing whitespace, so Q1 and Q2 that differ
// only in case and spacing produce the same Fingerprint.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// Fingerprint returns the hex-encoded SHA-256 of Normalize(text).
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Store persists CachedResponse rows keyed by query hash.
type Store interface {
	// Get returns the entry for hash if present, regardless of expiry.
	Get(ctx context.Context, hash string) (*domain.CachedResponse, error)

	// Upsert inserts or replaces the entry for resp.QueryHash, resetting
	// CreatedAt/HitCount.
	Upsert(ctx context.Context, resp domain.CachedResponse) error

	// IncrementHit atomically bumps hit_count and sets last_hit_at := now for
	// hash.
	IncrementHit(ctx context.Context, hash string) error

	// InvalidateAll deletes every cache entry.
	InvalidateAll(ctx context.Context) error

	// SweepExpired deletes every entry whose ExpiresAt is before now.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Cache is the Query Fingerprint & Cache Store.
type Cache struct {
	store   Store
	ttl     time.Duration
	devMode bool // disables Lookup globally when true
}

// New builds a Cache with the given TTL. devMode disables Lookup (queries
// always miss) while leaving Store writes intact, matching the
// dev-mode/debug flag in spec.md §4.1.
func New(store Store, ttl time.Duration, devMode bool) *Cache {
	return &Cache{store: store, ttl: ttl, devMode: devMode}
}

// Eligible reports whether a request is cacheable: queries carrying
// extracted text-contains filter terms bypass the cache entirely in both
// directions (spec.md §4.1 — a conservative choice to avoid silently
// ignoring filter semantics that aren't part of the fingerprint).
func Eligible(req domain.QueryRequest) bool {
	return !req.Filters.HasTextContains()
}

// Lookup returns a cached response for raw if present and unexpired,
// incrementing its hit counter. Returns nil on a miss, including when
// dev mode is enabled or the cache store itself errors (a cache failure is
// always treated as a miss, never surfaced to the caller).
func (c *Cache) Lookup(ctx context.Context, raw string) *domain.CachedResponse {
	if c.devMode {
		return nil
	}
	hash := Fingerprint(raw)
	entry, err := c.store.Get(ctx, hash)
	if err != nil || entry == nil {
		return nil
	}
	if !entry.ExpiresAt.After(time.Now()) {
		return nil
	}
	_ = c.store.IncrementHit(ctx, hash)
	entry.HitCount++
	entry.LastHitAt = time.Now()
	return entry
}

// Store upserts a complete response for raw. Any store error is returned
// for the caller to log and swallow: a failed cache write must never fail
// the request it's attached to.
func (c *Cache) Store(ctx context.Context, raw string, plan domain.Plan, sources []domain.AnnotatedPassage, introduction string) error {
	now := time.Now()
	entry := domain.CachedResponse{
		QueryHash:       Fingerprint(raw),
		NormalizedQuery: Normalize(raw),
		Plan:            plan,
		Sources:         sources,
		Introduction:    introduction,
		CreatedAt:       now,
		ExpiresAt:       now.Add(c.ttl),
		HitCount:        0,
		LastHitAt:       time.Time{},
	}
	return c.store.Upsert(ctx, entry)
}

// InvalidateAll clears every cache entry.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.store.InvalidateAll(ctx)
}

// SweepExpired removes every entry past its TTL, returning the count
// removed. Intended to be called periodically from a background goroutine.
func (c *Cache) SweepExpired(ctx context.Context) (int, error) {
	return c.store.SweepExpired(ctx, time.Now())
}
