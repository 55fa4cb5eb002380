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

// Package quota implements the Quota Gate: resolves an identity's tier to a
// request budget, decides allow/deny, and increments a monotonic
// per-identity counter after a successful response.
//
// Unlike a sliding-window rate limiter, the gate tracks a single lifetime (or
// caller-defined-period) counter per identity — there is no time window to
// roll over, matching the "at-most-once increment per completion" invariant.
//
// Check and Increment are separate calls with no transaction around them:
// two concurrent requests from one identity can both pass Check before
// either increments, so a counter can end one or more above its limit.
package quota

import (
	"context"
	"errors"

	"github.com/kadirpekel/scholarsearch/apierrors"
	"github.com/kadirpekel/scholarsearch/domain"
)

// Decision is the Quota Gate's allow/deny verdict.
type Decision struct {
	Allowed   bool
	Remaining int // -1 means unbounded
	Limit     int // -1 means unbounded
	Reason    string
}

// Store persists the monotonic per-identity usage counter.
type Store interface {
	// GetCount returns the current counter value for identityID, 0 if unseen.
	GetCount(ctx context.Context, identityID string) (int, error)

	// Increment adds 1 to the counter for identityID and returns the new
	// value. Creates the record on first use.
	Increment(ctx context.Context, identityID string) (int, error)

	// Reset zeroes the counter for identityID, used by tests and admin tooling.
	Reset(ctx context.Context, identityID string) error
}

// Gate is the Quota Gate.
type Gate struct {
	store          Store
	verifiedLimit  int
	anonymousLimit int
}

// New builds a Gate with the configured per-tier limits.
func New(store Store, verifiedLimit, anonymousLimit int) *Gate {
	return &Gate{store: store, verifiedLimit: verifiedLimit, anonymousLimit: anonymousLimit}
}

// Check resolves identity to a Decision without mutating any counter.
//
// Rules, in order (spec.md §4.2):
//  1. banned tier → denied, limit 0.
//  2. unbounded tier → allowed, unbounded.
//  3. authenticated verified → allowed iff search_count < configured limit.
//  4. anonymous with a resolved opaque id → allowed iff search_count < configured limit.
//  5. anonymous without an id header → allowed, unmetered (remaining == limit).
func (g *Gate) Check(ctx context.Context, identity domain.Identity) (Decision, error) {
	switch {
	case identity.Authenticated != nil:
		auth := identity.Authenticated
		if auth.Tier == domain.TierBanned {
			return Decision{Allowed: false, Remaining: 0, Limit: 0, Reason: "suspended"}, nil
		}
		if auth.Tier.Unbounded() {
			return Decision{Allowed: true, Remaining: -1, Limit: -1}, nil
		}
		count, err := g.currentCount(ctx, identity)
		if err != nil {
			return Decision{}, err
		}
		remaining := g.verifiedLimit - count
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   count < g.verifiedLimit,
			Remaining: remaining,
			Limit:     g.verifiedLimit,
			Reason:    denialReason(count < g.verifiedLimit, "limit_exceeded"),
		}, nil

	case identity.Anonymous != nil && identity.Anonymous.OpaqueID != "":
		count, err := g.currentCount(ctx, identity)
		if err != nil {
			return Decision{}, err
		}
		remaining := g.anonymousLimit - count
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   count < g.anonymousLimit,
			Remaining: remaining,
			Limit:     g.anonymousLimit,
			Reason:    denialReason(count < g.anonymousLimit, "limit_exceeded"),
		}, nil

	default:
		// Anonymous with no id header at all: allowed, unmetered.
		return Decision{Allowed: true, Remaining: g.anonymousLimit, Limit: g.anonymousLimit}, nil
	}
}

// Increment atomically bumps identity's counter after a successful response.
// A no-op (and no error) for unbounded identities and unmetered anonymous
// callers, since there is nothing to track.
func (g *Gate) Increment(ctx context.Context, identity domain.Identity) error {
	if identity.Authenticated != nil && identity.Authenticated.Tier.Unbounded() {
		return nil
	}
	key := identity.ID()
	if key == "" {
		return nil
	}
	_, err := g.store.Increment(ctx, key)
	if err != nil {
		return apierrors.ErrQuotaDenied
	}
	return nil
}

func (g *Gate) currentCount(ctx context.Context, identity domain.Identity) (int, error) {
	key := identity.ID()
	if key == "" {
		return 0, nil
	}
	count, err := g.store.GetCount(ctx, key)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func denialReason(allowed bool, reason string) string {
	if allowed {
		return ""
	}
	return reason
}

// ErrDenied wraps apierrors.NewQuotaError for a given Decision's reason.
func ErrDenied(d Decision) error {
	if d.Allowed {
		return nil
	}
	reason := d.Reason
	if reason == "" {
		reason = "limit_exceeded"
	}
	return apierrors.NewQuotaError(reason)
}

// IsQuotaDenied reports whether err is (or wraps) a quota denial.
func IsQuotaDenied(err error) bool {
	return errors.Is(err, apierrors.ErrQuotaDenied)
}
