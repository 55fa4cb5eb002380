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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/scholarsearch/domain"
)

func TestGate_BannedDenied(t *testing.T) {
	gate := New(NewMemoryStore(), 20, 10)
	identity := domain.Identity{Authenticated: &domain.AuthenticatedIdentity{SubjectID: "u1", Tier: domain.TierBanned}}

	decision, err := gate.Check(context.Background(), identity)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Limit)
}

func TestGate_UnboundedTierAllowedRegardlessOfCount(t *testing.T) {
	gate := New(NewMemoryStore(), 20, 10)
	identity := domain.Identity{Authenticated: &domain.AuthenticatedIdentity{SubjectID: "u2", Tier: domain.TierPatron, SearchCount: 10000}}

	decision, err := gate.Check(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, -1, decision.Limit)
	assert.Equal(t, -1, decision.Remaining)
}

func TestGate_VerifiedDeniedAtLimit(t *testing.T) {
	store := NewMemoryStore()
	gate := New(store, 2, 10)
	identity := domain.Identity{Authenticated: &domain.AuthenticatedIdentity{SubjectID: "u3", Tier: domain.TierVerified}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := gate.Check(ctx, identity)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.NoError(t, gate.Increment(ctx, identity))
	}

	decision, err := gate.Check(ctx, identity)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
}

func TestGate_AnonymousWithIDMetered(t *testing.T) {
	gate := New(NewMemoryStore(), 20, 1)
	identity := domain.Identity{Anonymous: &domain.AnonymousIdentity{OpaqueID: "anon-1"}}
	ctx := context.Background()

	decision, err := gate.Check(ctx, identity)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NoError(t, gate.Increment(ctx, identity))

	decision, err = gate.Check(ctx, identity)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestGate_AnonymousWithoutIDUnmetered(t *testing.T) {
	gate := New(NewMemoryStore(), 20, 7)
	identity := domain.Identity{Anonymous: &domain.AnonymousIdentity{}}

	decision, err := gate.Check(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, decision.Limit, decision.Remaining)
}

func TestGate_IncrementIsNoopForUnboundedAndUnmetered(t *testing.T) {
	store := NewMemoryStore()
	gate := New(store, 20, 10)
	ctx := context.Background()

	unbounded := domain.Identity{Authenticated: &domain.AuthenticatedIdentity{SubjectID: "u4", Tier: domain.TierAdmin}}
	require.NoError(t, gate.Increment(ctx, unbounded))

	unmetered := domain.Identity{Anonymous: &domain.AnonymousIdentity{}}
	require.NoError(t, gate.Increment(ctx, unmetered))

	assert.Equal(t, 0, store.counts["auth:u4"])
}

func TestIsQuotaDenied(t *testing.T) {
	assert.True(t, IsQuotaDenied(ErrDenied(Decision{Allowed: false, Reason: "limit_exceeded"})))
	assert.False(t, IsQuotaDenied(nil))
}
