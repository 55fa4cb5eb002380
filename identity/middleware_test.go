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

package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	claims *Claims
	err    error
}

func (f *fakeValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	return f.claims, f.err
}

func TestValidAnonymousID(t *testing.T) {
	assert.True(t, ValidAnonymousID("user_8f14e45fceea167a"))
	assert.True(t, ValidAnonymousID("sess_0a1b2c3d-e4f5"))
	assert.False(t, ValidAnonymousID("Admin_123"))
	assert.False(t, ValidAnonymousID(""))
}

func TestResolve_AuthenticatedFromContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	r = r.WithContext(ContextWithClaims(r.Context(), &Claims{Subject: "u1", Tier: "patron"}))

	id := Resolve(r, 3)
	require.NotNil(t, id.Authenticated)
	assert.Equal(t, "u1", id.Authenticated.SubjectID)
	assert.EqualValues(t, "patron", id.Authenticated.Tier)
	assert.Equal(t, 3, id.Authenticated.SearchCount)
}

func TestResolve_AnonymousValidHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	r.Header.Set("X-User-ID", "sess_abc123")

	id := Resolve(r, 0)
	require.NotNil(t, id.Anonymous)
	assert.Equal(t, "sess_abc123", id.Anonymous.OpaqueID)
}

func TestResolve_AnonymousInvalidHeaderTreatedAsMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	r.Header.Set("X-User-ID", "not-a-valid-id")

	id := Resolve(r, 0)
	require.NotNil(t, id.Anonymous)
	assert.Empty(t, id.Anonymous.OpaqueID)
}

func TestOptionalMiddleware_NoHeaderPassesThrough(t *testing.T) {
	called := false
	mw := OptionalMiddleware(&fakeValidator{})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, ClaimsFromContext(r.Context()))
	}))
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.True(t, called)
}

func TestOptionalMiddleware_ValidBearerSetsClaims(t *testing.T) {
	validator := &fakeValidator{claims: &Claims{Subject: "u9"}}
	mw := OptionalMiddleware(validator)
	var gotClaims *Claims
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.NotNil(t, gotClaims)
	assert.Equal(t, "u9", gotClaims.Subject)
}

func TestOptionalMiddleware_InvalidTokenRejected(t *testing.T) {
	validator := &fakeValidator{err: assert.AnError}
	mw := OptionalMiddleware(validator)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))
	r := httptest.NewRequest(http.MethodPost, "/search", nil)
	r.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
