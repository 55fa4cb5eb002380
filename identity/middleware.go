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
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/kadirpekel/scholarsearch/domain"
)

// anonymousIDPattern matches the X-User-ID header contract (spec.md §6):
// a client-generated opaque id prefixed "user_" or "sess_".
var anonymousIDPattern = regexp.MustCompile(`^(user_|sess_)[a-f0-9-]+$`)

// OptionalMiddleware validates a bearer token if present, storing its Claims
// in the request context; absent or malformed-but-missing auth is not an
// error since every search route accepts anonymous callers. An invalid
// (present but unverifiable) token is rejected with 401.
func OptionalMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := extractToken(authHeader)
			if tokenString == "" {
				writeAuthError(w, "invalid Authorization format, expected: Bearer <token>", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				writeAuthError(w, fmt.Sprintf("invalid token: %s", err.Error()), http.StatusUnauthorized)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

func writeAuthError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// ValidAnonymousID reports whether id matches the X-User-ID contract.
func ValidAnonymousID(id string) bool {
	return anonymousIDPattern.MatchString(id)
}

// TierResolver maps a validated tier claim to a domain.Tier, defaulting to
// TierVerified for an unrecognized or absent claim (every authenticated
// caller that passes JWT validation is at least a verified user).
func TierResolver(tierClaim string) domain.Tier {
	switch domain.Tier(tierClaim) {
	case domain.TierBanned, domain.TierVerified, domain.TierApproved,
		domain.TierPatron, domain.TierInstitutional, domain.TierAdmin:
		return domain.Tier(tierClaim)
	default:
		return domain.TierVerified
	}
}

// Resolve builds the domain.Identity for one request: an authenticated
// identity when Claims are present in the context (set by
// OptionalMiddleware), otherwise an anonymous identity from the X-User-ID
// header (validated against ValidAnonymousID; an invalid header value is
// treated the same as a missing one) and the User-Agent header.
//
// searchCount is supplied by the caller (typically a quota.Gate lookup) so
// this package stays free of a persistence dependency.
func Resolve(r *http.Request, searchCount int) domain.Identity {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return domain.Identity{
			Authenticated: &domain.AuthenticatedIdentity{
				SubjectID:   claims.Subject,
				Tier:        TierResolver(claims.Tier),
				SearchCount: searchCount,
			},
		}
	}

	opaqueID := r.Header.Get("X-User-ID")
	if opaqueID != "" && !ValidAnonymousID(opaqueID) {
		opaqueID = ""
	}
	return domain.Identity{
		Anonymous: &domain.AnonymousIdentity{
			OpaqueID:    opaqueID,
			UserAgent:   r.Header.Get("User-Agent"),
			SearchCount: searchCount,
		},
	}
}
