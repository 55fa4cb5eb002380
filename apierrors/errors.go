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

// Package apierrors defines the sentinel error kinds shared across the
// query-time pipeline, so callers can branch on failure class with
// errors.Is/errors.As instead of string matching.
package apierrors

import (
	"errors"
	"time"
)

var (
	// ErrIndexUnavailable marks a transient retrieval failure; callers retry
	// the single subquery once before degrading.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIndexBadRequest marks a fatal, non-retryable retrieval failure.
	ErrIndexBadRequest = errors.New("index bad request")

	// ErrLLMTimeout marks an LLM call that exceeded its per-call deadline.
	ErrLLMTimeout = errors.New("llm timeout")

	// ErrLLMBackpressure marks a provider rate-limit response; callers may
	// retry once with a small backoff.
	ErrLLMBackpressure = errors.New("llm backpressure")

	// ErrQuotaDenied marks a request rejected by the quota gate.
	ErrQuotaDenied = errors.New("query_limit_exceeded")

	// ErrCacheUnavailable marks a cache store failure; always non-fatal to
	// the caller, the miss/no-op path is taken instead.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrMemoryUnavailable marks a memory store failure; always non-fatal.
	ErrMemoryUnavailable = errors.New("memory unavailable")
)

// QuotaError carries the reason alongside ErrQuotaDenied for surfacing in
// the SSE error event.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string {
	return ErrQuotaDenied.Error() + ": " + e.Reason
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaDenied
}

// NewQuotaError builds a QuotaError with the given reason ("suspended",
// "limit_exceeded", ...).
func NewQuotaError(reason string) *QuotaError {
	return &QuotaError{Reason: reason}
}

// BackpressureError carries the provider's own retry timing alongside
// ErrLLMBackpressure, when the 429 response included one.
type BackpressureError struct {
	RetryAfter time.Duration
}

func (e *BackpressureError) Error() string {
	if e.RetryAfter > 0 {
		return ErrLLMBackpressure.Error() + ": retry after " + e.RetryAfter.String()
	}
	return ErrLLMBackpressure.Error()
}

func (e *BackpressureError) Unwrap() error {
	return ErrLLMBackpressure
}

// NewBackpressureError builds a BackpressureError with the given retry
// delay (zero if the response carried none).
func NewBackpressureError(retryAfter time.Duration) *BackpressureError {
	return &BackpressureError{RetryAfter: retryAfter}
}
