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

package apierrors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackpressureError_UnwrapsToSentinel(t *testing.T) {
	err := NewBackpressureError(30 * time.Second)
	assert.True(t, errors.Is(err, ErrLLMBackpressure))
	assert.Contains(t, err.Error(), "retry after")
}

func TestBackpressureError_ZeroRetryAfterOmitsHint(t *testing.T) {
	err := NewBackpressureError(0)
	assert.True(t, errors.Is(err, ErrLLMBackpressure))
	assert.Equal(t, ErrLLMBackpressure.Error(), err.Error())
}

func TestQuotaError_UnwrapsToSentinel(t *testing.T) {
	err := NewQuotaError("limit_exceeded")
	assert.True(t, errors.Is(err, ErrQuotaDenied))
	assert.Contains(t, err.Error(), "limit_exceeded")
}
