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

package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/scholarsearch/domain"
)

func TestBudgetedMemoryLines_KeepsEverythingWithinBudget(t *testing.T) {
	p := New(&fakeClient{})
	entries := []domain.MemoryEntry{
		{Role: domain.RoleUser, Text: "what is justice"},
		{Role: domain.RoleAssistant, Text: "justice is a recurring theme across traditions"},
	}

	lines := p.budgetedMemoryLines(entries)
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "what is justice")
}

func TestBudgetedMemoryLines_DropsOldestWhenOverBudget(t *testing.T) {
	p := New(&fakeClient{})
	entries := make([]domain.MemoryEntry, 0, 50)
	for i := 0; i < 50; i++ {
		entries = append(entries, domain.MemoryEntry{
			Role: domain.RoleUser,
			Text: strings.Repeat("justice mercy forgiveness compassion truth ", 20),
		})
	}

	lines := p.budgetedMemoryLines(entries)
	assert.Less(t, len(lines), len(entries), "an oversized history must be trimmed, not passed through whole")
	assert.NotEmpty(t, lines)
}

func TestBuildPlannerUserPrompt_IncludesMemorySection(t *testing.T) {
	p := New(&fakeClient{})
	req := Request{
		QueryText: "what is justice",
		Memory: []domain.MemoryEntry{
			{Role: domain.RoleUser, Text: "tell me about mercy"},
		},
	}

	prompt := p.buildPlannerUserPrompt(req, nil)
	assert.Contains(t, prompt, "Recent prior turns:")
	assert.Contains(t, prompt, "tell me about mercy")
}
