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

// Package tokens counts tokens the way the target model's own tokenizer
// would, so a prompt can be budgeted by actual token count instead of a
// fixed character cap.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens for one encoding, cached per model.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*tiktoken.Tiktoken)
)

// NewCounter resolves the encoding for model, falling back to cl100k_base
// (GPT-4/3.5 family) for models tiktoken doesn't recognize by name — every
// provider this service talks to (OpenAI, Anthropic, Gemini, Ollama) tokenizes
// close enough to that encoding for budgeting purposes, which only needs an
// estimate, not an exact provider-side count.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	enc, ok := cache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	cache[model] = enc
	cacheMu.Unlock()
	return &Counter{encoding: enc}, nil
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return len(text) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// FitWithinLimit selects the most recent entries from texts (in
// oldest-to-newest order) that fit within maxTokens total, dropping the
// oldest ones first when the budget is exceeded.
func (c *Counter) FitWithinLimit(texts []string, maxTokens int) []string {
	if len(texts) == 0 || maxTokens <= 0 {
		return nil
	}

	fitted := make([]string, 0, len(texts))
	total := 0
	for i := len(texts) - 1; i >= 0; i-- {
		n := c.Count(texts[i])
		if total+n > maxTokens {
			break
		}
		fitted = append([]string{texts[i]}, fitted...)
		total += n
	}
	return fitted
}
