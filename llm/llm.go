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

// Package llm provides the single-shot and streaming language model calls
// the planner and analyzer issue: the planner asks for one JSON object, the
// analyzer asks for one JSON object per passage batch, and the assembler
// asks for one token stream for the introduction. None of them ever need
// tool calling, so this adapter is deliberately narrower than a general
// agent-framework LLM client.
package llm

import "context"

// Message is one turn in a conversation sent to a model.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// StreamChunk is one piece of a streaming response.
type StreamChunk struct {
	Text  string
	Done  bool
	Error error
}

// Client issues buffered and streaming completions against a single model.
type Client interface {
	// Chat returns the complete response text for messages.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream streams the response for messages token-by-token. The
	// channel is closed after a chunk with Done==true or Error!=nil.
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// Model returns the model name in use.
	Model() string

	// Close releases any held resources.
	Close() error
}
