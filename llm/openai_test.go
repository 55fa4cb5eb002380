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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOpenAIClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		resp := openAIChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message openAIChatMessage `json:"message"`
		}{Message: openAIChatMessage{Role: "assistant", Content: "hello there"}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestOpenAIClient_ChatBackpressureRetriesOnce(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := openAIChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message openAIChatMessage `json:"message"`
		}{Message: openAIChatMessage{Role: "assistant", Content: "ok"}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, calls)
}

func TestOpenAIClient_ChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"hel", "lo"} {
			chunk := openAIChatStreamChunk{}
			chunk.Choices = append(chunk.Choices, struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			}{Delta: struct {
				Content string `json:"content"`
			}{Content: tok}})
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	stream, err := c.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var text string
	done := false
	for chunk := range stream {
		require.NoError(t, chunk.Error)
		text += chunk.Text
		if chunk.Done {
			done = true
		}
	}
	assert.Equal(t, "hello", text)
	assert.True(t, done)
}
