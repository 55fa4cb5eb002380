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

func TestSplitSystem(t *testing.T) {
	system, msgs := splitSystem([]Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "no emoji"},
	})
	assert.Equal(t, "be terse\nno emoji", system)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}

func TestNewAnthropicClient_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicClient(AnthropicConfig{})
	assert.Error(t, err)
}

func TestAnthropicClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be terse", req.System)

		resp := anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "hi there"}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := c.Chat(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
}

func TestAnthropicClient_ChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		events := []anthropicStreamEvent{
			{Type: "content_block_delta", Delta: &struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{Type: "text_delta", Text: "hel"}},
			{Type: "content_block_delta", Delta: &struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{Type: "text_delta", Text: "lo"}},
			{Type: "message_stop"},
		}
		for _, e := range events {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: server.URL})
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
