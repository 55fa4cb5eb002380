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
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kadirpekel/scholarsearch/apierrors"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	CallTimeout time.Duration
}

// GeminiClient implements Client against the official genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	callTimeout time.Duration
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini client")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 15 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: callTimeout,
	}, nil
}

// toGeminiContents converts messages into genai contents plus a system
// instruction, since Gemini takes the system prompt out-of-band like
// Anthropic does.
func toGeminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
				Role:  "user",
			}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: m.Content}},
			Role:  role,
		})
	}

	return contents, systemInstruction
}

func (c *GeminiClient) buildConfig(systemInstruction *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	if c.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(c.temperature))
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}
	return cfg
}

// Chat performs a single buffered completion, retrying once on a
// rate-limit response before giving up.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	text, err := c.chatOnce(ctx, messages)
	if err != nil && errors.Is(err, apierrors.ErrLLMBackpressure) {
		text, err = c.chatOnce(ctx, messages)
	}
	return text, err
}

func (c *GeminiClient) chatOnce(ctx context.Context, messages []Message) (string, error) {
	contents, systemInstruction := toGeminiContents(messages)
	config := c.buildConfig(systemInstruction)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if isGeminiBackpressure(err) {
			return "", apierrors.ErrLLMBackpressure
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", apierrors.ErrLLMTimeout, err)
		}
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("received no candidates from Gemini")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}

// ChatStream streams a completion using the SDK's streaming iterator.
func (c *GeminiClient) ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)

	contents, systemInstruction := toGeminiContents(messages)
	config := c.buildConfig(systemInstruction)

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				if isGeminiBackpressure(err) {
					out <- StreamChunk{Error: apierrors.ErrLLMBackpressure}
					return
				}
				if ctx.Err() != nil {
					out <- StreamChunk{Error: fmt.Errorf("%w: %v", apierrors.ErrLLMTimeout, err)}
					return
				}
				out <- StreamChunk{Error: fmt.Errorf("Gemini streaming error: %w", err)}
				return
			}

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					out <- StreamChunk{Text: part.Text}
				}
			}
			if resp.Candidates[0].FinishReason != "" {
				out <- StreamChunk{Done: true}
				return
			}
		}
		out <- StreamChunk{Done: true}
	}()

	return out, nil
}

// isGeminiBackpressure reports whether err represents a rate-limit response.
// The SDK doesn't export a typed rate-limit error, so this matches on the
// status text the transport embeds in the error message.
func isGeminiBackpressure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Close() error { return nil }

var _ Client = (*GeminiClient)(nil)
