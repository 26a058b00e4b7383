// Copyright 2025 Poiesic Systems
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


package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/cartograph/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Tagger implements ai.Tagger using OpenAI-compatible chat APIs.
type Tagger struct {
	client  llms.Model
	maxTags int
	logger  *slog.Logger
}

// tagResponse matches the JSON structure the model is prompted to emit.
type tagResponse struct {
	Tags []string `json:"tags"`
}

// newTagger is an internal constructor that returns the concrete type.
func newTagger(config *ai.Config) (*Tagger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken("none"),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Tagger{
		client:  client,
		maxTags: config.MaxTags,
		logger:  slog.Default().With("component", "openai-tagger"),
	}, nil
}

// NewTagger creates a new LLM-backed tagger using the provided configuration.
//
// Returns ai.Tagger interface to enforce abstraction.
func NewTagger(config *ai.Config) (ai.Tagger, error) {
	return newTagger(config)
}

// TagMessage extracts topical tags from one message using an LLM.
func (t *Tagger) TagMessage(ctx context.Context, text string) ([]string, error) {
	systemPrompt := fmt.Sprintf(taggingPromptTemplate, taggingResponseSchema, t.maxTags)
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}

	// Up to 3 attempts in case of malformed JSON.
	var result tagResponse
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := t.client.GenerateContent(ctx, content,
			llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			t.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			t.logger.Debug("no choices returned from model")
			return []string{}, nil
		}

		responseText := stripFences(response.Choices[0].Content)
		responseText = repairJSON(responseText)

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			t.logger.Warn("error parsing tagger response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		t.logger.Error("failed to parse tagger response after retries", "err", lastErr)
		return nil, lastErr
	}

	// Normalize, dedupe, cap. Order is preserved (model lists most
	// relevant first).
	seen := make(map[string]bool, len(result.Tags))
	tags := make([]string, 0, t.maxTags)
	for _, raw := range result.Tags {
		tag := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == t.maxTags {
			break
		}
	}

	t.logger.Debug("tagged message", "raw", len(result.Tags), "kept", len(tags))
	return tags, nil
}
