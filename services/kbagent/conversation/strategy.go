// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
	"github.com/AleutianAI/AleutianKB/services/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Prompt assembly limits for the built-in strategy.
const (
	// promptContextTurns is how many trailing context entries go into the
	// prompt.
	promptContextTurns = 5

	// promptPassages is how many top-ranked passages go into the prompt and
	// into the sources metadata.
	promptPassages = 3
)

// simplePromptTemplate is the single-shot prompt for the built-in strategy.
// The final instruction makes the model admit when the knowledge base has
// nothing relevant instead of inventing an answer.
const simplePromptTemplate = `You are an assistant that answers the user's question based on the conversation history and the knowledge base passages below.

Conversation history:
%s

Knowledge base passages:
%s

Answer the user's question using the information above: %s
If the knowledge base does not contain relevant information, say so explicitly.`

// SimpleStrategy is the built-in generation strategy: one prompt assembled
// from recent context and top passages, one LLM call, no reranking or
// multi-step debate.
//
// # Description
//
// The prompt concatenates the last 5 context entries ("role: content"),
// the top 3 passages ("Passage i:\ncontent"), and a fixed instruction
// template embedding the user's question. Sources returned are the same top
// 3 passages. Surrounding whitespace is trimmed from the model output.
//
// # Thread Safety
//
// Safe for concurrent use; all state is the injected LLM client.
type SimpleStrategy struct {
	llmClient llm.LLMClient
}

// Compile-time interface compliance.
var _ GenerationStrategy = (*SimpleStrategy)(nil)

// NewSimpleStrategy creates the built-in strategy around an LLM client.
func NewSimpleStrategy(llmClient llm.LLMClient) *SimpleStrategy {
	return &SimpleStrategy{llmClient: llmClient}
}

// Generate implements GenerationStrategy.
//
// # Outputs
//
//   - *StrategyResult: trimmed answer plus the top passages as sources.
//   - error: Non-nil if the LLM call fails; propagated unrecovered.
func (s *SimpleStrategy) Generate(ctx context.Context, req StrategyRequest) (*StrategyResult, error) {
	ctx, span := tracer.Start(ctx, "SimpleStrategy.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("context.turns", len(req.Context)),
		attribute.Int("passages.count", len(req.Passages)),
	)

	prompt := buildSimplePrompt(req.UserMessage, req.Context, req.Passages)

	answer, err := s.llmClient.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm generate failed")
		return nil, fmt.Errorf("llm generate failed: %w", err)
	}

	return &StrategyResult{
		Answer:  strings.TrimSpace(answer),
		Sources: topPassages(req.Passages, promptPassages),
	}, nil
}

// buildSimplePrompt assembles the single-shot prompt from the trailing
// context entries and the top-ranked passages.
func buildSimplePrompt(userMessage string, contextViews []datatypes.MessageView, passages []datatypes.Passage) string {
	recent := tail(contextViews, promptContextTurns)
	contextLines := make([]string, 0, len(recent))
	for _, view := range recent {
		contextLines = append(contextLines, fmt.Sprintf("%s: %s", view.Role, view.Content))
	}

	top := topPassages(passages, promptPassages)
	passageBlocks := make([]string, 0, len(top))
	for i, p := range top {
		passageBlocks = append(passageBlocks, fmt.Sprintf("Passage %d:\n%s", i+1, p.Content))
	}

	return fmt.Sprintf(simplePromptTemplate,
		strings.Join(contextLines, "\n\n"),
		strings.Join(passageBlocks, "\n\n"),
		userMessage,
	)
}

// topPassages returns the first n passages (retriever output is already
// ordered by descending relevance).
func topPassages(passages []datatypes.Passage, n int) []datatypes.Passage {
	if n >= len(passages) {
		return passages
	}
	return passages[:n]
}
