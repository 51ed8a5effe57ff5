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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// TestBuildSimplePrompt_WindowsContextAndPassages verifies the prompt holds
// only the trailing context turns and the top-ranked passages.
func TestBuildSimplePrompt_WindowsContextAndPassages(t *testing.T) {
	contextViews := make([]datatypes.MessageView, 0, 7)
	for i := 0; i < 7; i++ {
		contextViews = append(contextViews, datatypes.MessageView{
			Role:    datatypes.RoleUser,
			Content: fmt.Sprintf("turn-%d", i),
		})
	}
	passages := make([]datatypes.Passage, 0, 5)
	for i := 0; i < 5; i++ {
		passages = append(passages, datatypes.Passage{
			Content:        fmt.Sprintf("passage-%d", i),
			RelevanceScore: 1.0 - float64(i)*0.1,
		})
	}

	prompt := buildSimplePrompt("the question", contextViews, passages)

	// Last 5 turns only.
	assert.NotContains(t, prompt, "turn-0")
	assert.NotContains(t, prompt, "turn-1")
	assert.Contains(t, prompt, "user: turn-2")
	assert.Contains(t, prompt, "user: turn-6")

	// Top 3 passages only.
	assert.Contains(t, prompt, "Passage 1:\npassage-0")
	assert.Contains(t, prompt, "Passage 3:\npassage-2")
	assert.NotContains(t, prompt, "passage-3")
	assert.NotContains(t, prompt, "passage-4")

	assert.Contains(t, prompt, "the question")
	assert.Contains(t, prompt, "does not contain relevant information")
}

// TestBuildSimplePrompt_Empty verifies prompt assembly tolerates a cold
// conversation with no retrieval hits.
func TestBuildSimplePrompt_Empty(t *testing.T) {
	prompt := buildSimplePrompt("hello", nil, nil)

	assert.Contains(t, prompt, "hello")
	assert.Contains(t, prompt, "Conversation history:")
	assert.Contains(t, prompt, "Knowledge base passages:")
}

// TestSimpleStrategy_Generate verifies answers are trimmed and sources are
// capped at the prompt passage count.
func TestSimpleStrategy_Generate(t *testing.T) {
	client := &mockLLM{Response: "\n  the answer \n"}
	strategy := NewSimpleStrategy(client)

	passages := []datatypes.Passage{
		{Content: "p1", RelevanceScore: 0.9},
		{Content: "p2", RelevanceScore: 0.8},
		{Content: "p3", RelevanceScore: 0.7},
		{Content: "p4", RelevanceScore: 0.6},
	}

	result, err := strategy.Generate(context.Background(), StrategyRequest{
		UserMessage: "q",
		Passages:    passages,
	})

	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Answer)
	require.Len(t, result.Sources, 3, "sources should match the prompted passages")
	assert.Equal(t, "p1", result.Sources[0].Content)
	assert.Equal(t, 1, client.Calls)
}

// TestSimpleStrategy_GenerateError verifies LLM failures propagate.
func TestSimpleStrategy_GenerateError(t *testing.T) {
	client := &mockLLM{Err: fmt.Errorf("backend gone")}
	strategy := NewSimpleStrategy(client)

	result, err := strategy.Generate(context.Background(), StrategyRequest{UserMessage: "q"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "backend gone")
}

// TestTopPassages verifies the ranking cutoff at its boundaries.
func TestTopPassages(t *testing.T) {
	passages := []datatypes.Passage{{Content: "a"}, {Content: "b"}}

	assert.Len(t, topPassages(passages, 1), 1)
	assert.Len(t, topPassages(passages, 2), 2)
	assert.Len(t, topPassages(passages, 5), 2)
	assert.Empty(t, topPassages(nil, 3))
}
