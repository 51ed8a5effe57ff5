// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation implements the conversation/context management core of
// the kbagent service.
//
// # Description
//
// The Manager in this package owns conversation lifecycle, durable message
// history, a per-instance context cache, retrieval-augmented prompt
// construction, and response generation orchestration. The persistent store,
// the knowledge retriever, and the LLM are injected collaborators consumed at
// their interface boundary; the Manager performs no retries, timeouts, or
// fallback generation on their behalf.
//
// # Thread Safety
//
// Manager is safe for concurrent use. Concurrent requests against the same
// conversation race on the context cache with last-write-wins semantics; the
// persistent store remains authoritative (see ContextCache).
package conversation

import (
	"context"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// =============================================================================
// Persistent Store Contract
// =============================================================================

// ListFilter selects and paginates conversations.
//
// KnowledgeBaseID and Status are ignored when empty. Skip/Limit paginate the
// filtered, most-recently-updated-first result; the returned total reflects
// the filtered count before pagination.
type ListFilter struct {
	KnowledgeBaseID string
	Status          string
	Skip            int
	Limit           int
}

// Store is the persistence contract the Manager depends on.
//
// # Description
//
// Implementations must commit each mutating call in its own transaction;
// there is no cross-call transaction spanning multiple Manager operations.
// Lookup methods return (nil, nil) on a miss so the Manager can distinguish
// absence from failure.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// KnowledgeBaseExists reports whether a knowledge base is registered.
	KnowledgeBaseExists(ctx context.Context, id string) (bool, error)

	// CreateConversation persists a new conversation row.
	CreateConversation(ctx context.Context, conv *datatypes.Conversation) error

	// GetConversation returns the conversation or (nil, nil) when unknown.
	GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error)

	// UpdateConversation applies the non-nil fields and returns the updated
	// conversation, or (nil, nil) when the id is unknown.
	UpdateConversation(ctx context.Context, id string, title, status *string) (*datatypes.Conversation, error)

	// ListConversations returns one page of conversations ordered by
	// updated_at descending, plus the total filtered count.
	ListConversations(ctx context.Context, filter ListFilter) ([]datatypes.Conversation, int, error)

	// CreateMessage persists a message and refreshes the owning
	// conversation's updated_at in the same transaction.
	CreateMessage(ctx context.Context, msg *datatypes.Message) error

	// ListMessages returns the most recent limit messages of a conversation
	// ordered oldest to newest.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]datatypes.Message, error)
}

// =============================================================================
// Retrieval Contract
// =============================================================================

// KnowledgeRetriever searches a knowledge base for passages relevant to a
// query.
//
// # Description
//
// Returns passages ordered by descending relevance. An empty slice means no
// matches; a retrieval failure must surface as an error, not as a silent
// empty result. The Manager propagates retriever errors to its caller
// unrecovered.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type KnowledgeRetriever interface {
	Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]datatypes.Passage, error)
}

// =============================================================================
// Generation Strategy Contract
// =============================================================================

// StrategyRequest is the full context handed to a generation strategy.
type StrategyRequest struct {
	KnowledgeBaseID string
	ConversationID  string
	UserMessage     string

	// Context is the recent message history, oldest to newest.
	Context []datatypes.MessageView

	// Passages is the retriever output, most relevant first.
	Passages []datatypes.Passage
}

// StrategyResult is a strategy's answer plus optional source attribution.
// When Sources is nil the Manager attaches no provenance beyond what the
// strategy chose to return.
type StrategyResult struct {
	Answer  string
	Sources []datatypes.Passage
}

// GenerationStrategy produces an assistant answer from conversation context
// and retrieved passages.
//
// # Description
//
// A strategy may be injected at Manager construction or per
// GenerateResponse call; when absent the Manager falls back to the built-in
// SimpleStrategy. Errors propagate to the Manager's caller unrecovered.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type GenerationStrategy interface {
	Generate(ctx context.Context, req StrategyRequest) (*StrategyResult, error)
}
