// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the kbagent service.
//
// This file contains the persisted entities (KnowledgeBase, Conversation,
// Message) and the lightweight in-memory views derived from them. For HTTP
// request/response types, see requests.go.
package datatypes

import (
	"time"
)

// =============================================================================
// Roles and Statuses
// =============================================================================

// Message roles. Any other value is rejected by the conversation manager.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation statuses. Deleted is a soft-delete marker; rows are never
// physically removed.
const (
	ConversationActive  = "active"
	ConversationDeleted = "deleted"
)

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ValidConversationStatus reports whether status is a known conversation status.
func ValidConversationStatus(status string) bool {
	return status == ConversationActive || status == ConversationDeleted
}

// =============================================================================
// Persisted Entities
// =============================================================================

// KnowledgeBase identifies a named collection of indexed passages searchable
// by semantic similarity. Indexing and embedding happen outside this service;
// the registry only anchors conversations to an existing knowledge base.
type KnowledgeBase struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation is the root entity of a chat thread.
//
// # Description
//
// A Conversation is created against an existing knowledge base and owns an
// append-only sequence of Messages. UpdatedAt is refreshed whenever a child
// message is appended, which drives the most-recently-active ordering of
// conversation lists.
//
// # Thread Safety
//
// Conversation is a value type; treat instances as immutable snapshots.
type Conversation struct {
	// ID is an opaque unique identifier (UUID v4), immutable after creation.
	ID string `json:"id"`

	// KnowledgeBaseID references the knowledge base this conversation is
	// grounded in. Validated to exist at creation time.
	KnowledgeBaseID string `json:"kb_id"`

	// Title is a human-readable label. Defaults to a timestamped string.
	Title string `json:"title"`

	// Status is "active" or "deleted" (soft delete).
	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single persisted conversation turn.
//
// Messages are append-only: they are never mutated or deleted individually.
// CreatedAt is the canonical ordering key for history reads.
type Message struct {
	// ID is an opaque unique identifier (UUID v4), immutable after creation.
	ID string `json:"id"`

	// ConversationID references the owning conversation.
	ConversationID string `json:"conversation_id"`

	// Role is one of RoleUser, RoleAssistant, RoleSystem.
	Role string `json:"role"`

	// Content is the message text. Length is unbounded at this layer.
	Content string `json:"content"`

	// Metadata holds an optional structured payload serialized to JSON
	// (e.g. retrieval sources, processing time). Nil when absent or when
	// serialization failed at append time.
	Metadata *string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// Ephemeral Views
// =============================================================================

// MessageView is the lightweight message representation held in the context
// cache and handed to generation strategies. Metadata is the decoded form of
// Message.Metadata; nil when absent or undecodable.
type MessageView struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Passage is a knowledge-base excerpt returned by the retriever, ranked by
// relevance. Passages are ephemeral: they are consumed for prompt assembly
// and recorded as assistant-message source metadata, never persisted as
// entities themselves.
type Passage struct {
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}
