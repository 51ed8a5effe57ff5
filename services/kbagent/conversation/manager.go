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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
	"github.com/AleutianAI/AleutianKB/services/kbagent/observability"
	"github.com/AleutianAI/AleutianKB/services/llm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// tracer is the OpenTelemetry tracer for conversation manager operations.
var tracer = otel.Tracer("aleutian.kbagent.conversation")

// Default limits for history, context, and retrieval.
const (
	// DefaultHistoryLimit caps GetConversationHistory when no limit is given.
	DefaultHistoryLimit = 20

	// DefaultContextLimit caps GetConversationContext when no limit is given.
	DefaultContextLimit = 10

	// DefaultRetrievalTopK is how many passages GenerateResponse requests
	// from the knowledge retriever.
	DefaultRetrievalTopK = 5

	// DefaultListLimit is the page size of ListConversations when the caller
	// supplies none.
	DefaultListLimit = 10
)

// =============================================================================
// Manager
// =============================================================================

// Manager orchestrates conversation CRUD, message append, context retrieval,
// and response generation.
//
// # Description
//
// Manager composes the persistent store (authoritative), a per-instance
// context cache (read-through/write-through optimization), the knowledge
// retriever, and a generation strategy. All collaborators are injected at
// construction; nothing heavyweight is constructed implicitly inside the
// core, so multiple independent Managers can coexist in tests.
//
// Each mutating operation commits its own store transaction. A crash between
// the user-message append and the assistant-message append of
// GenerateResponse leaves a consistent "answer pending" conversation; the
// user's input is durable before any unrecoverable work begins.
//
// # Thread Safety
//
// Safe for concurrent use. See ContextCache for the consistency model of
// concurrent requests against the same conversation.
//
// # Usage
//
//	mgr := conversation.NewManager(store, retriever, llmClient)
//	result, err := mgr.GenerateResponse(ctx, convID, "What is X?", nil)
type Manager struct {
	store     Store
	retriever KnowledgeRetriever
	strategy  GenerationStrategy
	cache     *ContextCache
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithStrategy replaces the built-in simple strategy as the Manager's
// default. A per-call strategy passed to GenerateResponse still wins.
func WithStrategy(strategy GenerationStrategy) Option {
	return func(m *Manager) {
		m.strategy = strategy
	}
}

// NewManager creates a Manager around the given collaborators.
//
// # Inputs
//
//   - store: Persistent store for conversations and messages. Must not be nil.
//   - retriever: Knowledge base searcher. Must not be nil.
//   - llmClient: Backend for the built-in simple strategy. May be nil only
//     when WithStrategy supplies a replacement.
//   - opts: Optional overrides.
func NewManager(store Store, retriever KnowledgeRetriever, llmClient llm.LLMClient, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		retriever: retriever,
		cache:     NewContextCache(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.strategy == nil {
		m.strategy = NewSimpleStrategy(llmClient)
	}
	return m
}

// =============================================================================
// Lifecycle Operations
// =============================================================================

// CreateConversation opens a new conversation against an existing knowledge
// base.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - knowledgeBaseID: Must resolve to a registered knowledge base.
//   - title: Optional label; empty synthesizes "Conversation <timestamp>".
//
// # Outputs
//
//   - *datatypes.Conversation: The persisted conversation, status active.
//   - error: NotFoundError when the knowledge base is unknown.
func (m *Manager) CreateConversation(ctx context.Context, knowledgeBaseID, title string) (*datatypes.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Manager.CreateConversation")
	defer span.End()
	span.SetAttributes(attribute.String("kb.id", knowledgeBaseID))

	exists, err := m.store.KnowledgeBaseExists(ctx, knowledgeBaseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kb lookup failed")
		return nil, fmt.Errorf("knowledge base lookup failed: %w", err)
	}
	if !exists {
		slog.Error("Knowledge base not found", "kbId", knowledgeBaseID)
		observability.RecordOperation("create_conversation", "error")
		return nil, &NotFoundError{Resource: "knowledge base", ID: knowledgeBaseID}
	}

	if title == "" {
		title = "Conversation " + time.Now().Format("2006-01-02 15:04:05")
	}

	now := time.Now().UTC()
	conv := &datatypes.Conversation{
		ID:              uuid.New().String(),
		KnowledgeBaseID: knowledgeBaseID,
		Title:           title,
		Status:          datatypes.ConversationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.store.CreateConversation(ctx, conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		observability.RecordOperation("create_conversation", "error")
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	slog.Info("Created conversation", "conversationId", conv.ID, "kbId", knowledgeBaseID)
	observability.RecordOperation("create_conversation", "success")
	return conv, nil
}

// GetConversation is a pure lookup: it returns (nil, nil) when the id is
// unknown rather than an error.
func (m *Manager) GetConversation(ctx context.Context, conversationID string) (*datatypes.Conversation, error) {
	return m.store.GetConversation(ctx, conversationID)
}

// UpdateConversation applies the supplied fields only; nil fields are left
// unchanged.
//
// # Outputs
//
//   - *datatypes.Conversation: The updated conversation, or nil when the id
//     is unknown. Absence is reported via the nil result, not an error;
//     this asymmetry with AddMessage/GetConversationHistory is deliberate
//     and mirrors the callers that depend on it.
//   - error: ValidationError on an unknown status value; store errors
//     otherwise.
func (m *Manager) UpdateConversation(ctx context.Context, conversationID string, title, status *string) (*datatypes.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Manager.UpdateConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if status != nil && !datatypes.ValidConversationStatus(*status) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *status)}
	}

	conv, err := m.store.UpdateConversation(ctx, conversationID, title, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	if conv == nil {
		slog.Error("Conversation not found", "conversationId", conversationID)
		return nil, nil
	}
	return conv, nil
}

// DeleteConversation soft-deletes a conversation and evicts its context
// cache entry.
//
// # Outputs
//
//   - bool: false when the conversation does not exist (no error raised).
//   - error: Non-nil only on store failure.
func (m *Manager) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Manager.DeleteConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	deleted := datatypes.ConversationDeleted
	conv, err := m.store.UpdateConversation(ctx, conversationID, nil, &deleted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		observability.RecordOperation("delete_conversation", "error")
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	if conv == nil {
		slog.Error("Conversation not found", "conversationId", conversationID)
		return false, nil
	}

	m.cache.Evict(conversationID)
	slog.Info("Soft-deleted conversation", "conversationId", conversationID)
	observability.RecordOperation("delete_conversation", "success")
	return true, nil
}

// ListConversations returns one page of conversations ordered most recently
// updated first, plus the total filtered count before pagination.
func (m *Manager) ListConversations(ctx context.Context, filter ListFilter) (*datatypes.ConversationListResponse, error) {
	ctx, span := tracer.Start(ctx, "Manager.ListConversations")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}

	items, total, err := m.store.ListConversations(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	span.SetAttributes(attribute.Int("conversations.total", total))
	return &datatypes.ConversationListResponse{Items: items, Total: total}, nil
}

// =============================================================================
// Message and Context Operations
// =============================================================================

// AddMessage appends a message to a conversation (history is append-only).
//
// # Description
//
// The message is committed to the store first. If the conversation already
// has a context cache entry, the new message view is appended to it
// (write-through); a conversation with no cache hit yet stays uncached.
// Metadata that fails to serialize is logged and treated as absent; the
// append itself never aborts on a metadata problem.
//
// # Outputs
//
//   - *datatypes.Message: The persisted message.
//   - error: NotFoundError for an unknown conversation, ValidationError for
//     a role outside {user, assistant, system}.
func (m *Manager) AddMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*datatypes.Message, error) {
	ctx, span := tracer.Start(ctx, "Manager.AddMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("message.role", role),
	)

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation lookup failed")
		return nil, fmt.Errorf("conversation lookup failed: %w", err)
	}
	if conv == nil {
		slog.Error("Conversation not found", "conversationId", conversationID)
		observability.RecordOperation("add_message", "error")
		return nil, &NotFoundError{Resource: "conversation", ID: conversationID}
	}

	if !datatypes.ValidRole(role) {
		slog.Error("Invalid message role", "role", role)
		observability.RecordOperation("add_message", "error")
		return nil, &ValidationError{
			Field:  "role",
			Reason: fmt.Sprintf("%q is not one of user, assistant, system", role),
		}
	}

	metadataJSON, viewMetadata := encodeMetadata(metadata)

	msg := &datatypes.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadataJSON,
		CreatedAt:      time.Now().UTC(),
	}

	if err := m.store.CreateMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message insert failed")
		observability.RecordOperation("add_message", "error")
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// Write-through: only conversations that already earned a cache entry
	// get the append; cold conversations load from the store on next read.
	m.cache.Append(conversationID, datatypes.MessageView{
		Role:     role,
		Content:  content,
		ID:       msg.ID,
		Metadata: viewMetadata,
	})

	slog.Debug("Appended message", "conversationId", conversationID, "role", role, "length", len(content))
	observability.RecordOperation("add_message", "success")
	return msg, nil
}

// GetConversationHistory returns the most recent limit messages ordered
// oldest to newest, always from the persistent store (authoritative read,
// bypasses the cache).
//
// # Outputs
//
//   - []datatypes.Message: The newest limit messages (default 20),
//     oldest-to-newest.
//   - error: NotFoundError for an unknown conversation.
func (m *Manager) GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]datatypes.Message, error) {
	ctx, span := tracer.Start(ctx, "Manager.GetConversationHistory")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation lookup failed")
		return nil, fmt.Errorf("conversation lookup failed: %w", err)
	}
	if conv == nil {
		slog.Error("Conversation not found", "conversationId", conversationID)
		return nil, &NotFoundError{Resource: "conversation", ID: conversationID}
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	messages, err := m.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message query failed")
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	return messages, nil
}

// GetConversationContext returns the recent message views used as
// generation grounding.
//
// # Description
//
// Cache-first: an existing entry answers directly with its most recent
// messageLimit views, no store access. On a miss the history is loaded from
// the store, converted to views (metadata that fails to decode is treated
// as absent), cached, and returned. This is a single-process, best-effort
// consistency model; see ContextCache.
func (m *Manager) GetConversationContext(ctx context.Context, conversationID string, messageLimit int) ([]datatypes.MessageView, error) {
	ctx, span := tracer.Start(ctx, "Manager.GetConversationContext")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if messageLimit <= 0 {
		messageLimit = DefaultContextLimit
	}

	if entry, ok := m.cache.Get(conversationID); ok {
		observability.RecordCacheLookup(true)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return tail(entry, messageLimit), nil
	}
	observability.RecordCacheLookup(false)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	messages, err := m.GetConversationHistory(ctx, conversationID, messageLimit)
	if err != nil {
		return nil, err
	}

	views := make([]datatypes.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, datatypes.MessageView{
			Role:     msg.Role,
			Content:  msg.Content,
			ID:       msg.ID,
			Metadata: decodeMetadata(msg.ID, msg.Metadata),
		})
	}

	m.cache.Put(conversationID, views)
	return views, nil
}

// =============================================================================
// Response Generation
// =============================================================================

// GenerationResult is the outcome of GenerateResponse.
type GenerationResult struct {
	// Message is the persisted assistant message.
	Message *datatypes.Message

	// Sources is the retrieval provenance attached to the message.
	Sources []datatypes.Passage

	// ProcessingTime is the elapsed wall-clock time in seconds.
	ProcessingTime float64
}

// GenerateResponse answers a user message within a conversation, grounded in
// its knowledge base.
//
// # Description
//
// The steps run linearly and fail fast:
//
//  1. Resolve the conversation (NotFoundError when missing) before any
//     collaborator is invoked.
//  2. Persist the user message, so a later generation failure cannot lose
//     the user's input.
//  3. Search the knowledge base for the top passages.
//  4. Load the conversation context (cache-first).
//  5. Generate the answer via the per-call strategy, the Manager's default
//     strategy, or the built-in simple strategy.
//  6. Persist the assistant message with {sources, processing_time}
//     metadata and return it.
//
// Retriever and strategy failures propagate unrecovered; no retry or
// fallback happens at this layer. A caller that retries after a generation
// failure will duplicate the user message unless it tracks idempotency
// itself.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing. The Manager imposes no
//     timeout of its own; long LLM calls run as long as ctx allows.
//   - conversationID: Target conversation.
//   - userMessage: The user's question.
//   - strategy: Optional per-call override; nil uses the Manager default.
func (m *Manager) GenerateResponse(ctx context.Context, conversationID, userMessage string, strategy GenerationStrategy) (*GenerationResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "Manager.GenerateResponse")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation lookup failed")
		return nil, fmt.Errorf("conversation lookup failed: %w", err)
	}
	if conv == nil {
		slog.Error("Conversation not found", "conversationId", conversationID)
		observability.RecordOperation("generate", "error")
		return nil, &NotFoundError{Resource: "conversation", ID: conversationID}
	}
	span.SetAttributes(attribute.String("kb.id", conv.KnowledgeBaseID))

	if _, err := m.AddMessage(ctx, conversationID, datatypes.RoleUser, userMessage, nil); err != nil {
		observability.RecordOperation("generate", "error")
		return nil, err
	}

	passages, err := m.retriever.Search(ctx, conv.KnowledgeBaseID, userMessage, DefaultRetrievalTopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		observability.RecordOperation("generate", "error")
		return nil, fmt.Errorf("knowledge retrieval failed: %w", err)
	}
	span.SetAttributes(attribute.Int("passages.count", len(passages)))
	observability.ObservePassagesRetrieved(len(passages))

	contextViews, err := m.GetConversationContext(ctx, conversationID, DefaultContextLimit)
	if err != nil {
		observability.RecordOperation("generate", "error")
		return nil, err
	}

	strat := strategy
	if strat == nil {
		strat = m.strategy
	}
	result, err := strat.Generate(ctx, StrategyRequest{
		KnowledgeBaseID: conv.KnowledgeBaseID,
		ConversationID:  conversationID,
		UserMessage:     userMessage,
		Context:         contextViews,
		Passages:        passages,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		observability.RecordOperation("generate", "error")
		return nil, err
	}

	processingTime := time.Since(start).Seconds()

	metadata := map[string]any{
		"sources":         result.Sources,
		"processing_time": processingTime,
	}
	msg, err := m.AddMessage(ctx, conversationID, datatypes.RoleAssistant, result.Answer, metadata)
	if err != nil {
		observability.RecordOperation("generate", "error")
		return nil, err
	}

	span.SetAttributes(attribute.Int("sources.count", len(result.Sources)))
	slog.Info("Generated response",
		"conversationId", conversationID,
		"sources", len(result.Sources),
		"processingTime", processingTime,
	)
	observability.ObserveGeneration(processingTime)
	observability.RecordOperation("generate", "success")

	return &GenerationResult{
		Message:        msg,
		Sources:        result.Sources,
		ProcessingTime: processingTime,
	}, nil
}

// =============================================================================
// Metadata Codec
// =============================================================================

// encodeMetadata serializes message metadata for storage. A serialization
// failure is logged and treated as absent metadata (both the stored form and
// the cached view), never as a reason to abort the append.
func encodeMetadata(metadata map[string]any) (*string, map[string]any) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		slog.Warn("Failed to serialize message metadata, storing without it", "error", err)
		return nil, nil
	}
	s := string(raw)
	return &s, metadata
}

// decodeMetadata deserializes stored metadata for a message view. A decode
// failure is logged and yields nil, never an error.
func decodeMetadata(messageID string, raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(*raw), &metadata); err != nil {
		slog.Warn("Failed to decode message metadata, treating as absent",
			"messageId", messageID, "error", err)
		return nil
	}
	return metadata
}
