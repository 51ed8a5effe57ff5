// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: HTTP request and response types for the kbagent API.
//
// Request types carry go-playground/validator tags and a Validate() method.
// Handlers bind JSON, call Validate, and translate manager errors to HTTP
// status codes; no business rules live here.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message body
	// accepted over HTTP. Checked as byte length, not rune count, so large
	// payloads cannot bypass the limit with multibyte characters.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxListLimit caps the page size of list endpoints.
	MaxListLimit = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for API request types.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Knowledge Base Requests
// =============================================================================

// CreateKnowledgeBaseRequest registers a knowledge base so conversations can
// reference it. Passage indexing happens outside this service.
type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=256"`
	Description string `json:"description" validate:"max=4096"`
}

// Validate checks the request against its validation tags.
func (r *CreateKnowledgeBaseRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Conversation Requests
// =============================================================================

// CreateConversationRequest opens a new conversation against an existing
// knowledge base. Title is optional; the manager synthesizes a timestamped
// default when it is empty.
type CreateConversationRequest struct {
	KnowledgeBaseID string `json:"kb_id" validate:"required"`
	Title           string `json:"title" validate:"max=512"`
}

// Validate checks the request against its validation tags.
func (r *CreateConversationRequest) Validate() error {
	return requestValidate.Struct(r)
}

// UpdateConversationRequest applies a partial update. Nil fields are left
// unchanged; the zero-value distinction matters, so pointers are used.
type UpdateConversationRequest struct {
	Title  *string `json:"title" validate:"omitempty,max=512"`
	Status *string `json:"status" validate:"omitempty,oneof=active deleted"`
}

// Validate checks the request against its validation tags.
func (r *UpdateConversationRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Message Requests
// =============================================================================

// AddMessageRequest appends a message to a conversation without triggering
// generation. Used by transports that manage their own assistant turns.
type AddMessageRequest struct {
	Role     string         `json:"role" validate:"required,oneof=user assistant system"`
	Content  string         `json:"content" validate:"required,maxbytes"`
	Metadata map[string]any `json:"metadata"`
}

// Validate checks the request against its validation tags.
func (r *AddMessageRequest) Validate() error {
	return requestValidate.Struct(r)
}

// GenerateRequest asks the service to answer a user message within a
// conversation, grounded in the conversation's knowledge base.
type GenerateRequest struct {
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *GenerateRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Responses
// =============================================================================

// ConversationListResponse is the paginated result of a conversation list.
// Total is the filtered count before pagination was applied.
type ConversationListResponse struct {
	Items []Conversation `json:"items"`
	Total int            `json:"total"`
}

// GenerateResponse carries the persisted assistant message together with the
// retrieval provenance and the wall-clock processing time in seconds.
type GenerateResponse struct {
	Message        Message   `json:"message"`
	Sources        []Passage `json:"sources"`
	ProcessingTime float64   `json:"processing_time"`
}
