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
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// NotFoundError is returned when a referenced conversation or knowledge base
// does not exist.
//
// # Description
//
// Operations whose contract requires an existing parent entity
// (CreateConversation, AddMessage, GetConversationHistory, GenerateResponse)
// return NotFoundError. UpdateConversation and DeleteConversation deliberately
// do NOT: they report a missing conversation via a nil/false result instead.
// Handlers map this error to HTTP 404.
type NotFoundError struct {
	// Resource is the entity kind, e.g. "conversation" or "knowledge base".
	Resource string

	// ID is the identifier that failed to resolve.
	ID string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError is returned when caller-supplied input violates an
// invariant the manager enforces, such as an unknown message role.
// Handlers map this error to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// =============================================================================
// Helpers
// =============================================================================

// IsNotFound reports whether err is (or wraps) a NotFoundError and returns
// the typed error when it is.
//
// # Example
//
//	msg, err := mgr.AddMessage(ctx, convID, role, content, nil)
//	if notFound, ok := conversation.IsNotFound(err); ok {
//	    c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
//	    return
//	}
func IsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

// IsValidation reports whether err is (or wraps) a ValidationError and
// returns the typed error when it is.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
