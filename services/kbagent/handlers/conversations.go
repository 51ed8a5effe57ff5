// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers for the kbagent API.
//
// Handlers bind and validate request bodies, delegate to the conversation
// manager, and translate its error taxonomy to HTTP status codes:
// NotFoundError maps to 404, ValidationError to 400, everything else to 500.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// writeManagerError maps a conversation manager error to an HTTP response.
func writeManagerError(c *gin.Context, err error) {
	if notFound, ok := conversation.IsNotFound(err); ok {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
		return
	}
	if invalid, ok := conversation.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	slog.Error("Request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// CreateConversation handles POST /v1/conversations.
func CreateConversation(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		conv, err := mgr.CreateConversation(c.Request.Context(), req.KnowledgeBaseID, req.Title)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

// GetConversation handles GET /v1/conversations/:conversationId.
func GetConversation(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		conv, err := mgr.GetConversation(c.Request.Context(), conversationID)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		if conv == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found: " + conversationID})
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// UpdateConversation handles PATCH /v1/conversations/:conversationId.
func UpdateConversation(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		var req datatypes.UpdateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		conv, err := mgr.UpdateConversation(c.Request.Context(), conversationID, req.Title, req.Status)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		if conv == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found: " + conversationID})
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// DeleteConversation handles DELETE /v1/conversations/:conversationId.
func DeleteConversation(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		ok, err := mgr.DeleteConversation(c.Request.Context(), conversationID)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found: " + conversationID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_conversation_id": conversationID})
	}
}

// ListConversations handles GET /v1/conversations.
//
// Query parameters: kb_id, status (default "active"), skip, limit.
func ListConversations(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := conversation.ListFilter{
			KnowledgeBaseID: c.Query("kb_id"),
			Status:          c.DefaultQuery("status", datatypes.ConversationActive),
			Skip:            parseIntQuery(c, "skip", 0),
			Limit:           parseIntQuery(c, "limit", conversation.DefaultListLimit),
		}
		if filter.Limit > datatypes.MaxListLimit {
			filter.Limit = datatypes.MaxListLimit
		}

		resp, err := mgr.ListConversations(c.Request.Context(), filter)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// AddMessage handles POST /v1/conversations/:conversationId/messages.
func AddMessage(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		var req datatypes.AddMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		msg, err := mgr.AddMessage(c.Request.Context(), conversationID, req.Role, req.Content, req.Metadata)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

// GetConversationHistory handles GET /v1/conversations/:conversationId/messages.
func GetConversationHistory(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		limit := parseIntQuery(c, "limit", conversation.DefaultHistoryLimit)
		if limit > datatypes.MaxListLimit {
			limit = datatypes.MaxListLimit
		}

		messages, err := mgr.GetConversationHistory(c.Request.Context(), conversationID, limit)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": messages})
	}
}

// GetConversationContext handles GET /v1/conversations/:conversationId/context.
func GetConversationContext(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		limit := parseIntQuery(c, "limit", conversation.DefaultContextLimit)

		views, err := mgr.GetConversationContext(c.Request.Context(), conversationID, limit)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": views})
	}
}

// Generate handles POST /v1/conversations/:conversationId/generate.
func Generate(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		var req datatypes.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := mgr.GenerateResponse(c.Request.Context(), conversationID, req.Message, nil)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.GenerateResponse{
			Message:        *result.Message,
			Sources:        result.Sources,
			ProcessingTime: result.ProcessingTime,
		})
	}
}

// parseIntQuery reads a non-negative integer query parameter, falling back
// to def on absence or garbage.
func parseIntQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
