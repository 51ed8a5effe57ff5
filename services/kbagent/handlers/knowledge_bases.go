// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

// KnowledgeBaseRegistry is the registry surface the knowledge base handlers
// depend on. Satisfied by store.SQLiteStore.
type KnowledgeBaseRegistry interface {
	CreateKnowledgeBase(ctx context.Context, kb *datatypes.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id string) (*datatypes.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]datatypes.KnowledgeBase, error)
}

// CreateKnowledgeBase handles POST /v1/knowledge-bases.
func CreateKnowledgeBase(registry KnowledgeBaseRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateKnowledgeBaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		kb := &datatypes.KnowledgeBase{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Description: req.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := registry.CreateKnowledgeBase(c.Request.Context(), kb); err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusCreated, kb)
	}
}

// GetKnowledgeBase handles GET /v1/knowledge-bases/:kbId.
func GetKnowledgeBase(registry KnowledgeBaseRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		kbID := c.Param("kbId")

		kb, err := registry.GetKnowledgeBase(c.Request.Context(), kbID)
		if err != nil {
			writeManagerError(c, err)
			return
		}
		if kb == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "knowledge base not found: " + kbID})
			return
		}
		c.JSON(http.StatusOK, kb)
	}
}

// ListKnowledgeBases handles GET /v1/knowledge-bases.
func ListKnowledgeBases(registry KnowledgeBaseRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		kbs, err := registry.ListKnowledgeBases(c.Request.Context())
		if err != nil {
			writeManagerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": kbs})
	}
}
