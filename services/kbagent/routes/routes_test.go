// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
	"github.com/AleutianAI/AleutianKB/services/kbagent/store"
)

// stubRetriever returns one canned passage for every search.
type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, _, _ string, _ int) ([]datatypes.Passage, error) {
	return []datatypes.Passage{{Content: "X is a constant", RelevanceScore: 0.9}}, nil
}

// stubStrategy answers without an LLM so HTTP tests stay hermetic.
type stubStrategy struct{}

func (stubStrategy) Generate(_ context.Context, req conversation.StrategyRequest) (*conversation.StrategyResult, error) {
	return &conversation.StrategyResult{
		Answer:  "answer to: " + req.UserMessage,
		Sources: req.Passages,
	}, nil
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mgr := conversation.NewManager(s, stubRetriever{}, nil,
		conversation.WithStrategy(stubStrategy{}))

	router := gin.New()
	SetupRoutes(router, mgr, s)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createKB(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/knowledge-bases",
		gin.H{"name": "docs", "description": "product docs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["id"].(string)
}

func createConversation(t *testing.T, router *gin.Engine, kbID string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/conversations",
		gin.H{"kb_id": kbID, "title": "test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["id"].(string)
}

// TestHealth verifies the liveness endpoint.
func TestHealth(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

// TestKnowledgeBaseEndpoints covers registration, lookup, and validation.
func TestKnowledgeBaseEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	kbID := createKB(t, router)

	rec := doJSON(t, router, http.MethodGet, "/v1/knowledge-bases/"+kbID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "docs", decodeBody(t, rec)["name"])

	rec = doJSON(t, router, http.MethodGet, "/v1/knowledge-bases/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing name fails validation.
	rec = doJSON(t, router, http.MethodPost, "/v1/knowledge-bases", gin.H{"description": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/knowledge-bases", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	assert.Len(t, items, 1)
}

// TestConversationEndpoints covers the lifecycle surface and its error
// mapping.
func TestConversationEndpoints(t *testing.T) {
	router := setupTestRouter(t)
	kbID := createKB(t, router)

	// Unknown knowledge base maps to 404.
	rec := doJSON(t, router, http.MethodPost, "/v1/conversations", gin.H{"kb_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	convID := createConversation(t, router, kbID)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+convID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, kbID, decodeBody(t, rec)["kb_id"])

	rec = doJSON(t, router, http.MethodPatch, "/v1/conversations/"+convID, gin.H{"title": "renamed"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", decodeBody(t, rec)["title"])

	// Unknown status value fails request validation.
	rec = doJSON(t, router, http.MethodPatch, "/v1/conversations/"+convID, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations?kb_id="+kbID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total"])

	rec = doJSON(t, router, http.MethodDelete, "/v1/conversations/"+convID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Soft delete: the conversation is still readable, just flagged.
	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+convID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, datatypes.ConversationDeleted, decodeBody(t, rec)["status"])

	rec = doJSON(t, router, http.MethodDelete, "/v1/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestMessageEndpoints covers append, history, and context reads.
func TestMessageEndpoints(t *testing.T) {
	router := setupTestRouter(t)
	kbID := createKB(t, router)
	convID := createConversation(t, router, kbID)

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/messages",
		gin.H{"role": "user", "content": "hello"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user", decodeBody(t, rec)["role"])

	// Role outside the accepted set fails validation.
	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/messages",
		gin.H{"role": "moderator", "content": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Oversized content is rejected before reaching the manager.
	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/messages",
		gin.H{"role": "user", "content": strings.Repeat("x", datatypes.MaxMessageContentBytes+1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/missing/messages",
		gin.H{"role": "user", "content": "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+convID+"/messages", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"].([]any), 1)

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+convID+"/context", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"].([]any), 1)
}

// TestGenerateEndpoint covers the full generation flow over HTTP with a
// stubbed strategy.
func TestGenerateEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	kbID := createKB(t, router)
	convID := createConversation(t, router, kbID)

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/generate",
		gin.H{"message": "What is X?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	message := body["message"].(map[string]any)
	assert.Equal(t, "assistant", message["role"])
	assert.Equal(t, "answer to: What is X?", message["content"])
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "X is a constant", sources[0].(map[string]any)["content"])
	assert.Contains(t, body, "processing_time")

	// Both turns landed in history.
	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+convID+"/messages", nil)
	assert.Len(t, decodeBody(t, rec)["items"].([]any), 2)

	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/missing/generate",
		gin.H{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Empty message fails validation.
	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/generate",
		gin.H{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
