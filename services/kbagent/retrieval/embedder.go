// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements knowledge base passage search over Weaviate.
//
// # Description
//
// The retriever embeds the query through the external embedding service and
// runs a nearVector search over the KnowledgePassage class, filtered to the
// conversation's knowledge base. When no Weaviate endpoint is configured the
// service falls back to NoopRetriever and every search returns no passages.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// EmbeddingProvider computes vector embeddings for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// maxEmbedBytes truncates queries before embedding; the embedding service
// rejects oversized inputs.
const maxEmbedBytes = 8192

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// embeddingRequest is the body sent to the embedding service.
type embeddingRequest struct {
	Text string `json:"text"`
}

// embeddingResponse is the embedding service's reply.
type embeddingResponse struct {
	ID        string    `json:"id"`
	Timestamp int       `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

// HTTPEmbedder calls the external embedding service over HTTP.
//
// # Thread Safety
//
// Safe for concurrent use; the shared http.Client pools connections.
type HTTPEmbedder struct {
	serviceURL string
}

// Compile-time interface compliance.
var _ EmbeddingProvider = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedder against the given service URL. An
// empty serviceURL falls back to the EMBEDDING_SERVICE_URL environment
// variable.
func NewHTTPEmbedder(serviceURL string) *HTTPEmbedder {
	if serviceURL == "" {
		serviceURL = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	return &HTTPEmbedder{serviceURL: serviceURL}
}

// Embed implements EmbeddingProvider.
//
// # Outputs
//
//   - []float32: The embedding vector.
//   - error: Non-nil if the service is unreachable, returns a non-200, or
//     the response cannot be parsed.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.serviceURL == "" {
		return nil, fmt.Errorf("embedding service URL not configured")
	}
	if len(text) > maxEmbedBytes {
		text = text[:maxEmbedBytes]
	}

	reqBody, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serviceURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach embedding service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(bodyBytes, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return embResp.Vector, nil
}
