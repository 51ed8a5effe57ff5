// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Weaviate GraphQL response parsing.
//
// The Weaviate client returns GraphQL results as untyped map[string]any
// trees. ParseGraphQLResponse round-trips the data through JSON into a typed
// struct so callers never touch type assertions.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse converts an untyped GraphQL response into a typed
// structure.
//
// # Inputs
//
//   - resp: The raw response from the Weaviate client.
//
// # Outputs
//
//   - *T: The typed response.
//   - error: Non-nil for a nil response or a shape mismatch.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// PassageQueryResponse is the typed shape of a KnowledgePassage class query.
type PassageQueryResponse struct {
	Get struct {
		KnowledgePassage []PassageResult `json:"KnowledgePassage"`
	} `json:"Get"`
}

// PassageResult is a single KnowledgePassage object from a search.
type PassageResult struct {
	Content    string `json:"content"`
	KBID       string `json:"kb_id"`
	Source     string `json:"source"`
	Additional struct {
		// Certainty is used instead of distance: it is always in [0, 1]
		// regardless of the class's distance metric.
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}
