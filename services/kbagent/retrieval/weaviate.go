// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

var tracer = otel.Tracer("aleutian.kbagent.retrieval")

// PassageClassName is the Weaviate class holding indexed knowledge base
// passages.
const PassageClassName = "KnowledgePassage"

// WeaviateRetriever implements conversation.KnowledgeRetriever using
// nearVector search over the KnowledgePassage class.
//
// # Description
//
// Each search embeds the query through the EmbeddingProvider, then runs a
// vector search filtered to the target knowledge base (kb_id equality).
// Certainty from Weaviate is reported as the relevance score; it is always
// in [0, 1] regardless of the class's distance metric.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
//
// # Example
//
//	embedder := retrieval.NewHTTPEmbedder("")
//	retriever := retrieval.NewWeaviateRetriever(client, embedder)
//	passages, err := retriever.Search(ctx, kbID, "what is X", 5)
type WeaviateRetriever struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// Compile-time interface compliance.
var _ conversation.KnowledgeRetriever = (*WeaviateRetriever)(nil)

// NewWeaviateRetriever creates a retriever over the given client and
// embedder.
func NewWeaviateRetriever(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateRetriever {
	return &WeaviateRetriever{
		client:   client,
		embedder: embedder,
	}
}

// Search implements conversation.KnowledgeRetriever.
//
// # Outputs
//
//   - []datatypes.Passage: Up to topK passages ordered most relevant first.
//     Empty when nothing matches; never nil on success.
//   - error: Non-nil on embedding or Weaviate failure. Never an empty-result
//     substitute for a failure.
func (r *WeaviateRetriever) Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]datatypes.Passage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("kb.id", knowledgeBaseID),
		attribute.Int("search.top_k", topK),
	)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		slog.Error("Failed to embed query for passage search", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	kbFilter := filters.Where().
		WithPath([]string{"kb_id"}).
		WithOperator(filters.Equal).
		WithValueString(knowledgeBaseID)

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "kb_id"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(PassageClassName).
		WithFields(fields...).
		WithWhere(kbFilter).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate search failed")
		slog.Error("Failed to search KnowledgePassage class", "error", err, "kbId", knowledgeBaseID)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.PassageQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	passages := make([]datatypes.Passage, 0, len(parsed.Get.KnowledgePassage))
	for _, p := range parsed.Get.KnowledgePassage {
		var score float64
		if p.Additional.Certainty != nil {
			score = float64(*p.Additional.Certainty)
		}
		passages = append(passages, datatypes.Passage{
			Content:        p.Content,
			RelevanceScore: score,
		})
	}

	span.SetAttributes(attribute.Int("passages.count", len(passages)))
	slog.Debug("Passage search complete", "kbId", knowledgeBaseID, "count", len(passages))
	return passages, nil
}

// EnsurePassageSchema creates the KnowledgePassage class if it does not
// exist. Vectors are supplied externally by the embedding service, so the
// class vectorizer is "none".
func EnsurePassageSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(PassageClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check %s class: %w", PassageClassName, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       PassageClassName,
		Description: "An indexed knowledge base passage searchable by vector similarity",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Passage text"},
			{Name: "kb_id", DataType: []string{"text"}, Description: "Owning knowledge base id"},
			{Name: "source", DataType: []string{"text"}, Description: "Origin document reference"},
		},
	}

	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create %s class: %w", PassageClassName, err)
	}
	slog.Info("Created Weaviate class", "class", PassageClassName)
	return nil
}

// NoopRetriever satisfies conversation.KnowledgeRetriever without a vector
// database. Every search succeeds with zero passages, so generation runs on
// conversation context alone. Used when WEAVIATE_SERVICE_URL is unset.
type NoopRetriever struct{}

// Compile-time interface compliance.
var _ conversation.KnowledgeRetriever = (*NoopRetriever)(nil)

// Search implements conversation.KnowledgeRetriever.
func (NoopRetriever) Search(_ context.Context, _, _ string, _ int) ([]datatypes.Passage, error) {
	return []datatypes.Passage{}, nil
}
