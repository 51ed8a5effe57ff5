// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/datatypes"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestKB(t *testing.T, s *SQLiteStore) string {
	t.Helper()
	kb := &datatypes.KnowledgeBase{
		ID:        uuid.New().String(),
		Name:      "test-kb",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateKnowledgeBase(context.Background(), kb))
	return kb.ID
}

func createTestConversation(t *testing.T, s *SQLiteStore, kbID string) *datatypes.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &datatypes.Conversation{
		ID:              uuid.New().String(),
		KnowledgeBaseID: kbID,
		Title:           "test",
		Status:          datatypes.ConversationActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

// TestKnowledgeBaseRegistry covers create, get, exists, and list.
func TestKnowledgeBaseRegistry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kb := &datatypes.KnowledgeBase{
		ID:          "kb-1",
		Name:        "docs",
		Description: "product docs",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateKnowledgeBase(ctx, kb))

	got, err := s.GetKnowledgeBase(ctx, "kb-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "docs", got.Name)
	assert.Equal(t, "product docs", got.Description)
	assert.WithinDuration(t, kb.CreatedAt, got.CreatedAt, time.Millisecond)

	exists, err := s.KnowledgeBaseExists(ctx, "kb-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.KnowledgeBaseExists(ctx, "kb-nope")
	require.NoError(t, err)
	assert.False(t, exists)

	missing, err := s.GetKnowledgeBase(ctx, "kb-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListKnowledgeBases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestConversationRoundtrip verifies create and get preserve all fields.
func TestConversationRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	kbID := createTestKB(t, s)

	conv := createTestConversation(t, s, kbID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, kbID, got.KnowledgeBaseID)
	assert.Equal(t, datatypes.ConversationActive, got.Status)
	assert.WithinDuration(t, conv.CreatedAt, got.CreatedAt, time.Millisecond)

	missing, err := s.GetConversation(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestUpdateConversation covers partial updates and the missing-id
// contract.
func TestUpdateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	kbID := createTestKB(t, s)
	conv := createTestConversation(t, s, kbID)

	title := "renamed"
	updated, err := s.UpdateConversation(ctx, conv.ID, &title, nil)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, datatypes.ConversationActive, updated.Status, "status untouched")
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt) || updated.UpdatedAt.Equal(conv.UpdatedAt))

	status := datatypes.ConversationDeleted
	updated, err = s.UpdateConversation(ctx, conv.ID, nil, &status)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "renamed", updated.Title, "title untouched")
	assert.Equal(t, datatypes.ConversationDeleted, updated.Status)

	none, err := s.UpdateConversation(ctx, "nope", &title, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// TestListConversations covers filtering, ordering, pagination, and the
// pre-pagination total.
func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	kb1 := createTestKB(t, s)
	kb2 := createTestKB(t, s)

	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		conv := &datatypes.Conversation{
			ID:              fmt.Sprintf("conv-%d", i),
			KnowledgeBaseID: kb1,
			Title:           fmt.Sprintf("c%d", i),
			Status:          datatypes.ConversationActive,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateConversation(ctx, conv))
		ids = append(ids, conv.ID)
	}
	other := createTestConversation(t, s, kb2)

	items, total, err := s.ListConversations(ctx, conversation.ListFilter{
		KnowledgeBaseID: kb1,
		Status:          datatypes.ConversationActive,
		Limit:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	// Most recently updated first.
	assert.Equal(t, ids[2], items[0].ID)
	assert.Equal(t, ids[0], items[2].ID)

	// Pagination keeps the full total.
	items, total, err = s.ListConversations(ctx, conversation.ListFilter{
		KnowledgeBaseID: kb1,
		Skip:            1,
		Limit:           1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, ids[1], items[0].ID)

	// Unfiltered sees both knowledge bases.
	_, total, err = s.ListConversations(ctx, conversation.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	_ = other
}

// TestCreateMessage_TouchesConversation verifies the append refreshes the
// owning conversation's updated_at in the same transaction.
func TestCreateMessage_TouchesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	kbID := createTestKB(t, s)
	conv := createTestConversation(t, s, kbID)

	msgTime := conv.UpdatedAt.Add(time.Minute)
	msg := &datatypes.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           datatypes.RoleUser,
		Content:        "hello",
		CreatedAt:      msgTime,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, msgTime, got.UpdatedAt, time.Millisecond)
}

// TestListMessages covers chronological ordering, insertion-order
// tiebreaks, the limit, and metadata round trips.
func TestListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	kbID := createTestKB(t, s)
	conv := createTestConversation(t, s, kbID)

	// Same created_at for all three; rowid must keep insertion order.
	at := time.Now().UTC()
	metadata := `{"sources":[]}`
	for i := 0; i < 3; i++ {
		msg := &datatypes.Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: conv.ID,
			Role:           datatypes.RoleUser,
			Content:        fmt.Sprintf("m%d", i),
			CreatedAt:      at,
		}
		if i == 1 {
			msg.Metadata = &metadata
		}
		require.NoError(t, s.CreateMessage(ctx, msg))
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m0", msgs[0].Content)
	assert.Equal(t, "m2", msgs[2].Content)
	assert.Nil(t, msgs[0].Metadata)
	require.NotNil(t, msgs[1].Metadata)
	assert.JSONEq(t, metadata, *msgs[1].Metadata)

	// The limit keeps the newest messages, still oldest-first.
	limited, err := s.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "m1", limited[0].Content)
	assert.Equal(t, "m2", limited[1].Content)

	empty, err := s.ListMessages(ctx, "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
