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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianKB/services/kbagent/conversation"
	"github.com/AleutianAI/AleutianKB/services/kbagent/handlers"
)

// SetupRoutes registers all kbagent HTTP routes on the router.
func SetupRoutes(router *gin.Engine, mgr *conversation.Manager, registry handlers.KnowledgeBaseRegistry) {
	router.GET("/health", handlers.Health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		knowledgeBases := v1.Group("/knowledge-bases")
		{
			knowledgeBases.POST("", handlers.CreateKnowledgeBase(registry))
			knowledgeBases.GET("", handlers.ListKnowledgeBases(registry))
			knowledgeBases.GET("/:kbId", handlers.GetKnowledgeBase(registry))
		}

		conversations := v1.Group("/conversations")
		{
			conversations.POST("", handlers.CreateConversation(mgr))
			conversations.GET("", handlers.ListConversations(mgr))
			conversations.GET("/:conversationId", handlers.GetConversation(mgr))
			conversations.PATCH("/:conversationId", handlers.UpdateConversation(mgr))
			conversations.DELETE("/:conversationId", handlers.DeleteConversation(mgr))
			conversations.POST("/:conversationId/messages", handlers.AddMessage(mgr))
			conversations.GET("/:conversationId/messages", handlers.GetConversationHistory(mgr))
			conversations.GET("/:conversationId/context", handlers.GetConversationContext(mgr))
			conversations.POST("/:conversationId/generate", handlers.Generate(mgr))
		}
	}
}
