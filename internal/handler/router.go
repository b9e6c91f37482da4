package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docrag/internal/middleware"
)

type RouterDeps struct {
	RAG           *RAGHandler
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/search", deps.RAG.Search)
	api.POST("/chat", middleware.RateLimit(deps.ChatRateLimit), deps.RAG.Chat)
	api.POST("/ingest", deps.RAG.Ingest)
	api.GET("/stats", deps.RAG.Stats)
}
