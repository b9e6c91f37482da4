package handler

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docrag/internal/loader"
	"github.com/xxxsen/docrag/internal/model"
	"github.com/xxxsen/docrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/pkg/response"
	"github.com/xxxsen/docrag/internal/service"
)

type IRAGService interface {
	Ingest(ctx context.Context, root string, prune bool) (*model.IngestReport, error)
	Search(ctx context.Context, query string, limit int, minScore float64) ([]*model.Match, error)
	Chat(ctx context.Context, question string) (*service.ChatResult, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type RAGHandler struct {
	rag         IRAGService
	minScore    float64
	ingestRoots []string
}

// NewRAGHandler builds the http handler. Only paths under ingestRoots may be
// ingested over http; with no roots the endpoint is disabled.
func NewRAGHandler(rag IRAGService, minScore float64, ingestRoots []string) *RAGHandler {
	return &RAGHandler{rag: rag, minScore: minScore, ingestRoots: ingestRoots}
}

type searchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	MinScore *float64 `json:"min_score"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type ingestRequest struct {
	Paths []string `json:"paths"`
	Prune bool     `json:"prune"`
}

func (h *RAGHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	minScore := h.minScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	matches, err := h.rag.Search(c.Request.Context(), req.Query, req.Limit, minScore)
	if err != nil {
		handleError(c, err)
		return
	}
	if matches == nil {
		matches = []*model.Match{}
	}
	response.Success(c, gin.H{"matches": matches})
}

func (h *RAGHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	result, err := h.rag.Chat(c.Request.Context(), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *RAGHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Paths) == 0 {
		response.Error(c, errcode.ErrInvalid, "paths are required")
		return
	}
	for _, p := range req.Paths {
		if !h.allowed(p) {
			response.Error(c, errcode.ErrInvalidPath, "path not allowed: "+p)
			return
		}
	}
	reports := make([]*model.IngestReport, 0, len(req.Paths))
	for _, p := range req.Paths {
		report, err := h.rag.Ingest(c.Request.Context(), p, req.Prune)
		if err != nil && !appErr.IsInvalidPath(err) {
			handleError(c, err)
			return
		}
		reports = append(reports, report)
	}
	response.Success(c, gin.H{"reports": reports})
}

func (h *RAGHandler) Stats(c *gin.Context) {
	st, err := h.rag.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, st)
}

func (h *RAGHandler) allowed(path string) bool {
	for _, root := range h.ingestRoots {
		if strings.HasPrefix(root, "s3://") || strings.HasPrefix(path, "s3://") {
			if loader.UnderS3Root(path, root) {
				return true
			}
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
