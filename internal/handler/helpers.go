package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/middleware"
	"github.com/xxxsen/docrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
	"github.com/xxxsen/docrag/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case appErr.IsInvalidPath(err):
		response.Error(c, errcode.ErrInvalidPath, err.Error())
	case appErr.IsMissingCredential(err), errors.Is(err, appErr.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case appErr.IsGeneration(err):
		response.Error(c, errcode.ErrGenerationFailed, "answer generation failed")
	case appErr.IsStoreConnection(err):
		response.Error(c, errcode.ErrStoreUnavailable, "vector store unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
