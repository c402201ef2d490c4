package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/codebase-rag/internal/core/apperr"
)

// StatusFor はエラー分類を HTTP ステータスに変換する
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case apperr.IsProvider(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error, status int) string {
	var validation *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrProjectNotFound):
		return "Project not found"
	case errors.As(err, &validation):
		return validation.Message
	case status == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("リクエストの処理に失敗しました", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detailFor(err, status)})
}
