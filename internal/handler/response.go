// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tender-match-go/internal/model"
	"tender-match-go/pkg/log"
)

// statusFor 把错误种类映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidConfiguration),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrInputTooLong),
		errors.Is(err, model.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrDocumentNotFound), errors.Is(err, model.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, tag string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求失败, path: %s, error: %v", tag, c.FullPath(), err)
	} else {
		log.Warnf("[%s] 请求失败, path: %s, error: %v", tag, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}
