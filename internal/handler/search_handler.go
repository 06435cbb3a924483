package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"tender-match-go/internal/model"
	"tender-match-go/internal/service"
	"tender-match-go/pkg/log"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	defaultTopK   int
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, defaultTopK int) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &SearchHandler{searchService: searchService, defaultTopK: defaultTopK}
}

// Search 处理 GET /search?query=&topK= 请求。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	topK := h.defaultTopK
	if raw := c.Query("topK"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, "SearchHandler", fmt.Errorf("%w: topK must be an integer", model.ErrInvalidArgument))
			return
		}
		topK = v
	}
	log.Infof("[SearchHandler] 收到检索请求, query: %s, topK: %d", query, topK)

	result, err := h.searchService.Search(c.Request.Context(), query, topK)
	if err != nil {
		respondError(c, "SearchHandler", err)
		return
	}
	respondOK(c, "success", result)
}

// Stats 处理 GET /index/stats 请求。
func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.searchService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "SearchHandler", err)
		return
	}
	respondOK(c, "success", stats)
}
