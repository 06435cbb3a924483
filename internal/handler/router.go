package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tender-match-go/internal/middleware"
)

// Handlers 汇总了路由需要的全部处理器。
type Handlers struct {
	Search   *SearchHandler
	Document *DocumentHandler
	Draft    *DraftHandler
}

// NewRouter 创建 Gin 引擎并注册全部路由。
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/search", h.Search.Search)
		apiV1.GET("/index/stats", h.Search.Stats)

		documents := apiV1.Group("/documents")
		{
			documents.POST("", h.Document.Upload)
			documents.POST("/ingest", h.Document.Ingest)
			documents.GET("", h.Document.List)
			documents.GET("/:name", h.Document.Get)
		}

		if h.Draft != nil {
			drafts := apiV1.Group("/drafts")
			{
				drafts.GET("/ws", h.Draft.Handle)
				drafts.GET("/history", h.Draft.ListDrafts)
				drafts.GET("/history/:id", h.Draft.GetDraft)
			}
		}
	}
	return r
}
