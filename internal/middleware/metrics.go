package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tender-match-go/pkg/metrics"
)

// Metrics 记录每个路由的请求数与延迟。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过 /metrics 端点，避免自我监控
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		// 使用路由模板而非实际路径，避免标签基数膨胀
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
