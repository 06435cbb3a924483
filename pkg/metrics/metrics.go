// Package metrics 定义了服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP 指标
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_http_requests_total",
			Help: "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tender_http_request_duration_seconds",
			Help:    "HTTP 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 入库指标
var (
	// DocumentsIngested 按结果统计的文档入库次数，result 取值 indexed / skipped / failed。
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_documents_ingested_total",
			Help: "文档入库次数",
		},
		[]string{"result"},
	)

	ChunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_chunks_stored_total",
			Help: "成功写入索引的分块数",
		},
	)

	// ChunksSkipped 按原因统计被跳过的分块。
	ChunksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_chunks_skipped_total",
			Help: "被跳过的分块数",
		},
		[]string{"reason"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tender_ingest_duration_seconds",
			Help:    "单个文档入库耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

// 检索指标
var (
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tender_search_duration_seconds",
			Help:    "检索耗时分布",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_search_errors_total",
			Help: "检索失败次数",
		},
		[]string{"kind"},
	)
)

// 异步任务指标
var (
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_tasks_processed_total",
			Help: "Kafka 入库任务处理次数",
		},
		[]string{"status"},
	)
)
