// Package service 提供了检索、文档管理与标书起草的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tender-match-go/internal/model"
	"tender-match-go/pkg/embedding"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/metrics"
	"tender-match-go/pkg/vectorindex"
)

// SearchService 接口定义了检索操作。
type SearchService interface {
	// Search 返回与 query 最相似的至多 topK 个分块，按相似度降序。
	Search(ctx context.Context, query string, topK int) (*model.QueryResult, error)
	// Verify 检查索引中已存储向量的模型版本与维度是否与当前 embedding 模型一致。
	Verify(ctx context.Context) error
	Stats(ctx context.Context) (model.IndexStats, error)
}

type searchService struct {
	embeddingClient embedding.Client
	index           vectorindex.Index
}

// NewSearchService 创建一个新的 SearchService 实例。
// 查询向量必须与入库时使用同一个 embedding 模型，否则相似度没有意义。
func NewSearchService(embeddingClient embedding.Client, index vectorindex.Index) SearchService {
	return &searchService{embeddingClient: embeddingClient, index: index}
}

func (s *searchService) Verify(ctx context.Context) error {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch index stats: %w", err)
	}
	if stats.Dimension > 0 && stats.Dimension != s.embeddingClient.Dimensions() {
		return fmt.Errorf("%w: index dimension %d differs from embedding model dimension %d",
			model.ErrInvalidConfiguration, stats.Dimension, s.embeddingClient.Dimensions())
	}
	if stats.ModelVersion != "" && stats.ModelVersion != s.embeddingClient.ModelVersion() {
		return fmt.Errorf("%w: index was built with model %q, query embeddings use %q",
			model.ErrInvalidConfiguration, stats.ModelVersion, s.embeddingClient.ModelVersion())
	}
	return nil
}

func (s *searchService) Search(ctx context.Context, query string, topK int) (*model.QueryResult, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	if topK <= 0 {
		metrics.SearchErrors.WithLabelValues("invalid_argument").Inc()
		return nil, fmt.Errorf("%w: topK must be positive, got %d", model.ErrInvalidArgument, topK)
	}
	if strings.TrimSpace(query) == "" {
		metrics.SearchErrors.WithLabelValues("invalid_argument").Inc()
		return nil, fmt.Errorf("%w: query must not be empty", model.ErrInvalidArgument)
	}
	log.Infof("[SearchService] 开始检索, query: '%s', topK: %d", query, topK)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		metrics.SearchErrors.WithLabelValues("embedding").Inc()
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	matches, err := s.index.Query(ctx, queryVector, topK)
	if err != nil {
		kind := "index"
		if errors.Is(err, model.ErrIndexUnavailable) {
			kind = "index_unavailable"
		}
		metrics.SearchErrors.WithLabelValues(kind).Inc()
		log.Errorf("[SearchService] 向量索引查询失败: %v", err)
		return nil, err
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []model.Match{}
	}
	log.Infof("[SearchService] 检索完成, 命中: %d", len(matches))
	return &model.QueryResult{Query: query, TopK: topK, Matches: matches}, nil
}

func (s *searchService) Stats(ctx context.Context) (model.IndexStats, error) {
	return s.index.Stats(ctx)
}
