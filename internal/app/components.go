// Package app 组装 server 与 tenderctl 共用的核心组件。
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"tender-match-go/internal/config"
	"tender-match-go/pkg/embedding"
	"tender-match-go/pkg/es"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/vectorindex"
)

// NewEmbedder 按配置创建 embedding 客户端并套上缓存层；rdb 为 nil 时只用进程内缓存。
func NewEmbedder(cfg config.EmbeddingConfig, rdb *redis.Client) (embedding.Client, error) {
	base, err := embedding.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}
	log.Infof("Embedding 客户端初始化成功, provider: %s, model: %s, dims: %d", cfg.Provider, base.ModelVersion(), base.Dimensions())
	return embedding.NewCachedClient(base, rdb, cfg.CachePrefix, cfg.CacheTTL), nil
}

// NewIndex 在配置了 Elasticsearch 地址时返回 ES 索引（必要时按 embedding 维度建索引），
// 否则返回进程内索引。
func NewIndex(ctx context.Context, cfg config.ElasticsearchConfig, emb embedding.Client) (vectorindex.Index, error) {
	if strings.TrimSpace(cfg.Addresses) == "" {
		log.Warnf("未配置 elasticsearch.addresses, 使用进程内向量索引, 数据不会持久化")
		return vectorindex.NewMemory(emb.Dimensions())
	}
	idx, err := es.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch: %w", err)
	}
	if err := idx.EnsureIndex(ctx, emb.Dimensions(), emb.ModelVersion()); err != nil {
		return nil, fmt.Errorf("ensure index %s: %w", cfg.IndexName, err)
	}
	return idx, nil
}
