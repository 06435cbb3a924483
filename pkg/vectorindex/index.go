// Package vectorindex 定义了向量索引的契约，并提供一个进程内实现。
package vectorindex

import (
	"context"

	"tender-match-go/internal/model"
)

// Index 是向量相似度索引的客户端契约。
//
// Upsert 以 ID 为键整体替换已有记录；Query 按相似度降序返回至多 topK 条命中，
// 相同得分保持索引自身的顺序；Stats 报告记录数与配置的向量维度；
// Delete 按 ID 删除记录，不存在的 ID 被忽略；
// DeleteFrom 删除某文档中序号 >= fromOrdinal 的分块，用于清理重新入库后多余的旧分块。
// 后端不可达时返回包装了 model.ErrIndexUnavailable 的错误。
type Index interface {
	Upsert(ctx context.Context, entries []model.IndexEntry) error
	Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error)
	Stats(ctx context.Context) (model.IndexStats, error)
	Delete(ctx context.Context, ids []string) error
	DeleteFrom(ctx context.Context, documentKey string, fromOrdinal int) error
}
