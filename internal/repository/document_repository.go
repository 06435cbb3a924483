// Package repository 封装了入库台账的数据库访问。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tender-match-go/internal/model"
)

// DocumentRepository 定义了对 documents 与 document_chunks 表的数据操作接口。
type DocumentRepository interface {
	// SavePending 登记一个刚上传、等待异步处理的文档，重置上一次的入库结果。
	SavePending(ctx context.Context, doc *model.IngestedDocument) error
	// SaveResult 写入一次入库运行的结果，并用 chunks 整体替换该文档的分块记录。
	SaveResult(ctx context.Context, doc *model.IngestedDocument, chunks []model.DocumentChunk) error
	FindByName(ctx context.Context, name string) (*model.IngestedDocument, error)
	FindChunks(ctx context.Context, name string) ([]model.DocumentChunk, error)
	List(ctx context.Context) ([]model.IngestedDocument, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

var pendingColumns = []string{
	"file_md5", "object_name", "status", "chunk_mode", "window_size", "overlap",
	"attempted", "stored", "skipped", "last_error", "updated_at",
}

// 结果写入不覆盖上传时登记的 file_md5 与 object_name。
var resultColumns = []string{
	"status", "chunk_mode", "window_size", "overlap",
	"attempted", "stored", "skipped", "last_error", "updated_at",
}

func (r *documentRepository) SavePending(ctx context.Context, doc *model.IngestedDocument) error {
	doc.Status = model.DocumentStatusPending
	doc.Attempted, doc.Stored, doc.Skipped = 0, 0, 0
	doc.LastError = ""
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns(pendingColumns),
	}).Create(doc).Error
}

func (r *documentRepository) SaveResult(ctx context.Context, doc *model.IngestedDocument, chunks []model.DocumentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns(resultColumns),
		}).Create(doc).Error; err != nil {
			return fmt.Errorf("保存文档记录失败: %w", err)
		}
		// 先清理旧分块再批量写入，保证重复入库幂等
		if err := tx.Where("document_name = ?", doc.Name).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("清理旧分块失败: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error // 每100条记录一批
	})
}

func (r *documentRepository) FindByName(ctx context.Context, name string) (*model.IngestedDocument, error) {
	var doc model.IngestedDocument
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", model.ErrDocumentNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindChunks(ctx context.Context, name string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.WithContext(ctx).Where("document_name = ?", name).Order("ordinal asc").Find(&chunks).Error
	return chunks, err
}

func (r *documentRepository) List(ctx context.Context) ([]model.IngestedDocument, error) {
	var docs []model.IngestedDocument
	err := r.db.WithContext(ctx).Order("updated_at desc, name asc").Find(&docs).Error
	return docs, err
}
