package pipeline

import (
	"context"

	"tender-match-go/internal/model"
	"tender-match-go/internal/repository"
)

// LedgerRecorder 把入库结果写入 documents / document_chunks 表。
type LedgerRecorder struct {
	repo repository.DocumentRepository
}

// NewLedgerRecorder 创建一个基于数据库台账的 Recorder。
func NewLedgerRecorder(repo repository.DocumentRepository) *LedgerRecorder {
	return &LedgerRecorder{repo: repo}
}

func (l *LedgerRecorder) RecordIngestion(ctx context.Context, o Outcome) error {
	doc := &model.IngestedDocument{
		Name:       o.Report.DocumentName,
		Status:     model.DocumentStatusIndexed,
		ChunkMode:  o.Config.Mode,
		WindowSize: o.Config.WindowSize,
		Overlap:    o.Config.Overlap,
		Attempted:  o.Report.Attempted,
		Stored:     o.Report.Stored,
		Skipped:    o.Report.SkippedCount(),
	}
	switch {
	case o.Err != nil:
		doc.Status = model.DocumentStatusFailed
		doc.LastError = o.Err.Error()
	case o.Report.Skipped:
		doc.Status = model.DocumentStatusEmpty
	}

	chunks := make([]model.DocumentChunk, 0, len(o.Stored))
	for _, c := range o.Stored {
		chunks = append(chunks, model.DocumentChunk{
			ChunkID:      c.ID,
			DocumentName: o.Report.DocumentName,
			Ordinal:      c.Ordinal,
			Section:      c.Section,
			TextContent:  c.Text,
			ModelVersion: o.ModelVersion,
		})
	}
	return l.repo.SaveResult(ctx, doc, chunks)
}
