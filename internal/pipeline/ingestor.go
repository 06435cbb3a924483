// Package pipeline 定义了文档入库的核心流程：分块、向量化、校验与写入索引。
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/pkg/chunker"
	"tender-match-go/pkg/embedding"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/metrics"
	"tender-match-go/pkg/vectorindex"
)

// Outcome 是一次入库运行交给 Recorder 的全部信息。
type Outcome struct {
	Report       *model.IngestionReport
	Config       config.ChunkingConfig
	ModelVersion string
	// Stored 是成功写入索引的分块，按序号排列。
	Stored []model.Chunk
	Err    error
}

// Recorder 在每次入库运行结束后被调用，用于登记入库台账。
type Recorder interface {
	RecordIngestion(ctx context.Context, outcome Outcome) error
}

// DocumentInput 是批量入库中的单个文档。
type DocumentInput struct {
	Name     string   `json:"document_name"`
	Segments []string `json:"segments"`
}

// Pipeline 负责单个文档的同步入库。同一个 Pipeline 可被多个 goroutine 并发使用。
type Pipeline struct {
	chunker      chunker.Chunker
	embedder     embedding.Client
	index        vectorindex.Index
	recorder     Recorder
	batchSize    int
	embedTimeout time.Duration
	workers      int

	dimMu     sync.Mutex
	dimension int
}

// Option 用于定制 Pipeline。
type Option func(*Pipeline)

// WithRecorder 设置入库台账记录器。
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// NewPipeline 创建一个新的 Pipeline 实例。
func NewPipeline(c chunker.Chunker, embedder embedding.Client, index vectorindex.Index, cfg config.IngestionConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker:      c,
		embedder:     embedder,
		index:        index,
		batchSize:    cfg.BatchSize,
		embedTimeout: cfg.EmbedTimeout,
		workers:      cfg.Workers,
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.embedTimeout <= 0 {
		p.embedTimeout = 30 * time.Second
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DocumentKey 是文档名的 md5，作为分块 ID 前缀与索引中的文档键。
func DocumentKey(documentName string) string {
	sum := md5.Sum([]byte(documentName))
	return hex.EncodeToString(sum[:])
}

// ChunkID 由文档名与分块序号确定，重复入库得到相同的 ID。
func ChunkID(documentName string, ordinal int) string {
	return fmt.Sprintf("%s_%d", DocumentKey(documentName), ordinal)
}

// Ingest 对一个文档执行 分块 -> 向量化 -> 维度校验 -> 写入 的完整流程。
//
// 配置与参数错误在任何副作用之前返回。单个分块的向量化失败只记录在报告中，不会中断后续分块。
// 索引不可达时返回包装了 model.ErrIndexUnavailable 的错误，同时返回已完成部分的报告。
func (p *Pipeline) Ingest(ctx context.Context, documentName string, segments []string, cfg config.ChunkingConfig) (*model.IngestionReport, error) {
	if err := chunker.Validate(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(documentName) == "" {
		return nil, fmt.Errorf("%w: document name must not be empty", model.ErrInvalidArgument)
	}

	start := time.Now()
	docKey := DocumentKey(documentName)
	report := &model.IngestionReport{
		DocumentName: documentName,
		DocumentKey:  docKey,
		Failures:     []model.ChunkFailure{},
	}

	chunks, err := p.chunker.Split(strings.Join(segments, "\n"), cfg)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.Warnf("[Pipeline] 文档 '%s' 没有可入库的文本, 跳过", documentName)
		report.Skipped = true
		metrics.DocumentsIngested.WithLabelValues("skipped").Inc()
		p.record(ctx, Outcome{Report: report, Config: cfg, ModelVersion: p.embedder.ModelVersion()})
		return report, nil
	}

	dimension, err := p.indexDimension(ctx)
	if err != nil {
		return nil, err
	}

	log.Infof("[Pipeline] 开始入库文档 '%s', 分块数: %d, 索引维度: %d", documentName, len(chunks), dimension)
	modelVersion := p.embedder.ModelVersion()
	entries := make([]model.IndexEntry, 0, len(chunks))
	embedded := make([]model.Chunk, 0, len(chunks))
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		chunk := chunks[i]
		chunk.ID = ChunkID(documentName, chunk.Ordinal)
		chunk.DocumentName = documentName
		report.Attempted++

		vector, err := p.embed(ctx, chunk.Text)
		if err != nil {
			reason := model.ReasonEmbeddingFailed
			if errors.Is(err, model.ErrInputTooLong) {
				reason = model.ReasonInputTooLong
			}
			log.Warnf("[Pipeline] 分块 %s 向量化失败, 跳过: %v", chunk.ID, err)
			p.fail(report, chunk, reason, err.Error())
			continue
		}
		if len(vector) != dimension {
			detail := fmt.Sprintf("vector has %d dimensions, index expects %d", len(vector), dimension)
			log.Warnf("[Pipeline] 分块 %s 维度不一致, 跳过: %s", chunk.ID, detail)
			p.fail(report, chunk, model.ReasonDimensionMismatch, detail)
			continue
		}
		entries = append(entries, model.IndexEntry{
			ID:     chunk.ID,
			Vector: vector,
			Metadata: model.EntryMetadata{
				DocumentName: documentName,
				DocumentKey:  docKey,
				ChunkOrdinal: chunk.Ordinal,
				Section:      chunk.Section,
				Text:         chunk.Text,
				ModelVersion: modelVersion,
			},
		})
		embedded = append(embedded, chunk)
	}

	// 按序号顺序分批写入
	for lo := 0; lo < len(entries); lo += p.batchSize {
		hi := lo + p.batchSize
		if hi > len(entries) {
			hi = len(entries)
		}
		if err := p.index.Upsert(ctx, entries[lo:hi]); err != nil {
			log.Errorf("[Pipeline] 写入索引失败, 文档: '%s', 批次: [%d, %d), error: %v", documentName, lo, hi, err)
			metrics.DocumentsIngested.WithLabelValues("failed").Inc()
			if !errors.Is(err, model.ErrIndexUnavailable) {
				err = fmt.Errorf("upsert batch [%d, %d) of %q: %w", lo, hi, documentName, err)
			}
			p.record(ctx, Outcome{Report: report, Config: cfg, ModelVersion: modelVersion, Stored: embedded[:report.Stored], Err: err})
			return report, err
		}
		report.Stored += hi - lo
		metrics.ChunksStored.Add(float64(hi - lo))
	}

	// 本次失败的分块不能继续提供上一版本的内容
	if len(report.Failures) > 0 {
		failed := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failed = append(failed, f.ChunkID)
		}
		if err := p.index.Delete(ctx, failed); err != nil {
			log.Errorf("[Pipeline] 删除文档 '%s' 失败分块的旧记录失败: %v", documentName, err)
			p.record(ctx, Outcome{Report: report, Config: cfg, ModelVersion: modelVersion, Stored: embedded, Err: err})
			return report, err
		}
	}

	// 文档变短后，清理上一版本遗留的高序号分块
	if err := p.index.DeleteFrom(ctx, docKey, len(chunks)); err != nil {
		log.Errorf("[Pipeline] 清理文档 '%s' 的旧分块失败: %v", documentName, err)
		p.record(ctx, Outcome{Report: report, Config: cfg, ModelVersion: modelVersion, Stored: embedded, Err: err})
		return report, err
	}

	metrics.DocumentsIngested.WithLabelValues("indexed").Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	log.Infow("[Pipeline] 文档入库完成",
		"document", documentName,
		"attempted", report.Attempted,
		"stored", report.Stored,
		"skipped", report.SkippedCount(),
	)
	p.record(ctx, Outcome{Report: report, Config: cfg, ModelVersion: modelVersion, Stored: embedded})
	return report, nil
}

// IngestBatch 以有限的并发度入库多个互相独立的文档，报告顺序与输入一致。
// 单个文档失败不会影响其他文档，所有失败合并后返回。
func (p *Pipeline) IngestBatch(ctx context.Context, docs []DocumentInput, cfg config.ChunkingConfig) ([]*model.IngestionReport, error) {
	if err := chunker.Validate(cfg); err != nil {
		return nil, err
	}
	reports := make([]*model.IngestionReport, len(docs))
	errs := make([]error, len(docs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, doc := range docs {
		g.Go(func() error {
			report, err := p.Ingest(ctx, doc.Name, doc.Segments, cfg)
			reports[i] = report
			if err != nil {
				errs[i] = fmt.Errorf("ingest %q: %w", doc.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// indexDimension 首次调用时从索引统计中获取维度并缓存；索引为空且未配置维度时使用 embedding 模型的维度。
// 索引中已有其他模型写入的向量时返回 model.ErrInvalidConfiguration。
func (p *Pipeline) indexDimension(ctx context.Context) (int, error) {
	p.dimMu.Lock()
	defer p.dimMu.Unlock()
	if p.dimension > 0 {
		return p.dimension, nil
	}
	stats, err := p.index.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch index stats: %w", err)
	}
	if stats.ModelVersion != "" && stats.ModelVersion != p.embedder.ModelVersion() {
		return 0, fmt.Errorf("%w: index holds vectors from model %q, embedder is %q",
			model.ErrInvalidConfiguration, stats.ModelVersion, p.embedder.ModelVersion())
	}
	dim := stats.Dimension
	if dim <= 0 {
		dim = p.embedder.Dimensions()
	}
	if dim <= 0 {
		return 0, fmt.Errorf("%w: index dimension is unknown", model.ErrInvalidConfiguration)
	}
	p.dimension = dim
	return dim, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	defer cancel()
	return p.embedder.CreateEmbedding(ctx, text)
}

func (p *Pipeline) fail(report *model.IngestionReport, chunk model.Chunk, reason, detail string) {
	report.Failures = append(report.Failures, model.ChunkFailure{
		Ordinal: chunk.Ordinal,
		ChunkID: chunk.ID,
		Reason:  reason,
		Detail:  detail,
	})
	metrics.ChunksSkipped.WithLabelValues(reason).Inc()
}

func (p *Pipeline) record(ctx context.Context, outcome Outcome) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordIngestion(ctx, outcome); err != nil {
		log.Warnf("[Pipeline] 记录入库台账失败, 文档: '%s', error: %v", outcome.Report.DocumentName, err)
	}
}
