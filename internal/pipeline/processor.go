package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/internal/repository"
	"tender-match-go/pkg/extract"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/storage"
	"tender-match-go/pkg/tasks"
)

// Processor 处理 Kafka 中的入库任务：下载原始文件、提取文本、执行入库。
type Processor struct {
	store      storage.ObjectStore
	extractors *extract.Registry
	pipeline   *Pipeline
	repo       repository.DocumentRepository
	defaults   config.ChunkingConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store storage.ObjectStore,
	extractors *extract.Registry,
	pipeline *Pipeline,
	repo repository.DocumentRepository,
	defaults config.ChunkingConfig,
) *Processor {
	return &Processor{
		store:      store,
		extractors: extractors,
		pipeline:   pipeline,
		repo:       repo,
		defaults:   defaults,
	}
}

// Process 是入库任务的主函数。返回的错误表示值得重试的失败（如索引暂时不可达）。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] 开始处理文件, Document: %s, Object: %s", task.DocumentName, task.ObjectName)

	cfg := p.defaults
	if task.Chunking != nil {
		cfg = *task.Chunking
	}

	// 1. 从 MinIO 下载文件
	object, err := p.store.GetObject(ctx, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return err
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 读取MinIO对象流失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)

	// 2. 提取文本，提取失败等同于没有内容
	segments, extractErr := p.extract(ctx, buf, task.DocumentName)
	if extractErr != nil {
		log.Warnf("[Processor] 提取文本失败, 按空文档处理, Document: %s, Error: %v", task.DocumentName, extractErr)
	}
	log.Infof("[Processor] 步骤2: 文本提取完成, 段数: %d", len(segments))

	// 3. 入库
	report, err := p.pipeline.Ingest(ctx, task.DocumentName, segments, cfg)
	if err != nil {
		if errors.Is(err, model.ErrInvalidConfiguration) || errors.Is(err, model.ErrInvalidArgument) {
			// 配置错误重试也不会成功
			log.Errorf("[Processor] 入库参数非法, 放弃任务, Document: %s, Error: %v", task.DocumentName, err)
			p.saveFailure(ctx, task.DocumentName, cfg, err)
			return nil
		}
		return err
	}
	if report.Skipped && extractErr != nil {
		p.saveFailure(ctx, task.DocumentName, cfg, fmt.Errorf("extract: %w", extractErr))
	}

	log.Infof("[Processor] 文件处理完成, Document: %s, 写入: %d, 跳过: %d", task.DocumentName, report.Stored, report.SkippedCount())
	return nil
}

func (p *Processor) extract(ctx context.Context, buf *bytes.Buffer, fileName string) ([]string, error) {
	if buf.Len() == 0 {
		return nil, nil
	}
	extractor, err := p.extractors.For(fileName)
	if err != nil {
		return nil, err
	}
	return extractor.Extract(ctx, bytes.NewReader(buf.Bytes()), fileName)
}

func (p *Processor) saveFailure(ctx context.Context, name string, cfg config.ChunkingConfig, cause error) {
	if name == "" {
		return
	}
	status := model.DocumentStatusFailed
	if !errors.Is(cause, model.ErrInvalidConfiguration) && !errors.Is(cause, model.ErrInvalidArgument) {
		status = model.DocumentStatusEmpty
	}
	doc := &model.IngestedDocument{
		Name:       name,
		Status:     status,
		ChunkMode:  cfg.Mode,
		WindowSize: cfg.WindowSize,
		Overlap:    cfg.Overlap,
		LastError:  cause.Error(),
	}
	if err := p.repo.SaveResult(ctx, doc, nil); err != nil {
		log.Warnf("[Processor] 更新入库台账失败, Document: %s, Error: %v", name, err)
	}
}
