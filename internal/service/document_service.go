package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/internal/pipeline"
	"tender-match-go/internal/repository"
	"tender-match-go/pkg/chunker"
	"tender-match-go/pkg/extract"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/storage"
	"tender-match-go/pkg/tasks"
)

// DocumentDetailDTO 是文档详情，包含已入库的分块与临时下载链接。
type DocumentDetailDTO struct {
	model.IngestedDocument
	Chunks      []model.DocumentChunk `json:"chunks"`
	DownloadURL string                `json:"downloadUrl,omitempty"`
}

// TaskProducer 发布异步入库任务。
type TaskProducer interface {
	ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	// Upload 保存原始文件并发布异步入库任务。
	Upload(ctx context.Context, fileName string, r io.Reader, chunking *config.ChunkingConfig) (*model.IngestedDocument, error)
	// Ingest 同步入库已经提取好的文本段。
	Ingest(ctx context.Context, documentName string, segments []string, chunking *config.ChunkingConfig) (*model.IngestionReport, error)
	List(ctx context.Context) ([]model.IngestedDocument, error)
	Get(ctx context.Context, name string) (*DocumentDetailDTO, error)
}

type documentService struct {
	repo       repository.DocumentRepository
	store      storage.ObjectStore
	producer   TaskProducer
	extractors *extract.Registry
	pipeline   *pipeline.Pipeline
	defaults   config.ChunkingConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	repo repository.DocumentRepository,
	store storage.ObjectStore,
	producer TaskProducer,
	extractors *extract.Registry,
	p *pipeline.Pipeline,
	defaults config.ChunkingConfig,
) DocumentService {
	return &documentService{
		repo:       repo,
		store:      store,
		producer:   producer,
		extractors: extractors,
		pipeline:   p,
		defaults:   defaults,
	}
}

func (s *documentService) Upload(ctx context.Context, fileName string, r io.Reader, chunking *config.ChunkingConfig) (*model.IngestedDocument, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, fmt.Errorf("%w: file name is required", model.ErrInvalidArgument)
	}
	if !s.extractors.Supported(fileName) {
		return nil, fmt.Errorf("%w: unsupported file type %q", model.ErrInvalidArgument, filepath.Ext(fileName))
	}
	cfg := s.chunkingConfig(chunking)
	if err := chunker.Validate(cfg); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])
	objectName := storage.ObjectName(fileMD5, fileName)

	log.Infof("[DocumentService] 上传文件, name: %s, md5: %s, size: %d", fileName, fileMD5, len(data))
	if err := s.store.PutObject(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		return nil, err
	}

	doc := &model.IngestedDocument{
		Name:       fileName,
		FileMD5:    fileMD5,
		ObjectName: objectName,
		ChunkMode:  cfg.Mode,
		WindowSize: cfg.WindowSize,
		Overlap:    cfg.Overlap,
	}
	if err := s.repo.SavePending(ctx, doc); err != nil {
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}

	task := tasks.IngestionTask{DocumentName: fileName, ObjectName: objectName, FileMD5: fileMD5, Chunking: &cfg}
	if err := s.producer.ProduceIngestionTask(ctx, task); err != nil {
		log.Errorf("[DocumentService] 发布入库任务失败, name: %s, error: %v", fileName, err)
		return nil, fmt.Errorf("发布入库任务失败: %w", err)
	}
	return doc, nil
}

func (s *documentService) Ingest(ctx context.Context, documentName string, segments []string, chunking *config.ChunkingConfig) (*model.IngestionReport, error) {
	return s.pipeline.Ingest(ctx, documentName, segments, s.chunkingConfig(chunking))
}

func (s *documentService) List(ctx context.Context) ([]model.IngestedDocument, error) {
	return s.repo.List(ctx)
}

func (s *documentService) Get(ctx context.Context, name string) (*DocumentDetailDTO, error) {
	doc, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	chunks, err := s.repo.FindChunks(ctx, name)
	if err != nil {
		return nil, err
	}
	dto := &DocumentDetailDTO{IngestedDocument: *doc, Chunks: chunks}
	if doc.ObjectName != "" && s.store != nil {
		// 生成预签名的 URL，有效期为1小时
		url, err := s.store.PresignedURL(ctx, doc.ObjectName, time.Hour)
		if err != nil {
			log.Warnf("[DocumentService] 生成下载链接失败, name: %s, error: %v", name, err)
		} else {
			dto.DownloadURL = url
		}
	}
	return dto, nil
}

func (s *documentService) chunkingConfig(override *config.ChunkingConfig) config.ChunkingConfig {
	if override != nil {
		return *override
	}
	return s.defaults
}
