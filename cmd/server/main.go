// Package main 是应用程序的入口点。
package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tender-match-go/internal/app"
	"tender-match-go/internal/config"
	"tender-match-go/internal/handler"
	"tender-match-go/internal/model"
	"tender-match-go/internal/pipeline"
	"tender-match-go/internal/repository"
	"tender-match-go/internal/service"
	"tender-match-go/pkg/chunker"
	"tender-match-go/pkg/database"
	"tender-match-go/pkg/extract"
	"tender-match-go/pkg/kafka"
	"tender-match-go/pkg/llm"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/storage"
	"tender-match-go/pkg/tika"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("TENDER_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	// 3. 初始化数据库、Redis 与对象存储
	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	rdb, err := database.OpenRedis(initCtx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	defer rdb.Close()
	store, err := storage.NewMinIO(initCtx, cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	// 4. 初始化 embedding 与向量索引
	embeddingClient, err := app.NewEmbedder(cfg.Embedding, rdb)
	if err != nil {
		log.Fatal("Embedding 客户端初始化失败", err)
	}
	index, err := app.NewIndex(initCtx, cfg.Elasticsearch, embeddingClient)
	if err != nil {
		log.Fatal("向量索引初始化失败", err)
	}

	// 5. 初始化 Repository 与入库流水线
	documentRepo := repository.NewDocumentRepository(db)
	extractors := extract.NewRegistry(tika.NewClient(cfg.Tika))
	ingestPipeline := pipeline.NewPipeline(
		chunker.New(),
		embeddingClient,
		index,
		cfg.Ingestion,
		pipeline.WithRecorder(pipeline.NewLedgerRecorder(documentRepo)),
	)

	// 6. 初始化 Service (依赖注入)
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	searchService := service.NewSearchService(embeddingClient, index)
	if err := searchService.Verify(initCtx); err != nil {
		log.Fatal("索引与 embedding 模型不一致", err)
	}
	documentService := service.NewDocumentService(documentRepo, store, producer, extractors, ingestPipeline, cfg.Chunking)
	draftService := service.NewDraftService(searchService, llm.NewClient(cfg.LLM), cfg.LLM, cfg.Retrieval.ContextTopK, repository.NewDraftRepository(rdb))

	// 7. 启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(store, extractors, ingestPipeline, documentRepo, cfg.Chunking)
	consumer := kafka.NewConsumer(cfg.Kafka, kafka.RedisAttempts{RDB: rdb}, processor)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(consumerCtx); err != nil {
			log.Error("Kafka 消费者异常退出", err)
		}
	}()

	// 7.1 导入种子目录：走标准上传流程，内容未变化的文件跳过
	go importSeedFiles(consumerCtx, cfg.Ingestion.SeedDir, documentRepo, documentService)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Search:   handler.NewSearchHandler(searchService, cfg.Retrieval.DefaultTopK),
		Document: handler.NewDocumentHandler(documentService),
		Draft:    handler.NewDraftHandler(draftService),
	})

	// 9. 启动 HTTP 服务器
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Infof("服务器启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("启动服务器失败", err)
		}
	}()

	// 10. 实现优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务器强制关闭", err)
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}

	log.Info("服务器已优雅关闭")
}

// importSeedFiles 扫描目录下文件并通过标准上传流程导入（幂等）。
func importSeedFiles(ctx context.Context, dir string, repo repository.DocumentRepository, docs service.DocumentService) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("importSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("importSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(data) == 0 {
			log.Infof("importSeedFiles: 空文件跳过: %s", path)
			return nil
		}
		sum := md5.Sum(data)
		fileMD5 := hex.EncodeToString(sum[:])
		fileName := d.Name()

		// 幂等检查：内容未变且已入库则跳过
		if existing, ferr := repo.FindByName(ctx, fileName); ferr == nil &&
			existing.FileMD5 == fileMD5 && existing.Status == model.DocumentStatusIndexed {
			log.Infof("importSeedFiles: 已存在，跳过: %s (md5=%s)", fileName, fileMD5)
			return nil
		}

		if _, err := docs.Upload(ctx, fileName, bytes.NewReader(data), nil); err != nil {
			log.Warnf("importSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("importSeedFiles: 导入完成并已触发入库: %s", fileName)
		return nil
	})
	if walkErr != nil {
		log.Warnf("importSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
