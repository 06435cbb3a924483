// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"tender-match-go/internal/config"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/metrics"
	"tender-match-go/pkg/tasks"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// Producer 发送入库任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIngestionTask 发送一个入库任务到 Kafka，消息 key 为任务键以保证同一文档有序。
func (p *Producer) ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是 kafka.Reader 中消费者用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AttemptCounter 记录任务失败次数，跨进程重启保留。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttempts 使用 Redis 计数失败次数，计数保留 24 小时。
type RedisAttempts struct {
	RDB *redis.Client
}

func (r RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	attemptsKey := "kafka:attempts:" + key
	attempts, err := r.RDB.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return 0, err
	}
	_ = r.RDB.Expire(ctx, attemptsKey, 24*time.Hour).Err()
	return attempts, nil
}

func (r RedisAttempts) Reset(ctx context.Context, key string) error {
	return r.RDB.Del(ctx, "kafka:attempts:"+key).Err()
}

// Consumer 消费入库任务。处理失败后按递增间隔原地重试，失败次数记录在 Redis 中，
// 达到 maxAttempts 次后提交 offset 终止重试。
type Consumer struct {
	reader      messageReader
	attempts    AttemptCounter
	processor   TaskProcessor
	maxAttempts int64
	backoff     time.Duration
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, attempts AttemptCounter, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, attempts, processor, cfg.MaxAttempts)
}

func newConsumer(r messageReader, attempts AttemptCounter, processor TaskProcessor, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{reader: r, attempts: attempts, processor: processor, maxAttempts: int64(maxAttempts), backoff: 2 * time.Second}
}

// Run 阻塞消费直到 ctx 取消或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return fmt.Errorf("fetch message: %w", err)
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.IngestionTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		metrics.TasksProcessed.WithLabelValues("malformed").Inc()
		return
	}

	log.Infof("开始处理入库任务: Document=%s, MD5=%s", task.DocumentName, task.FileMD5)
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: Document=%s", task.DocumentName)
			if c.attempts != nil {
				_ = c.attempts.Reset(ctx, task.Key())
			}
			c.commit(ctx, m)
			metrics.TasksProcessed.WithLabelValues("succeeded").Inc()
			return
		}

		log.Errorf("处理入库任务失败: Document=%s, Error: %v", task.DocumentName, err)
		metrics.TasksProcessed.WithLabelValues("failed").Inc()
		if c.attempts == nil {
			c.commit(ctx, m)
			return
		}
		attempts, incErr := c.attempts.Incr(ctx, task.Key())
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，等待重新投递
			log.Warnf("记录任务失败次数出错: %v", incErr)
			return
		}
		if attempts >= c.maxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: Document=%s", c.maxAttempts, task.DocumentName)
			c.commit(ctx, m)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempts)):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
