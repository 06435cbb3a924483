package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tender-match-go/internal/model"
)

const (
	draftKeyPrefix = "draft:"
	recentDraftKey = "drafts:recent"
	draftTTL       = 7 * 24 * time.Hour
	// 最近列表只保留这么多条
	maxRecentDrafts = 50
)

// DraftRepository 定义了草稿历史的存取接口。
type DraftRepository interface {
	Save(ctx context.Context, record *model.DraftRecord) error
	FindByID(ctx context.Context, id string) (*model.DraftRecord, error)
	// Recent 按时间倒序返回最近的草稿，已过期的条目被跳过。
	Recent(ctx context.Context, limit int) ([]model.DraftRecord, error)
}

type redisDraftRepository struct {
	redisClient *redis.Client
}

// NewDraftRepository 创建一个新的 DraftRepository 实例。
func NewDraftRepository(redisClient *redis.Client) DraftRepository {
	return &redisDraftRepository{redisClient: redisClient}
}

func (r *redisDraftRepository) Save(ctx context.Context, record *model.DraftRecord) error {
	if record.ID == "" {
		record.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, draftKeyPrefix+record.ID, jsonData, draftTTL)
	pipe.LPush(ctx, recentDraftKey, record.ID)
	pipe.LTrim(ctx, recentDraftKey, 0, maxRecentDrafts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *redisDraftRepository) FindByID(ctx context.Context, id string) (*model.DraftRecord, error) {
	jsonData, err := r.redisClient.Get(ctx, draftKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", model.ErrDraftNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	var record model.DraftRecord
	if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &record, nil
}

func (r *redisDraftRepository) Recent(ctx context.Context, limit int) ([]model.DraftRecord, error) {
	if limit <= 0 || limit > maxRecentDrafts {
		limit = maxRecentDrafts
	}
	ids, err := r.redisClient.LRange(ctx, recentDraftKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	records := make([]model.DraftRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = draftKeyPrefix + id
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get drafts: %w", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // 已过期
		}
		var record model.DraftRecord
		if err := json.Unmarshal([]byte(s), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
