package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"tender-match-go/pkg/log"
)

// 本地 L1 缓存的最大条目数，超过后整体清空。
const maxLocalEntries = 10000

type cachedVector struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// CachedClient 是带缓存的 Embedding 客户端包装器。
// 由于 embedding 对固定模型版本是确定性的，相同文本直接复用缓存向量。
type CachedClient struct {
	next   Client
	rdb    *redis.Client
	prefix string
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string][]float32
}

// NewCachedClient 创建缓存包装器，rdb 为 nil 时只使用进程内缓存。
func NewCachedClient(next Client, rdb *redis.Client, prefix string, ttl time.Duration) *CachedClient {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachedClient{
		next:   next,
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		local:  make(map[string][]float32),
	}
}

func (c *CachedClient) Dimensions() int { return c.next.Dimensions() }

func (c *CachedClient) ModelVersion() string { return c.next.ModelVersion() }

// CreateEmbedding 先查本地缓存，再查 Redis，都未命中时调用底层客户端并回写。
func (c *CachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	c.mu.RLock()
	vec, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		return cloneVector(vec), nil
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cached cachedVector
			if json.Unmarshal(data, &cached) == nil && len(cached.Vector) > 0 {
				c.setLocal(key, cached.Vector)
				return cloneVector(cached.Vector), nil
			}
		case err != redis.Nil:
			// Redis 异常不影响向量化，只记录日志
			log.Warnf("[EmbeddingCache] 读取缓存失败, key: %s, err: %v", key, err)
		}
	}

	vec, err := c.next.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.setLocal(key, vec)

	if c.rdb != nil {
		data, err := json.Marshal(cachedVector{Vector: vec, Model: c.next.ModelVersion(), CreatedAt: time.Now()})
		if err == nil {
			if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				log.Warnf("[EmbeddingCache] 写入缓存失败, key: %s, err: %v", key, err)
			}
		}
	}
	return cloneVector(vec), nil
}

// key 由模型版本和文本哈希组成，不同模型的向量不会互相命中。
func (c *CachedClient) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + c.next.ModelVersion() + ":" + hex.EncodeToString(hash[:16])
}

func (c *CachedClient) setLocal(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.local) >= maxLocalEntries {
		c.local = make(map[string][]float32)
	}
	c.local[key] = cloneVector(vec)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
