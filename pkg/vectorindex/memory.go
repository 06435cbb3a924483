package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"tender-match-go/internal/model"
)

// Ensure Memory implements the interface.
var _ Index = (*Memory)(nil)

type memoryEntry struct {
	entry model.IndexEntry
	seq   int64
}

// Memory 是基于暴力余弦相似度的进程内索引，用于离线模式与测试。
type Memory struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*memoryEntry
	nextSeq   int64
}

// NewMemory 创建一个固定维度的内存索引。
func NewMemory(dimension int) (*Memory, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", model.ErrInvalidConfiguration, dimension)
	}
	return &Memory{dimension: dimension, entries: make(map[string]*memoryEntry)}, nil
}

// Upsert 整体替换相同 ID 的记录；覆盖写保留该 ID 首次写入时的顺序号。
func (m *Memory) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, index expects %d",
				model.ErrDimensionMismatch, e.ID, len(e.Vector), m.dimension)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		stored := model.IndexEntry{ID: e.ID, Vector: append([]float32(nil), e.Vector...), Metadata: e.Metadata}
		if existing, ok := m.entries[e.ID]; ok {
			existing.entry = stored
			continue
		}
		m.entries[e.ID] = &memoryEntry{entry: stored, seq: m.nextSeq}
		m.nextSeq++
	}
	return nil
}

// Query 计算余弦相似度并返回前 topK 条，得分相同按写入顺序排列。
func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", model.ErrInvalidArgument, topK)
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			model.ErrDimensionMismatch, len(vector), m.dimension)
	}

	m.mu.RLock()
	candidates := make([]*memoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, e)
	}
	m.mu.RUnlock()

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.entry.ID] = cosine(vector, c.entry.Vector)
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := scores[candidates[i].entry.ID], scores[candidates[j].entry.ID]
		if si != sj {
			return si > sj
		}
		return candidates[i].seq < candidates[j].seq
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}
	matches := make([]model.Match, 0, topK)
	for _, c := range candidates[:topK] {
		matches = append(matches, model.Match{ID: c.entry.ID, Score: scores[c.entry.ID], Metadata: c.entry.Metadata})
	}
	return matches, nil
}

// Stats 报告记录数、维度以及已存储向量的模型版本。
func (m *Memory) Stats(ctx context.Context) (model.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return model.IndexStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := model.IndexStats{Count: int64(len(m.entries)), Dimension: m.dimension}
	var first int64 = math.MaxInt64
	for _, e := range m.entries {
		if e.seq < first {
			first = e.seq
			stats.ModelVersion = e.entry.Metadata.ModelVersion
		}
	}
	return stats, nil
}

// Delete 按 ID 删除记录。
func (m *Memory) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// DeleteFrom 删除文档中序号不小于 fromOrdinal 的记录。
func (m *Memory) DeleteFrom(ctx context.Context, documentKey string, fromOrdinal int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.entry.Metadata.DocumentKey == documentKey && e.entry.Metadata.ChunkOrdinal >= fromOrdinal {
			delete(m.entries, id)
		}
	}
	return nil
}

// Get 按 ID 返回记录，主要用于测试与诊断。
func (m *Memory) Get(id string) (model.IndexEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return model.IndexEntry{}, false
	}
	return e.entry, true
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
