package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/model"
)

func entry(id, doc string, ordinal int, vec ...float32) model.IndexEntry {
	return model.IndexEntry{
		ID:     id,
		Vector: vec,
		Metadata: model.EntryMetadata{
			DocumentName: doc,
			DocumentKey:  doc,
			ChunkOrdinal: ordinal,
			Text:         id,
			ModelVersion: "m1",
		},
	}
}

func TestMemory_EmptyIndexQuery(t *testing.T) {
	idx, err := NewMemory(2)
	require.NoError(t, err)

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.IndexStats{Count: 0, Dimension: 2}, stats)
}

func TestMemory_QueryOrdering(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{
		entry("far", "d", 0, 0, 1),
		entry("near", "d", 1, 1, 0.1),
		entry("mid", "d", 2, 1, 1),
		entry("tie", "d", 3, 2, 2),
	}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "near", matches[0].ID)
	// mid 与 tie 得分相同，按写入顺序排列
	assert.Equal(t, "mid", matches[1].ID)
	assert.Equal(t, "tie", matches[2].ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestMemory_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{entry("a", "d", 0, 1, 0)}))
	updated := entry("a", "d", 0, 0, 1)
	updated.Metadata.Text = "new text"
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{updated}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, "m1", stats.ModelVersion)

	got, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got.Vector)
	assert.Equal(t, "new text", got.Metadata.Text)
}

func TestMemory_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(3)
	require.NoError(t, err)

	err = idx.Upsert(ctx, []model.IndexEntry{entry("ok", "d", 0, 1, 2, 3), entry("bad", "d", 1, 1, 2)})
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
	stats, _ := idx.Stats(ctx)
	assert.Equal(t, int64(0), stats.Count, "batch with a bad vector must not be partially stored")

	_, err = idx.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
	_, err = idx.Query(ctx, []float32{1, 2, 3}, 0)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = NewMemory(0)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestMemory_DeleteFrom(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(1)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{
		entry("a_0", "a", 0, 1),
		entry("a_1", "a", 1, 1),
		entry("a_2", "a", 2, 1),
		entry("b_2", "b", 2, 1),
	}))

	require.NoError(t, idx.DeleteFrom(ctx, "a", 1))

	_, ok := idx.Get("a_0")
	assert.True(t, ok)
	_, ok = idx.Get("a_1")
	assert.False(t, ok)
	_, ok = idx.Get("a_2")
	assert.False(t, ok)
	_, ok = idx.Get("b_2")
	assert.True(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemory(1)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []model.IndexEntry{
		entry("a_0", "a", 0, 1),
		entry("a_1", "a", 1, 1),
	}))

	require.NoError(t, idx.Delete(ctx, []string{"a_0", "missing"}))

	_, ok := idx.Get("a_0")
	assert.False(t, ok)
	_, ok = idx.Get("a_1")
	assert.True(t, ok)
	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)
}
