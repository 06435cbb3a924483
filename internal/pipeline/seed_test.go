package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/pkg/extract"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDocuments_WalksDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bridge.txt"), "steel bridge\n\nriver crossing")
	writeFile(t, filepath.Join(dir, "nested", "school.md"), "# 学校\n\n教室翻新")
	writeFile(t, filepath.Join(dir, "nested", "drawing.dwg"), "binary")

	docs, err := LoadDocuments(context.Background(), extract.NewRegistry(nil), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	assert.Equal(t, "bridge.txt", docs[0].Name)
	assert.Equal(t, []string{"steel bridge", "river crossing"}, docs[0].Segments)
	assert.Equal(t, "school.md", docs[1].Name)
}

func TestLoadDocuments_SingleFileAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "tender.txt")
	b := filepath.Join(dir, "b", "tender.txt")
	writeFile(t, a, "first")
	writeFile(t, b, "second")

	docs, err := LoadDocuments(context.Background(), extract.NewRegistry(nil), a, b)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"first"}, docs[0].Segments)
}

func TestLoadDocuments_MissingPath(t *testing.T) {
	_, err := LoadDocuments(context.Background(), extract.NewRegistry(nil), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadDocuments_ThenIngestBatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.txt"), words(9, "one"))
	writeFile(t, filepath.Join(dir, "two.txt"), words(5, "two"))

	docs, err := LoadDocuments(context.Background(), extract.NewRegistry(nil), dir)
	require.NoError(t, err)

	p, idx := newTestPipeline(t, newScriptedEmbedder(t))
	reports, err := p.IngestBatch(context.Background(), docs, windowCfg)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	total := 0
	for _, r := range reports {
		total += r.Stored
	}
	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(total), stats.Count)
}
