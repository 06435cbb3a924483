package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/model"
)

const testConfig = `
log:
  level: "error"
embedding:
  provider: "hashing"
  dimensions: 32
  max_input_tokens: 128
  overflow: "truncate"
chunking:
  mode: "window"
  window_size: 8
  overlap: 2
retrieval:
  default_top_k: 2
`

func setup(t *testing.T) (configPath, corpus string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o644))

	corpus = filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	files := map[string]string{
		"bridge.txt": "construction of a steel bridge over the river",
		"school.txt": "renovation of primary school classrooms and roof",
		"road.txt":   "asphalt resurfacing of the national highway",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(corpus, name), []byte(content), 0o644))
	}
	return configPath, corpus
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMatch_FindsMostSimilarDocument(t *testing.T) {
	cfgPath, corpus := setup(t)

	out, err := run(t, "--config", cfgPath, "--memory", "match", "--corpus", corpus, "construction of a steel bridge over the river")
	require.NoError(t, err, out)

	var res model.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "bridge.txt", res.Matches[0].Metadata.DocumentName)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-4)
}

func TestMatch_TopKFlag(t *testing.T) {
	cfgPath, corpus := setup(t)

	out, err := run(t, "-c", cfgPath, "--memory", "match", "--corpus", corpus, "-k", "3", "school roof")
	require.NoError(t, err, out)

	var res model.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Matches, 3)
	assert.Equal(t, 3, res.TopK)
}

func TestIngest_PrintsReports(t *testing.T) {
	cfgPath, corpus := setup(t)

	out, err := run(t, "--config", cfgPath, "--memory", "ingest", corpus)
	require.NoError(t, err, out)

	var reports []model.IngestionReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, 1, r.Stored, r.DocumentName)
		assert.Empty(t, r.Failures)
	}
}

func TestIngest_InvalidChunkingOverride(t *testing.T) {
	cfgPath, corpus := setup(t)

	_, err := run(t, "--config", cfgPath, "--memory", "ingest", "--window-size", "4", "--overlap", "4", corpus)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestIngest_NoSupportedFiles(t *testing.T) {
	cfgPath, _ := setup(t)
	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "plan.dwg"), []byte("x"), 0o644))

	_, err := run(t, "--config", cfgPath, "--memory", "ingest", empty)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestStats_EmptyMemoryIndex(t *testing.T) {
	cfgPath, _ := setup(t)

	out, err := run(t, "--config", cfgPath, "--memory", "stats")
	require.NoError(t, err, out)

	var stats model.IndexStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.Count)
	assert.Equal(t, 32, stats.Dimension)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "stats")
	assert.Error(t, err)
}
