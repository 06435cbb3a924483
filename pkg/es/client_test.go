package es

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
)

type recorded struct {
	method string
	path   string
	body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request, body string)
}

func newFakeES(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body string)) (*fakeES, *VectorIndex) {
	t.Helper()
	f := &fakeES{handler: handler}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		f.mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		f.handler(w, r, string(body))
	}))
	t.Cleanup(server.Close)

	idx, err := NewClient(config.ElasticsearchConfig{Addresses: server.URL, IndexName: "tenders"})
	require.NoError(t, err)
	return f, idx
}

func (f *fakeES) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestUpsert_WritesBulkIndexActions(t *testing.T) {
	f, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	})

	err := idx.Upsert(context.Background(), []model.IndexEntry{
		{ID: "k_0", Vector: []float32{0.1, 0.2}, Metadata: model.EntryMetadata{DocumentName: "a.txt", DocumentKey: "k", ChunkOrdinal: 0, Text: "first", ModelVersion: "m"}},
		{ID: "k_1", Vector: []float32{0.3, 0.4}, Metadata: model.EntryMetadata{DocumentName: "a.txt", DocumentKey: "k", ChunkOrdinal: 1, Text: "second", ModelVersion: "m"}},
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/tenders/_bulk", req.path)

	var lines []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(req.body))
	for sc.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 4)
	action := lines[0]["index"].(map[string]interface{})
	assert.Equal(t, "k_0", action["_id"])
	assert.Equal(t, "first", lines[1]["text"])
	assert.Equal(t, float64(1), lines[3]["chunk_ordinal"])
}

func TestUpsert_ItemFailures(t *testing.T) {
	_, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"_id":"k_0","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad dims"}}}]}`))
	})
	err := idx.Upsert(context.Background(), []model.IndexEntry{{ID: "k_0", Vector: []float32{1}}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "bad dims")

	_, idx = newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"_id":"k_0","status":429,"error":{"type":"es_rejected_execution_exception","reason":"queue full"}}}]}`))
	})
	err = idx.Upsert(context.Background(), []model.IndexEntry{{ID: "k_0", Vector: []float32{1}}})
	assert.ErrorIs(t, err, model.ErrIndexUnavailable)
}

func TestQuery_ParsesHitsInOrder(t *testing.T) {
	f, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"k_3","_score":0.95,"_source":{"document_name":"a.txt","document_key":"k","chunk_ordinal":3,"text":"bridge works","model_version":"m"}},
			{"_id":"j_0","_score":0.75,"_source":{"document_name":"b.txt","document_key":"j","chunk_ordinal":0,"text":"road works","model_version":"m"}}
		]}}`))
	})

	matches, err := idx.Query(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "k_3", matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-9)
	assert.InDelta(t, 0.5, matches[1].Score, 1e-9)
	assert.Equal(t, "b.txt", matches[1].Metadata.DocumentName)

	req := f.last()
	assert.Equal(t, "/tenders/_search", req.path)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	knn := body["knn"].(map[string]interface{})
	assert.Equal(t, float64(2), knn["k"])
	assert.Equal(t, float64(2), body["size"])
}

func TestQuery_MissingIndexIsEmpty(t *testing.T) {
	_, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})
	matches, err := idx.Query(context.Background(), []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_InvalidTopK(t *testing.T) {
	_, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {})
	_, err := idx.Query(context.Background(), []float32{1}, 0)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestStats(t *testing.T) {
	_, idx := newFakeES(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_mapping"):
			_, _ = w.Write([]byte(`{"tenders":{"mappings":{"_meta":{"model_version":"text-embedding-3-small"},"properties":{"vector":{"type":"dense_vector","dims":768}}}}}`))
		case strings.HasSuffix(r.URL.Path, "/_count"):
			_, _ = w.Write([]byte(`{"count":42}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.IndexStats{Count: 42, Dimension: 768, ModelVersion: "text-embedding-3-small"}, stats)
}

func TestEnsureIndex_CreatesMapping(t *testing.T) {
	f, idx := newFakeES(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})
	require.NoError(t, idx.EnsureIndex(context.Background(), 384, "bge-small"))

	req := f.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/tenders", req.path)
	assert.Contains(t, req.body, `"dims":384`)
	assert.Contains(t, req.body, `"similarity":"cosine"`)
	assert.Contains(t, req.body, `"model_version":"bge-small"`)

	assert.ErrorIs(t, idx.EnsureIndex(context.Background(), 0, "x"), model.ErrInvalidConfiguration)
}

func TestDeleteFrom_BuildsRangeQuery(t *testing.T) {
	f, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"deleted":2}`))
	})
	require.NoError(t, idx.DeleteFrom(context.Background(), "k", 5))
	req := f.last()
	assert.Equal(t, "/tenders/_delete_by_query", req.path)
	assert.Contains(t, req.body, `"document_key":"k"`)
	assert.Contains(t, req.body, `"gte":5`)
}

func TestDelete_WritesBulkDeleteActions(t *testing.T) {
	f, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"errors":false,"items":[{"delete":{"_id":"k_0","status":200}},{"delete":{"_id":"k_3","status":404}}]}`))
	})

	require.NoError(t, idx.Delete(context.Background(), []string{"k_0", "k_3"}))

	req := f.last()
	assert.Equal(t, "/tenders/_bulk", req.path)
	lines := strings.Split(strings.TrimSpace(req.body), "\n")
	require.Len(t, lines, 2)
	var action map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &action))
	assert.Equal(t, "k_3", action["delete"]["_id"])

	f.mu.Lock()
	sent := len(f.requests)
	f.mu.Unlock()
	require.NoError(t, idx.Delete(context.Background(), nil))
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.requests, sent, "no ids means no request")
}

func TestDelete_Unavailable(t *testing.T) {
	_, idx := newFakeES(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})
	err := idx.Delete(context.Background(), []string{"k_0"})
	assert.ErrorIs(t, err, model.ErrIndexUnavailable)
}

func TestUnavailableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	idx, err := NewClient(config.ElasticsearchConfig{Addresses: server.URL, IndexName: "tenders"})
	require.NoError(t, err)

	_, err = idx.Query(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, model.ErrIndexUnavailable)
	err = idx.Upsert(context.Background(), []model.IndexEntry{{ID: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, model.ErrIndexUnavailable)
	_, err = idx.Stats(context.Background())
	assert.ErrorIs(t, err, model.ErrIndexUnavailable)
}

func TestNewClient_RequiresIndexName(t *testing.T) {
	_, err := NewClient(config.ElasticsearchConfig{Addresses: "http://localhost:9200"})
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}
