// Package es 提供了基于 Elasticsearch dense_vector 的向量索引实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/vectorindex"
)

// Ensure VectorIndex implements the interface.
var _ vectorindex.Index = (*VectorIndex)(nil)

// VectorIndex 是 Elasticsearch 上的一个向量索引。
type VectorIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// esDocument 定义了存储在 Elasticsearch 中的文档结构。
type esDocument struct {
	DocumentName string    `json:"document_name"`
	DocumentKey  string    `json:"document_key"`
	ChunkOrdinal int       `json:"chunk_ordinal"`
	Section      string    `json:"section,omitempty"`
	Text         string    `json:"text"`
	Vector       []float32 `json:"vector,omitempty"`
	ModelVersion string    `json:"model_version"`
}

// NewClient 初始化 Elasticsearch 客户端
func NewClient(esCfg config.ElasticsearchConfig) (*VectorIndex, error) {
	if esCfg.IndexName == "" {
		return nil, fmt.Errorf("%w: elasticsearch index_name 不能为空", model.ErrInvalidConfiguration)
	}
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{client: client, indexName: esCfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则按给定维度创建，并把模型版本写入 _meta。
func (v *VectorIndex) EnsureIndex(ctx context.Context, dims int, modelVersion string) error {
	if dims <= 0 {
		return fmt.Errorf("%w: 向量维度必须为正数, got %d", model.ErrInvalidConfiguration, dims)
	}
	res, err := esapi.IndicesExistsRequest{Index: []string{v.indexName}}.Do(ctx, v.client)
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return unavailable("indices.exists", err)
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", v.indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", v.indexName, res.StatusCode)
		return statusError("indices.exists", res.StatusCode, "")
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"_meta": map[string]interface{}{"model_version": modelVersion},
			"properties": map[string]interface{}{
				"document_name": map[string]interface{}{"type": "keyword"},
				"document_key":  map[string]interface{}{"type": "keyword"},
				"chunk_ordinal": map[string]interface{}{"type": "integer"},
				"section":       map[string]interface{}{"type": "keyword"},
				"text":          map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				"model_version": map[string]interface{}{"type": "keyword"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err = esapi.IndicesCreateRequest{Index: v.indexName, Body: bytes.NewReader(body)}.Do(ctx, v.client)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", v.indexName, err)
		return unavailable("indices.create", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", v.indexName, res.String())
		return statusError("indices.create", res.StatusCode, readBody(res.Body))
	}

	log.Infof("索引 '%s' 创建成功, dims: %d, model: %s", v.indexName, dims, modelVersion)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Upsert 使用 bulk index 动作写入，文档 ID 即分块 ID，同 ID 写入整体替换旧文档。
func (v *VectorIndex) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": v.indexName, "_id": e.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(toESDocument(e)); err != nil {
			return err
		}
	}

	return v.bulk(ctx, &buf)
}

// Delete 使用 bulk delete 动作按分块 ID 删除，不存在的文档 (404) 不视为错误。
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		action := map[string]interface{}{"delete": map[string]interface{}{"_index": v.indexName, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return err
		}
	}
	return v.bulk(ctx, &buf)
}

func (v *VectorIndex) bulk(ctx context.Context, body io.Reader) error {
	res, err := esapi.BulkRequest{Index: v.indexName, Body: body, Refresh: "wait_for"}.Do(ctx, v.client)
	if err != nil {
		log.Errorf("批量写入 Elasticsearch 失败: %v", err)
		return unavailable("bulk", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return statusError("bulk", res.StatusCode, readBody(res.Body))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if !br.Errors {
		return nil
	}
	var errs []error
	retryable := false
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil || result.Status == http.StatusNotFound {
				continue
			}
			if result.Status >= 500 || result.Status == http.StatusTooManyRequests {
				retryable = true
			}
			errs = append(errs, fmt.Errorf("%s: %s: %s", result.ID, result.Error.Type, result.Error.Reason))
		}
	}
	joined := errors.Join(errs...)
	if retryable {
		return fmt.Errorf("%w: bulk partially failed: %v", model.ErrIndexUnavailable, joined)
	}
	return fmt.Errorf("bulk partially failed: %w", joined)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query 执行 kNN 查询，结果顺序即 Elasticsearch 返回的顺序。
// cosine 相似度下 ES 的得分为 (1+cos)/2，这里换算回余弦相似度。
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", model.ErrInvalidArgument, topK)
	}
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"size":    topK,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := esapi.SearchRequest{Index: []string{v.indexName}, Body: &buf}.Do(ctx, v.client)
	if err != nil {
		log.Errorf("[VectorIndex] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, unavailable("search", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		// 索引尚未创建，等同于空索引
		return []model.Match{}, nil
	}
	if res.IsError() {
		log.Errorf("[VectorIndex] Elasticsearch 返回错误, status: %s", res.Status())
		return nil, statusError("search", res.StatusCode, readBody(res.Body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	matches := make([]model.Match, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		matches = append(matches, model.Match{
			ID:    hit.ID,
			Score: 2*hit.Score - 1,
			Metadata: model.EntryMetadata{
				DocumentName: hit.Source.DocumentName,
				DocumentKey:  hit.Source.DocumentKey,
				ChunkOrdinal: hit.Source.ChunkOrdinal,
				Section:      hit.Source.Section,
				Text:         hit.Source.Text,
				ModelVersion: hit.Source.ModelVersion,
			},
		})
	}
	return matches, nil
}

type mappingResponse map[string]struct {
	Mappings struct {
		Meta struct {
			ModelVersion string `json:"model_version"`
		} `json:"_meta"`
		Properties struct {
			Vector struct {
				Dims int `json:"dims"`
			} `json:"vector"`
		} `json:"properties"`
	} `json:"mappings"`
}

// Stats 返回文档数以及 mapping 中配置的向量维度与模型版本。索引不存在时返回零值。
func (v *VectorIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	var stats model.IndexStats

	res, err := esapi.IndicesGetMappingRequest{Index: []string{v.indexName}}.Do(ctx, v.client)
	if err != nil {
		return stats, unavailable("indices.get_mapping", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return stats, nil
	}
	if res.IsError() {
		return stats, statusError("indices.get_mapping", res.StatusCode, readBody(res.Body))
	}
	var mr mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mr); err != nil {
		return stats, fmt.Errorf("解析 mapping 响应失败: %w", err)
	}
	for _, idx := range mr {
		stats.Dimension = idx.Mappings.Properties.Vector.Dims
		stats.ModelVersion = idx.Mappings.Meta.ModelVersion
	}

	countRes, err := esapi.CountRequest{Index: []string{v.indexName}}.Do(ctx, v.client)
	if err != nil {
		return stats, unavailable("count", err)
	}
	defer countRes.Body.Close()
	if countRes.IsError() {
		return stats, statusError("count", countRes.StatusCode, readBody(countRes.Body))
	}
	var cr struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(countRes.Body).Decode(&cr); err != nil {
		return stats, fmt.Errorf("解析 count 响应失败: %w", err)
	}
	stats.Count = cr.Count
	return stats, nil
}

// DeleteFrom 通过 delete_by_query 删除文档中序号 >= fromOrdinal 的旧分块。
func (v *VectorIndex) DeleteFrom(ctx context.Context, documentKey string, fromOrdinal int) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"document_key": documentKey}},
					{"range": map[string]interface{}{"chunk_ordinal": map[string]interface{}{"gte": fromOrdinal}}},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return err
	}
	refresh := true
	res, err := esapi.DeleteByQueryRequest{
		Index:     []string{v.indexName},
		Body:      bytes.NewReader(body),
		Refresh:   &refresh,
		Conflicts: "proceed",
	}.Do(ctx, v.client)
	if err != nil {
		return unavailable("delete_by_query", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return statusError("delete_by_query", res.StatusCode, readBody(res.Body))
	}
	return nil
}

func toESDocument(e model.IndexEntry) esDocument {
	return esDocument{
		DocumentName: e.Metadata.DocumentName,
		DocumentKey:  e.Metadata.DocumentKey,
		ChunkOrdinal: e.Metadata.ChunkOrdinal,
		Section:      e.Metadata.Section,
		Text:         e.Metadata.Text,
		Vector:       e.Vector,
		ModelVersion: e.Metadata.ModelVersion,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: elasticsearch %s: %v", model.ErrIndexUnavailable, op, err)
}

// statusError 把 5xx 与 429 归为暂时不可用，其余状态码作为普通错误返回。
func statusError(op string, status int, body string) error {
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: elasticsearch %s returned %d: %s", model.ErrIndexUnavailable, op, status, body)
	}
	return fmt.Errorf("elasticsearch %s returned %d: %s", op, status, body)
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return string(b)
}
