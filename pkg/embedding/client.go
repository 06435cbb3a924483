// Package embedding provides clients that map text to fixed-dimension vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"tender-match-go/internal/config"
	"tender-match-go/pkg/log"
)

// Client defines the interface for an embedding client.
// Implementations are deterministic for a fixed model version.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Dimensions is fixed when the client is constructed.
	Dimensions() int
	// ModelVersion identifies the embedding space; ingest and query must agree on it.
	ModelVersion() string
}

// Provider names accepted in EmbeddingConfig.Provider.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Model dimensions for well known models, used when the config leaves dimensions unset.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-v4":      2048,
	"bge-m3":                 1024,
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return newOpenAICompatibleClient(cfg)
	case ProviderHashing:
		return NewHashingClient(cfg.Dimensions, cfg.MaxInputTokens, OverflowPolicy(cfg.Overflow))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	cfg        config.EmbeddingConfig
	dimensions int
	overflow   OverflowPolicy
	client     *http.Client
}

func newOpenAICompatibleClient(cfg config.EmbeddingConfig) (*openAICompatibleClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = modelDimensions[cfg.Model]
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions unknown for model %q, set embedding.dimensions", cfg.Model)
	}
	overflow := OverflowPolicy(cfg.Overflow)
	if err := overflow.validate(); err != nil {
		return nil, err
	}
	return &openAICompatibleClient{
		cfg:        cfg,
		dimensions: dimensions,
		overflow:   overflow,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) Dimensions() int { return c.dimensions }

func (c *openAICompatibleClient) ModelVersion() string { return c.cfg.Model }

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	input, err := applyOverflow(text, c.cfg.MaxInputTokens, c.overflow)
	if err != nil {
		return nil, err
	}
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(input))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{input},
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api")
	}
	vector := embeddingResp.Data[0].Embedding
	if err := checkFinite(vector); err != nil {
		return nil, err
	}

	log.Debugf("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(vector))
	return vector, nil
}

// checkFinite rejects vectors carrying NaN or Inf components.
func checkFinite(vector []float32) error {
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("malformed embedding: component %d is %v", i, v)
		}
	}
	return nil
}
