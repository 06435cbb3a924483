package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/config"
)

type recordingWriter struct {
	chunks []string
}

func (r *recordingWriter) WriteMessage(_ int, data []byte) error {
	r.chunks = append(r.chunks, string(data))
	return nil
}

func TestStreamChatMessages(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Scope\"}}]}\n\n"))
		_, _ = w.Write([]byte(": keep-alive\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\" of works\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n"))
	}))
	defer server.Close()

	c := NewClient(config.LLMConfig{BaseURL: server.URL + "/v1/", APIKey: "secret", Model: "m", Generation: config.LLMGenerationConfig{Temperature: 0.3}})
	w := &recordingWriter{}
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "draft"}}, nil, w)
	require.NoError(t, err)

	assert.Equal(t, []string{"Scope", " of works"}, w.chunks)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-9)
	assert.Nil(t, got.MaxTokens)
}

func TestStreamChatMessages_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewClient(config.LLMConfig{BaseURL: server.URL}).StreamChatMessages(context.Background(), nil, nil, &recordingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestParamsFromConfig(t *testing.T) {
	assert.Nil(t, ParamsFromConfig(config.LLMGenerationConfig{}))
	gp := ParamsFromConfig(config.LLMGenerationConfig{MaxTokens: 800})
	require.NotNil(t, gp)
	assert.Equal(t, 800, *gp.MaxTokens)
	assert.Nil(t, gp.TopP)
}
