package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/config"
)

func TestExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("extracted: " + string(body)))
	}))
	defer server.Close()

	c := NewClient(config.TikaConfig{ServerURL: server.URL + "/"})
	require.NotNil(t, c)
	text, err := c.ExtractText(context.Background(), strings.NewReader("raw"), "tender.pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted: raw", text)
}

func TestExtractText_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("encrypted document"))
	}))
	defer server.Close()

	_, err := NewClient(config.TikaConfig{ServerURL: server.URL}).ExtractText(context.Background(), strings.NewReader("x"), "a.doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestNewClient_Disabled(t *testing.T) {
	assert.Nil(t, NewClient(config.TikaConfig{}))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/octet-stream", detectMimeType("file.zzzunknown"))
	assert.Equal(t, "application/pdf", detectMimeType("x.pdf"))
}
