package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Infof("no init %d", 1)
		Error("no init", errors.New("boom"))
		Sync()
	})
}

func TestSetLoggerCapturesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	Infow("chunk stored", "ordinal", 3)
	Debugf("filtered out")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "chunk stored", entries[0].Message)
		assert.Equal(t, int64(3), entries[0].ContextMap()["ordinal"])
	}
}
