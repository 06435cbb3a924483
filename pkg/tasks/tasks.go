// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "tender-match-go/internal/config"

// IngestionTask asks a worker to extract and ingest one uploaded document.
type IngestionTask struct {
	DocumentName string `json:"document_name"`
	ObjectName   string `json:"object_name"`
	FileMD5      string `json:"file_md5"`
	// Chunking overrides the server default when set.
	Chunking *config.ChunkingConfig `json:"chunking,omitempty"`
}

// Key identifies the task for retry bookkeeping.
func (t IngestionTask) Key() string {
	if t.FileMD5 != "" {
		return t.FileMD5
	}
	return t.DocumentName
}
