// Package model 包含了应用的数据模型定义。
package model

// Chunk 是文档文本中一段连续且有界的片段，是检索的最小单元。
type Chunk struct {
	ID           string `json:"id"`
	DocumentName string `json:"documentName"`
	Ordinal      int    `json:"ordinal"`
	// Section 仅在按标题分段模式下有值。
	Section    string `json:"section,omitempty"`
	Text       string `json:"text"`
	StartToken int    `json:"startToken"`
	EndToken   int    `json:"endToken"`
}

// EntryMetadata 是随向量一起存入索引的元数据。
type EntryMetadata struct {
	DocumentName string `json:"document_name"`
	DocumentKey  string `json:"document_key"`
	ChunkOrdinal int    `json:"chunk_ordinal"`
	Section      string `json:"section,omitempty"`
	Text         string `json:"text"`
	ModelVersion string `json:"model_version"`
}

// IndexEntry 是向量索引中的一条记录，相同 ID 的 upsert 会整体替换旧记录。
type IndexEntry struct {
	ID       string        `json:"id"`
	Vector   []float32     `json:"vector"`
	Metadata EntryMetadata `json:"metadata"`
}

// Match 是一次相似度查询的单条命中。
type Match struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata EntryMetadata `json:"metadata"`
}

// QueryResult 按相似度降序排列，长度不超过 topK。
type QueryResult struct {
	Query   string  `json:"query"`
	TopK    int     `json:"topK"`
	Matches []Match `json:"matches"`
}

// IndexStats 描述索引当前的规模与配置的向量维度。
type IndexStats struct {
	Count        int64  `json:"count"`
	Dimension    int    `json:"dimension"`
	ModelVersion string `json:"modelVersion,omitempty"`
}
