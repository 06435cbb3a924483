package model

// 分块失败原因，与错误种类一一对应。
const (
	ReasonDimensionMismatch = "DimensionMismatch"
	ReasonInputTooLong      = "InputTooLong"
	ReasonEmbeddingFailed   = "EmbeddingFailed"
)

// ChunkFailure 记录单个分块被跳过的原因。
type ChunkFailure struct {
	Ordinal int    `json:"ordinal"`
	ChunkID string `json:"chunkId"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// IngestionReport 是一次文档入库的结果汇总。
type IngestionReport struct {
	DocumentName string         `json:"documentName"`
	DocumentKey  string         `json:"documentKey"`
	Skipped      bool           `json:"skipped"`
	Attempted    int            `json:"attempted"`
	Stored       int            `json:"stored"`
	Failures     []ChunkFailure `json:"failures"`
}

// SkippedCount 返回被跳过的分块数量。
func (r *IngestionReport) SkippedCount() int {
	return len(r.Failures)
}
