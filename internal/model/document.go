package model

import "time"

// 文档入库状态。
const (
	DocumentStatusPending = 0
	DocumentStatusIndexed = 1
	DocumentStatusFailed  = 2
	DocumentStatusEmpty   = 3
)

// IngestedDocument 对应于数据库中的 'documents' 表，记录每个文档最近一次入库的结果。
type IngestedDocument struct {
	Name       string    `gorm:"type:varchar(255);primaryKey" json:"name"`
	FileMD5    string    `gorm:"type:varchar(32);index" json:"fileMd5"`
	ObjectName string    `gorm:"type:varchar(512)" json:"objectName"`
	Status     int       `gorm:"type:tinyint;not null;default:0" json:"status"`
	ChunkMode  string    `gorm:"type:varchar(16)" json:"chunkMode"`
	WindowSize int       `json:"windowSize"`
	Overlap    int       `json:"overlap"`
	Attempted  int       `json:"attempted"`
	Stored     int       `json:"stored"`
	Skipped    int       `json:"skipped"`
	LastError  string    `gorm:"type:text" json:"lastError"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IngestedDocument) TableName() string {
	return "documents"
}

// DocumentChunk 对应于数据库中的 'document_chunks' 表，保存成功入库的分块文本。
type DocumentChunk struct {
	ChunkID      string `gorm:"type:varchar(64);primaryKey;column:chunk_id"`
	DocumentName string `gorm:"type:varchar(255);not null;index;column:document_name"`
	Ordinal      int    `gorm:"not null;column:ordinal"`
	Section      string `gorm:"type:varchar(255);column:section"`
	TextContent  string `gorm:"type:text;column:text_content"`
	ModelVersion string `gorm:"type:varchar(100);column:model_version"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
