package model

import "time"

// DraftRecord 是一次完成的起草结果，保存在 Redis 中供回看。
type DraftRecord struct {
	ID      string        `json:"id"`
	Fields  ProjectFields `json:"fields"`
	Content string        `json:"content"`
	// References 是作为参考资料送入提示词的分块 ID。
	References []string  `json:"references"`
	Stopped    bool      `json:"stopped"`
	CreatedAt  time.Time `json:"createdAt"`
}
