package model

// ProjectFields 是起草新标书时由用户提供的结构化项目信息。
type ProjectFields struct {
	Title       string `json:"title"`
	Location    string `json:"location"`
	Budget      string `json:"budget"`
	Description string `json:"description"`
}
