package model

import "errors"

// 核心流程中的错误种类。调用方通过 errors.Is 判断种类，具体上下文由 %w 包装附带。
var (
	// ErrInvalidConfiguration 分块窗口/重叠等配置非法，或 embedding 模型与索引不一致。
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInputTooLong 输入超过模型最大 token 数（仅在 reject 策略下返回）。
	ErrInputTooLong = errors.New("input too long")

	// ErrDimensionMismatch 向量长度与索引维度不一致。
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidArgument 调用参数非法，例如 topK <= 0。
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndexUnavailable 向量索引暂时不可达，由调用方决定是否重试。
	ErrIndexUnavailable = errors.New("index unavailable")
)

// ErrDocumentNotFound 入库台账中没有该文档。
var ErrDocumentNotFound = errors.New("document not found")

// ErrDraftNotFound 草稿不存在或已过期。
var ErrDraftNotFound = errors.New("draft not found")
