// Package chunker 将提取出的文档文本切分为有界、可重叠的检索单元。
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
)

// 分块模式。
const (
	ModeWindow  = "window"
	ModeHeading = "heading"
)

// Chunker 定义了分块器接口。两种模式的输出形状一致，下游不区分模式。
type Chunker interface {
	Split(text string, cfg config.ChunkingConfig) ([]model.Chunk, error)
}

type textChunker struct{}

// New 创建默认分块器。
func New() Chunker {
	return &textChunker{}
}

// Validate 校验分块配置，在产生任何副作用之前调用。
func Validate(cfg config.ChunkingConfig) error {
	switch mode(cfg) {
	case ModeWindow:
		if cfg.WindowSize <= 0 {
			return fmt.Errorf("%w: window_size 必须为正数, got %d", model.ErrInvalidConfiguration, cfg.WindowSize)
		}
		if cfg.Overlap < 0 || cfg.Overlap >= cfg.WindowSize {
			return fmt.Errorf("%w: overlap 必须满足 0 <= overlap < window_size, got overlap=%d window_size=%d",
				model.ErrInvalidConfiguration, cfg.Overlap, cfg.WindowSize)
		}
		return nil
	case ModeHeading:
		return nil
	default:
		return fmt.Errorf("%w: 未知的分块模式 %q", model.ErrInvalidConfiguration, cfg.Mode)
	}
}

// Split 按配置切分文本。空白输入返回空序列而不是错误。
func (c *textChunker) Split(text string, cfg config.ChunkingConfig) ([]model.Chunk, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if mode(cfg) == ModeHeading {
		return splitByHeadings(text), nil
	}
	return splitWindows(strings.Fields(text), cfg.WindowSize, cfg.Overlap), nil
}

func mode(cfg config.ChunkingConfig) string {
	if cfg.Mode == "" {
		return ModeWindow
	}
	return strings.ToLower(cfg.Mode)
}

// splitWindows 以 windowSize 个 token 为窗口、每次前进 windowSize-overlap 个 token。
// 最后一个窗口覆盖到末尾 token 后停止，因此它可能短于 windowSize。
func splitWindows(tokens []string, windowSize, overlap int) []model.Chunk {
	if len(tokens) == 0 {
		return nil
	}
	step := windowSize - overlap
	chunks := make([]model.Chunk, 0, len(tokens)/step+1)
	for start := 0; ; start += step {
		end := start + windowSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, model.Chunk{
			Ordinal:    len(chunks),
			Text:       strings.Join(tokens[start:end], " "),
			StartToken: start,
			EndToken:   end,
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

type section struct {
	title string
	lines []string
}

// splitByHeadings 按标题行切分：全大写行或以冒号结尾的行开启新的命名段落。
// 第一个标题之前的文本作为无名前言段落。
func splitByHeadings(text string) []model.Chunk {
	var sections []section
	current := section{}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			sections = append(sections, current)
			current = section{title: strings.TrimRight(trimmed, ":： ")}
		}
		current.lines = append(current.lines, line)
	}
	sections = append(sections, current)

	var chunks []model.Chunk
	position := 0
	for _, s := range sections {
		body := strings.TrimSpace(strings.Join(s.lines, "\n"))
		if body == "" {
			continue
		}
		n := len(strings.Fields(body))
		chunks = append(chunks, model.Chunk{
			Ordinal:    len(chunks),
			Section:    s.title,
			Text:       body,
			StartToken: position,
			EndToken:   position + n,
		})
		position += n
	}
	return chunks
}

func isHeading(line string) bool {
	if line == "" {
		return false
	}
	if strings.HasSuffix(line, ":") || strings.HasSuffix(line, "：") {
		return true
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
