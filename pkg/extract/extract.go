// Package extract 把上传的原始文件转换为有序的文本段，供入库流水线使用。
package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"tender-match-go/pkg/tika"
)

// Extractor 从文件内容中提取文本段。段的顺序即文档中的阅读顺序。
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, fileName string) ([]string, error)
}

// PlainText 按空行把纯文本切成段落。
type PlainText struct{}

// Extract 读取全部文本，连续的非空行组成一个段。
func (PlainText) Extract(ctx context.Context, r io.Reader, fileName string) ([]string, error) {
	var (
		segments []string
		current  []string
	)
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, strings.Join(current, "\n"))
			current = current[:0]
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取文本文件 %s 失败: %w", fileName, err)
	}
	flush()
	return segments, nil
}

// Tika 通过 Tika 服务器提取任意格式的文本，结果再按纯文本规则分段。
type Tika struct {
	Client *tika.Client
}

func (t Tika) Extract(ctx context.Context, r io.Reader, fileName string) ([]string, error) {
	text, err := t.Client.ExtractText(ctx, r, fileName)
	if err != nil {
		return nil, err
	}
	return PlainText{}.Extract(ctx, strings.NewReader(text), fileName)
}

// Registry 根据文件扩展名选择提取器。
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry 注册内置的 txt/md/pdf/docx 提取器；tikaClient 非空时作为其他格式的兜底。
func NewRegistry(tikaClient *tika.Client) *Registry {
	r := &Registry{byExt: map[string]Extractor{
		".txt":  PlainText{},
		".md":   PlainText{},
		".text": PlainText{},
		".pdf":  PDF{},
		".docx": DOCX{},
	}}
	if tikaClient != nil {
		r.fallback = Tika{Client: tikaClient}
	}
	return r
}

// Register 为扩展名注册提取器，覆盖内置实现。
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// For 返回适用于 fileName 的提取器。没有匹配且未配置 Tika 时返回错误。
func (r *Registry) For(fileName string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if e, ok := r.byExt[ext]; ok {
		return e, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("不支持的文件类型: %q", ext)
}

// Supported 报告 fileName 是否有可用的提取器。
func (r *Registry) Supported(fileName string) bool {
	_, err := r.For(fileName)
	return err == nil
}
