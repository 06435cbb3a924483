package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dslipak/pdf"

	"tender-match-go/pkg/log"
)

// PDF 每一页提取为一个文本段，无法解析的页被跳过。
type PDF struct{}

func (PDF) Extract(ctx context.Context, r io.Reader, fileName string) ([]string, error) {
	// pdf.NewReader 需要 ReaderAt
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取 PDF 内容失败: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF %s 失败: %w", fileName, err)
	}

	var segments []string
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("[Extract] 解析 PDF %s 第 %d 页失败: %v", fileName, i, err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}
