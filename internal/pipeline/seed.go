package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tender-match-go/pkg/extract"
	"tender-match-go/pkg/log"
)

// LoadDocuments 遍历给定的文件或目录，提取所有支持格式的文件文本。
// 文档名取文件名；不支持的格式与提取失败的文件只记录日志并跳过。
func LoadDocuments(ctx context.Context, extractors *extract.Registry, paths ...string) ([]DocumentInput, error) {
	var docs []DocumentInput
	seen := make(map[string]string)
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if doc, ok := loadFile(ctx, extractors, root, seen); ok {
				docs = append(docs, doc)
			}
			continue
		}
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warnf("LoadDocuments: 访问路径失败: %s, err=%v", path, err)
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if doc, ok := loadFile(ctx, extractors, path, seen); ok {
				docs = append(docs, doc)
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return docs, nil
}

func loadFile(ctx context.Context, extractors *extract.Registry, path string, seen map[string]string) (DocumentInput, bool) {
	name := filepath.Base(path)
	if !extractors.Supported(name) {
		log.Infof("LoadDocuments: 不支持的文件类型，跳过: %s", path)
		return DocumentInput{}, false
	}
	// 文档名决定分块 ID，同名文件会互相覆盖
	if prev, dup := seen[name]; dup {
		log.Warnf("LoadDocuments: 文件名重复，跳过: %s (已导入 %s)", path, prev)
		return DocumentInput{}, false
	}
	extractor, err := extractors.For(name)
	if err != nil {
		return DocumentInput{}, false
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warnf("LoadDocuments: 打开文件失败: %s, err=%v", path, err)
		return DocumentInput{}, false
	}
	defer f.Close()

	segments, err := extractor.Extract(ctx, f, name)
	if err != nil {
		log.Warnf("LoadDocuments: 提取文本失败: %s, err=%v", path, err)
		return DocumentInput{}, false
	}
	seen[name] = path
	return DocumentInput{Name: name, Segments: segments}, true
}
