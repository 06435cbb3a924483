// Package cli 实现 tenderctl 命令行工具：离线导入历史标书、检索与查看索引状态。
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tender-match-go/internal/app"
	"tender-match-go/internal/config"
	"tender-match-go/internal/pipeline"
	"tender-match-go/internal/service"
	"tender-match-go/pkg/chunker"
	"tender-match-go/pkg/embedding"
	"tender-match-go/pkg/extract"
	"tender-match-go/pkg/log"
	"tender-match-go/pkg/tika"
	"tender-match-go/pkg/vectorindex"
)

type rootOptions struct {
	configPath string
	memory     bool
	logLevel   string

	cfg config.Config
}

// components 是单次命令运行所需的核心组件。
type components struct {
	embedder   embedding.Client
	index      vectorindex.Index
	pipeline   *pipeline.Pipeline
	search     service.SearchService
	extractors *extract.Registry
}

func (o *rootOptions) build(ctx context.Context) (*components, error) {
	emb, err := app.NewEmbedder(o.cfg.Embedding, nil)
	if err != nil {
		return nil, err
	}
	esCfg := o.cfg.Elasticsearch
	if o.memory {
		esCfg.Addresses = ""
	}
	idx, err := app.NewIndex(ctx, esCfg, emb)
	if err != nil {
		return nil, err
	}
	return &components{
		embedder:   emb,
		index:      idx,
		pipeline:   pipeline.NewPipeline(chunker.New(), emb, idx, o.cfg.Ingestion),
		search:     service.NewSearchService(emb, idx),
		extractors: extract.NewRegistry(tika.NewClient(o.cfg.Tika)),
	}, nil
}

// NewRootCmd 创建 tenderctl 的根命令。
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tenderctl",
		Short:         "tenderctl 导入历史标书并检索相似内容",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			level := opts.logLevel
			if level == "" {
				level = cfg.Log.Level
			}
			log.Init(level, "console", "")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./configs/config.yaml", "config file")
	root.PersistentFlags().BoolVar(&opts.memory, "memory", false, "use an in-process vector index instead of Elasticsearch")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newIngestCmd(opts),
		newSearchCmd(opts),
		newStatsCmd(opts),
		newMatchCmd(opts),
	)
	return root
}

// Execute 运行根命令，失败时以非零状态退出。
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
