package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tender-match-go/internal/config"
	"tender-match-go/internal/model"
	"tender-match-go/internal/pipeline"
)

// chunkingFlags 覆盖配置文件中的默认分块参数。
type chunkingFlags struct {
	mode       string
	windowSize int
	overlap    int
}

func (f *chunkingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "chunking mode: window | heading")
	cmd.Flags().IntVar(&f.windowSize, "window-size", 0, "chunk window size in tokens")
	cmd.Flags().IntVar(&f.overlap, "overlap", -1, "overlap between consecutive windows")
}

func (f *chunkingFlags) apply(base config.ChunkingConfig) config.ChunkingConfig {
	if f.mode != "" {
		base.Mode = f.mode
	}
	if f.windowSize != 0 {
		base.WindowSize = f.windowSize
	}
	if f.overlap >= 0 {
		base.Overlap = f.overlap
	}
	return base
}

func ingestPaths(ctx context.Context, c *components, cfg config.ChunkingConfig, paths []string) ([]*model.IngestionReport, error) {
	docs, err := pipeline.LoadDocuments(ctx, c.extractors, paths...)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no supported documents under %v", model.ErrInvalidArgument, paths)
	}
	return c.pipeline.IngestBatch(ctx, docs, cfg)
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var chunking chunkingFlags
	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Ingest tender documents into the vector index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.build(ctx)
			if err != nil {
				return err
			}
			reports, err := ingestPaths(ctx, c, chunking.apply(opts.cfg.Chunking), args)
			if perr := printJSON(cmd.OutOrStdout(), reports); perr != nil {
				return perr
			}
			return err
		},
	}
	chunking.register(cmd)
	return cmd
}
