package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.build(ctx)
			if err != nil {
				return err
			}
			if err := c.search.Verify(ctx); err != nil {
				return err
			}
			res, err := c.search.Search(ctx, strings.Join(args, " "), resolveTopK(topK, opts))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (defaults to retrieval.default_top_k)")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.search.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

// newMatchCmd 在同一个进程里导入语料并检索，配合 --memory 可以完全离线运行。
func newMatchCmd(opts *rootOptions) *cobra.Command {
	var (
		topK     int
		corpus   []string
		chunking chunkingFlags
	)
	cmd := &cobra.Command{
		Use:   "match --corpus <file|dir> <query>",
		Short: "Ingest a corpus and search it in one run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.build(ctx)
			if err != nil {
				return err
			}
			if _, err := ingestPaths(ctx, c, chunking.apply(opts.cfg.Chunking), corpus); err != nil {
				return err
			}
			res, err := c.search.Search(ctx, strings.Join(args, " "), resolveTopK(topK, opts))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (defaults to retrieval.default_top_k)")
	cmd.Flags().StringSliceVar(&corpus, "corpus", nil, "files or directories to ingest")
	_ = cmd.MarkFlagRequired("corpus")
	chunking.register(cmd)
	return cmd
}

func resolveTopK(flag int, opts *rootOptions) int {
	if flag != 0 {
		return flag
	}
	if opts.cfg.Retrieval.DefaultTopK > 0 {
		return opts.cfg.Retrieval.DefaultTopK
	}
	return 5
}
