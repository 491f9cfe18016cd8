package main

import (
	"context"
	"fmt"

	"examrag/internal/metadata"
	"examrag/internal/pipeline"

	"github.com/spf13/cobra"
)

var ingestOverrides metadata.Overrides

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>",
	Short: "Extract, chunk, embed, upload and link a document or a directory of documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *pipeline.Deps) error {
			res, run, err := d.Pipeline().Ingest(ctx, args[0], ingestOverrides)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rep := range res.Reports {
				fmt.Fprintf(out, "%-40s chunks=%d uploaded=%d (%.0f%%) mappings=%d integrity=%s\n",
					rep.Filename, rep.TotalChunks, rep.ChunksUploaded, rep.UploadSuccessRate,
					rep.MappingsCreated, rep.Integrity.Status)
			}
			for file, ferr := range res.Failed {
				fmt.Fprintf(out, "%-40s FAILED: %v\n", file, ferr)
			}
			fmt.Fprintf(out, "Total chunks processed: %d\n", res.TotalChunks)
			if run != nil {
				fmt.Fprintf(out, "Run %s %s\n", run.ID, run.Status)
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOverrides.Subject, "subject", "", "subject override")
	ingestCmd.Flags().IntVar(&ingestOverrides.Year, "year", 0, "year override")
	ingestCmd.Flags().StringVar(&ingestOverrides.Paper, "paper", "", "paper code override")
	rootCmd.AddCommand(ingestCmd)
}
