package main

import (
	"context"

	"examrag/internal/pipeline"

	"github.com/spf13/cobra"
)

var querySubject string

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve matching question and syllabus chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *pipeline.Deps) error {
			res, err := d.Retriever.Query(ctx, args[0], querySubject)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	queryCmd.Flags().StringVar(&querySubject, "subject", "", "restrict results to a subject")
	rootCmd.AddCommand(queryCmd)
}
