package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"examrag/internal/ocr"
	"examrag/internal/pipeline"
	"examrag/internal/runs"

	"github.com/spf13/cobra"
)

var (
	backfillLimit int
	statsSubject  string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Topic linking maintenance",
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Create topic mappings for stored question chunks that have none",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *pipeline.Deps) error {
			limit := backfillLimit
			if limit <= 0 {
				limit = cfg.Tuning.Pools.BackfillDefault
			}
			res, err := d.Pipeline().Backfill(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d linked=%d skipped=%d mappings=%d\n",
				res.Scanned, res.Linked, res.Skipped, res.Mappings)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Corpus statistics",
}

var topicStatsCmd = &cobra.Command{
	Use:   "topics",
	Short: "How often each syllabus topic was examined, per year",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *pipeline.Deps) error {
			stats, err := d.Pipeline().TopicStats(ctx, statsSubject)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tMODULE\tTOPIC\tYEAR\tCOUNT\tAVG CONF\tPAPERS\tMATH")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%d\t%d\n", s.Subject, s.Module, s.TopicTitle,
					s.Year, s.Occurrences, s.AvgConfidence, s.PapersAppeared, s.MathHeavyCount)
			}
			return tw.Flush()
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the store, embedder, LLM and OCR providers are usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *pipeline.Deps) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:     %s ok\n", cfg.Store)

			emb, err := d.Embeddings.Embed(ctx, "verify embedding dimension")
			if err != nil {
				return fmt.Errorf("embedder (%s): %w", cfg.EmbedProvider, err)
			}
			fmt.Fprintf(out, "embedder:  %s ok (dim %d)\n", cfg.EmbedProvider, len(emb))

			if d.Linker.LLM != nil {
				fmt.Fprintf(out, "llm:       %s configured\n", cfg.LLMProvider)
			} else {
				fmt.Fprintln(out, "llm:       not configured (keyword linking only)")
			}

			router, _ := d.Extractor.Router.(*ocr.Router)
			if !router.Available() {
				fmt.Fprintln(out, "ocr:       no providers (images are skipped)")
				return nil
			}
			tiers := []struct {
				name      string
				providers []ocr.Provider
			}{{"general", router.General}, {"math", router.Math}, {"local", router.Local}}
			for _, tier := range tiers {
				for _, p := range tier.providers {
					fmt.Fprintf(out, "ocr:       %s %s\n", tier.name, p.Name)
				}
			}
			return nil
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List ingestion runs, or show one run with its file reports",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := runs.Open(cfg.RunsDir)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			run, err := ledger.Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tFILES\tCHUNKS\tSOURCE")
		for _, r := range ledger.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status, len(r.Files), r.Chunks, r.Source)
		}
		return tw.Flush()
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "maximum chunks to link (default from tuning)")
	linkCmd.AddCommand(backfillCmd)

	topicStatsCmd.Flags().StringVar(&statsSubject, "subject", "", "restrict to a subject")
	statsCmd.AddCommand(topicStatsCmd)

	rootCmd.AddCommand(linkCmd, statsCmd, verifyCmd, runsCmd)
}
