package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/jobs"
)

// ReembedCmd runs one round of the background re-embed worker.
func ReembedCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Re-embed documents indexed by a fallback tier",
		Long: `Re-ingest stored documents whose chunks were embedded by a fallback tier,
so that every chunk in the collection comes from the primary tier.

Requires a database, an S3 source store and more than one embedding tier.
docqad serve runs the same round every DOCQA_REEMBED_INTERVAL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")

			a, done, err := loadApp(cmd, appOptions{migrate: true, ensureCollection: true})
			if err != nil {
				return err
			}
			defer done()

			if batch > 0 {
				a.cfg.ReembedBatchSize = batch
			}
			worker := a.reembedWorker()
			if worker == nil {
				return fmt.Errorf("re-embedding needs DATABASE_URL, S3 source storage and a fallback embedding tier")
			}

			var stats jobs.ReembedStats
			err = traced(cmd.Context(), "reembed", func(ctx context.Context) error {
				var err error
				stats, err = worker.RunRound(ctx)
				return err
			})
			if err != nil {
				return err
			}

			if outputFormat == "json" {
				return printJSON(stats)
			}
			fmt.Printf("Candidates: %d\nRe-embedded: %d\nFailed: %d\n", stats.Candidates, stats.Reembedded, stats.Failed)
			if stats.Deferred {
				fmt.Printf("Primary tier %s is not serving yet; remaining documents were left for a later round\n", a.embedder.TierNames()[0])
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&batch, "batch", "n", 0, "Documents to process (default DOCQA_REEMBED_BATCH_SIZE)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}
