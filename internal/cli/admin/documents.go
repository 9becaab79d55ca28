package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/service"
)

// IngestCmd ingests local files directly, without going through the API.
func IngestCmd() *cobra.Command {
	var (
		sourceID    string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the vector index",
		Long: `Extract, chunk and embed one or more files and store them in the configured collection.
Re-ingesting with the same --source-id replaces the previous chunks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID != "" && len(args) > 1 {
				return fmt.Errorf("--source-id can only be used with a single file")
			}
			outputFormat, _ := cmd.Flags().GetString("output")

			a, done, err := loadApp(cmd, appOptions{migrate: true, ensureCollection: true})
			if err != nil {
				return err
			}
			defer done()

			results := make([]handlers.IngestResponse, 0, len(args))
			for _, path := range args {
				var result *service.IngestResult
				err := traced(cmd.Context(), "ingest", func(ctx context.Context) error {
					var err error
					result, err = ingestFile(ctx, a.ingestion, path, sourceID, contentType)
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to ingest %s: %w", path, err)
				}
				results = append(results, handlers.NewIngestResponse(result))
				if outputFormat != "json" {
					fmt.Printf("Ingested %s: %s (%d chunks)\n", path, result.ID, result.ChunkCount)
				}
			}

			if outputFormat == "json" {
				return printJSON(results)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source-id", "", "Stable document id; replaces chunks from an earlier ingest")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (text/plain, text/markdown, application/pdf); default from extension")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func ingestFile(ctx context.Context, svc *service.IngestionService, path, sourceID, contentType string) (*service.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return svc.Ingest(ctx, service.IngestInput{
		SourceID:    sourceID,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	})
}

// DocumentsCmd groups bookkeeping commands for ingested documents.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage ingested documents",
		Long:  "List, inspect, reprocess and delete ingested documents",
	}

	cmd.AddCommand(documentsListCmd())
	cmd.AddCommand(documentsGetCmd())
	cmd.AddCommand(documentsReprocessCmd())
	cmd.AddCommand(documentsDeleteCmd())

	return cmd
}

func documentsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")

			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			page, err := a.ingestion.ListDocuments(cmd.Context(), cursor, limit)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			if outputFormat == "json" {
				resp := handlers.DocumentListResponse{
					Items:   make([]*handlers.DocumentResponse, 0, len(page.Items)),
					Cursor:  page.Cursor,
					HasMore: page.HasMore,
				}
				for _, d := range page.Items {
					resp.Items = append(resp.Items, handlers.NewDocumentResponse(d))
				}
				return printJSON(resp)
			}

			if len(page.Items) == 0 {
				fmt.Println("No documents found")
				return nil
			}
			fmt.Println("Documents:")
			for _, d := range page.Items {
				fmt.Printf("  %s  %-30s %-16s %d chunks\n", d.ID, d.Filename, d.ContentType, d.ChunkCount)
			}
			if page.HasMore {
				fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func documentsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")

			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			doc, err := a.ingestion.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}

			resp := handlers.NewDocumentResponse(doc)
			if outputFormat == "json" {
				return printJSON(resp)
			}
			fmt.Printf("ID:           %s\n", resp.ID)
			fmt.Printf("Filename:     %s\n", resp.Filename)
			fmt.Printf("Content type: %s\n", resp.ContentType)
			fmt.Printf("Chunks:       %d\n", resp.ChunkCount)
			fmt.Printf("Tier:         %s\n", resp.EmbeddingTier)
			fmt.Printf("Stored:       %t\n", resp.Stored)
			fmt.Printf("Updated:      %s\n", resp.UpdatedAt)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func documentsReprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Re-chunk and re-embed a stored document",
		Long:  "Fetch the stored source bytes from S3 and ingest them again under the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := loadApp(cmd, appOptions{migrate: true, ensureCollection: true})
			if err != nil {
				return err
			}
			defer done()

			var result *service.IngestResult
			err = traced(cmd.Context(), "reprocess", func(ctx context.Context) error {
				var err error
				result, err = a.ingestion.Reprocess(ctx, args[0])
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to reprocess document: %w", err)
			}
			fmt.Printf("Reprocessed %s (%d chunks)\n", result.ID, result.ChunkCount)
			return nil
		},
	}
}

func documentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			if err := a.ingestion.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
