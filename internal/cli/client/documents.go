package client

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// IngestResult mirrors the POST /documents response body.
type IngestResult struct {
	ID            string `json:"id"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddingTier string `json:"embedding_tier"`
}

// Document mirrors the GET /documents/{id} response body.
type Document struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddingTier string `json:"embedding_tier"`
	Stored        bool   `json:"stored"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type documentPage struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// IngestCmd uploads a local file to the server.
func IngestCmd() *cobra.Command {
	var (
		sourceID    string
		contentType string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a document for indexing",
		Long: `Upload a plain text, markdown or PDF file. The server extracts, chunks and embeds it.
Re-uploading with the same --source-id replaces the previous chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close()

			stat, err := file.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat file: %w", err)
			}

			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			opts := UploadOptions{
				Filename:    filepath.Base(path),
				ContentType: detectContentType(path, contentType),
				SourceID:    sourceID,
			}
			if !quiet && !outputJSON(cmd) {
				opts.OnProgress = func(current, total int64) {
					if total > 0 {
						fmt.Fprintf(os.Stderr, "\rUploading %s: %d%%", opts.Filename, current*100/total)
					}
				}
			}

			resp, err := c.UploadDocument(cmd.Context(), file, stat.Size(), opts)
			if opts.OnProgress != nil {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return err
			}

			var result IngestResult
			if err := resp.Decode(&result); err != nil {
				return err
			}
			if outputJSON(cmd) {
				return printJSON(result)
			}
			fmt.Printf("Ingested %s: %s (%d chunks)\n", opts.Filename, result.ID, result.ChunkCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source-id", "", "Stable document id; replaces chunks from an earlier upload")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the content type detected from the extension")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print upload progress")

	return cmd
}

// detectContentType prefers an explicit override, then the extension.
// An empty result lets the server decide from the filename.
func detectContentType(path, override string) string {
	if override != "" {
		return override
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	}
	return ""
}

// DocumentsCmd groups remote document management commands.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage ingested documents",
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
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			resp, err := c.Get(cmd.Context(), "/documents?"+query.Encode())
			if err != nil {
				return err
			}
			var page documentPage
			if err := resp.Decode(&page); err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(page)
			}
			if len(page.Items) == 0 {
				fmt.Println("No documents found")
				return nil
			}
			for _, d := range page.Items {
				fmt.Printf("%s  %-30s %-16s %d chunks\n", d.ID, d.Filename, d.ContentType, d.ChunkCount)
			}
			if page.HasMore {
				fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func documentsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := c.Get(cmd.Context(), "/documents/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var doc Document
			if err := resp.Decode(&doc); err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(doc)
			}
			fmt.Printf("ID:           %s\n", doc.ID)
			fmt.Printf("Filename:     %s\n", doc.Filename)
			fmt.Printf("Content type: %s\n", doc.ContentType)
			fmt.Printf("Chunks:       %d\n", doc.ChunkCount)
			fmt.Printf("Tier:         %s\n", doc.EmbeddingTier)
			fmt.Printf("Stored:       %t\n", doc.Stored)
			fmt.Printf("Updated:      %s\n", doc.UpdatedAt)
			return nil
		},
	}
}

func documentsReprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Re-chunk and re-embed a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := c.Post(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/reprocess", nil)
			if err != nil {
				return err
			}
			var result IngestResult
			if err := resp.Decode(&result); err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(result)
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
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := c.Delete(cmd.Context(), "/documents/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
