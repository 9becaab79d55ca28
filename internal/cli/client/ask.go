package client

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type hit struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
}

// RetrievalResult mirrors the /retrieve response body.
type RetrievalResult struct {
	Context         string   `json:"context"`
	Sources         []string `json:"sources"`
	Hits            []hit    `json:"hits"`
	Confidence      float64  `json:"confidence"`
	ConfidenceScale string   `json:"confidence_scale"`
	Degraded        bool     `json:"degraded"`
	EmbeddingTier   string   `json:"embedding_tier"`
}

// AnswerResult mirrors the /ask response body.
type AnswerResult struct {
	Answer          string          `json:"answer"`
	Generated       bool            `json:"generated"`
	GenerationError string          `json:"generation_error,omitempty"`
	Retrieval       RetrievalResult `json:"retrieval"`
}

// AskCmd asks the server to answer a question from its documents.
func AskCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := c.Post(cmd.Context(), "/ask", queryRequest{Question: strings.Join(args, " "), TopK: topK})
			if err != nil {
				return err
			}
			var answer AnswerResult
			if err := resp.Decode(&answer); err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(answer)
			}
			if answer.GenerationError != "" {
				fmt.Printf("Generation failed: %s\n\n", answer.GenerationError)
			} else {
				fmt.Println(answer.Answer)
				fmt.Println()
			}
			printSources(&answer.Retrieval)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (server default when 0)")

	return cmd
}

// RetrieveCmd prints the context the server would answer from.
func RetrieveCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the chunks most similar to a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := c.Post(cmd.Context(), "/retrieve", queryRequest{Question: strings.Join(args, " "), TopK: topK})
			if err != nil {
				return err
			}
			var result RetrievalResult
			if err := resp.Decode(&result); err != nil {
				return err
			}

			if outputJSON(cmd) {
				return printJSON(result)
			}
			printSources(&result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (server default when 0)")

	return cmd
}

func printSources(r *RetrievalResult) {
	if len(r.Sources) == 0 {
		fmt.Println("No relevant context found")
		return
	}

	if r.Degraded {
		fmt.Println("Similarity search unavailable, showing unranked chunks")
	}
	fmt.Printf("Sources (confidence %.2f, tier %s):\n", r.Confidence, r.EmbeddingTier)
	for i, src := range r.Sources {
		prefix := fmt.Sprintf("  %d.", i+1)
		if i < len(r.Hits) {
			prefix += fmt.Sprintf(" [%.3f %s]", r.Hits[i].Score, r.Hits[i].SourceID)
		}
		fmt.Printf("%s %s\n", prefix, snippet(src, 160))
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
