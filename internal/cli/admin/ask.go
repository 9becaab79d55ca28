package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/domain"
)

// AskCmd answers a question from the indexed documents.
func AskCmd() *cobra.Command {
	var (
		topK         int
		retrieveOnly bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Long: `Retrieve the chunks most similar to the question and, unless --retrieve-only is set,
ask the chat model to answer from them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			question := strings.Join(args, " ")

			a, done, err := loadApp(cmd, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer done()

			if retrieveOnly {
				var result *domain.RetrievalResult
				err := traced(cmd.Context(), "retrieve", func(ctx context.Context) error {
					var err error
					result, err = a.retrieval.Retrieve(ctx, question, topK)
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to retrieve: %w", err)
				}
				if outputFormat == "json" {
					return printJSON(handlers.NewRetrievalResponse(result))
				}
				printRetrieval(result)
				return nil
			}

			var answer *domain.Answer
			err = traced(cmd.Context(), "ask", func(ctx context.Context) error {
				var err error
				answer, err = a.retrieval.Answer(ctx, question, topK)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to answer: %w", err)
			}

			if outputFormat == "json" {
				return printJSON(handlers.AnswerResponse{
					Answer:          answer.Text,
					Generated:       answer.Generated,
					GenerationError: answer.GenerationError,
					Retrieval:       handlers.NewRetrievalResponse(answer.Retrieval),
				})
			}

			if answer.GenerationError != "" {
				fmt.Printf("Generation failed: %s\n\n", answer.GenerationError)
			} else {
				fmt.Println(answer.Text)
				fmt.Println()
			}
			printRetrieval(answer.Retrieval)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default DOCQA_TOP_K)")
	cmd.Flags().BoolVar(&retrieveOnly, "retrieve-only", false, "Print retrieved context without calling the chat model")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func printRetrieval(r *domain.RetrievalResult) {
	if !r.HasContext() {
		fmt.Println("No relevant context found")
		return
	}

	label := "Sources"
	if r.Degraded {
		label = "Sources (degraded: similarity search unavailable)"
	}
	fmt.Printf("%s, confidence %.2f:\n", label, r.Confidence)
	for i, src := range r.Sources {
		var score string
		if i < len(r.Hits) {
			score = fmt.Sprintf(" [%.3f %s]", r.Hits[i].Score, r.Hits[i].SourceID)
		}
		fmt.Printf("  %d.%s %s\n", i+1, score, truncate(src, 200))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
