package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docqad",
		Short: "docqa daemon and admin CLI",
		Long: `docqa daemon for serving the document question answering API and
for ingesting, querying and maintaining the index directly.

Configuration is read from DOCQA_* environment variables (and .env).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.DocumentsCmd())
	rootCmd.AddCommand(admin.AskCmd())
	rootCmd.AddCommand(admin.CollectionCmd())
	rootCmd.AddCommand(admin.ReembedCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
