package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docqa API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCQA_PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry := initTelemetry(cfg)
	defer shutdownTelemetry()

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	a, err := newApp(ctx, cfg, appOptions{
		migrate:          !noMigrate(cmd),
		ensureCollection: true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	router := server.NewRouter(server.RouterConfig{
		APIKey:          cfg.APIKey,
		Logger:          a.logger,
		DocumentHandler: handlers.NewDocumentHandler(a.ingestion),
		QueryHandler:    handlers.NewQueryHandler(a.retrieval),
	})
	if !cfg.HasAPIKey() {
		log.Println("DOCQA_API_KEY not set, API is unauthenticated")
	}

	var worker *jobs.Worker
	if rw := a.reembedWorker(); rw != nil && cfg.ReembedInterval > 0 {
		worker = jobs.NewWorker("reembed", rw, cfg.ReembedInterval, a.logger)
		go worker.Start(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if worker != nil {
		worker.Stop()
	}

	log.Println("server exited")
	return nil
}

// noMigrate reads the persistent --no-migrate flag from the root command.
func noMigrate(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-migrate")
	return v
}
