// Ragd is a document ingestion and retrieval-augmented query daemon.
//
// Clients upload documents over HTTP, ragd parses, chunks, embeds and
// indexes them into a session-scoped vector index, and answers
// natural-language questions from that index with cited passages.
//
// Usage:
//
//	# Start the daemon with defaults
//	ragd
//
//	# Use a specific config file
//	ragd -config /etc/ragd/config.yaml
//
//	# Configure via environment
//	RAGD_SERVER_PORT=9090 RAGD_OPENAI_API_KEY=sk-... ragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ratelimit"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/samples"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd           Start the ragd daemon\n")
			fmt.Fprintf(os.Stderr, "  ragd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("ragd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all services and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
	)

	store, err := document.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer store.Close()

	index, err := vectorstore.New(cfg.VectorStore, cfg.OpenAI.EmbeddingDimension, logger.Underlying())
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	defer index.Close()

	embedder, err := embeddings.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	completer, err := answer.NewOpenAICompleter(cfg.OpenAI)
	if err != nil {
		return fmt.Errorf("creating completion client: %w", err)
	}

	ingestSvc := ingest.NewService(store, index, embedder, cfg.Ingest, logger)
	ingestSvc.Start(ctx)
	defer ingestSvc.Stop()

	engine := retrieval.NewEngine(index, embedder, logger)
	synthesizer := answer.NewSynthesizer(engine, completer, logger)

	limiter := ratelimit.New(cfg.RateLimit)
	defer limiter.Close()

	if cfg.Server.SeedDir != "" {
		seeder := samples.NewSeeder(ingestSvc, store, logger)
		if err := seeder.Seed(ctx, cfg.Server.SeedDir); err != nil {
			logger.Warn(ctx, "sample seeding failed", zap.Error(err))
		}
	}

	srv, err := ragdhttp.NewServer(ingestSvc, engine, synthesizer, limiter, logger, *cfg)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
