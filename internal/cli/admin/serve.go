package admin

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/policyqa/internal/api/handlers"
	"github.com/cloo-solutions/policyqa/internal/config"
	"github.com/cloo-solutions/policyqa/internal/database"
	"github.com/cloo-solutions/policyqa/internal/gemini"
	"github.com/cloo-solutions/policyqa/internal/jobs"
	"github.com/cloo-solutions/policyqa/internal/parser"
	"github.com/cloo-solutions/policyqa/internal/repository"
	"github.com/cloo-solutions/policyqa/internal/server"
	"github.com/cloo-solutions/policyqa/internal/service"
	"github.com/cloo-solutions/policyqa/internal/storage"
	"github.com/cloo-solutions/policyqa/internal/telemetry"
	"github.com/cloo-solutions/policyqa/internal/vectorindex"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the policyqa API server. PORT from the environment is used unless --port is given.",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.HasSentry() {
		// Sample everything in development, 10% elsewhere.
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, source); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// A zero timeout leaves outbound calls without a deadline.
	outbound := &http.Client{Timeout: cfg.OutboundTimeout}

	index, err := buildVectorIndex(cfg, pool, outbound)
	if err != nil {
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	if closer, ok := index.(io.Closer); ok {
		defer closer.Close()
	}
	if err := index.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to prepare vector index: %w", err)
	}
	log.Printf("vector index '%s' ready (backend: %s)", cfg.IndexName, cfg.IndexBackend)

	parserOpts := []parser.Option{parser.WithHTTPClient(outbound)}
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready, fetched documents will be archived", cfg.S3Bucket)
		parserOpts = append(parserOpts, parser.WithArchiver(s3Client))
	}

	llm := gemini.NewClientWithConfig(gemini.Config{
		APIKey:              cfg.GoogleAPIKey,
		BaseURL:             cfg.GeminiBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		HTTPClient:          outbound,
	})

	runLogRepo := repository.NewRunLogRepository(pool)

	processor := service.NewQueryProcessor(
		parser.New(parserOpts...),
		service.NewIndexService(llm, index, service.WithNamespacePerDocument(cfg.NamespacePerDocument)),
		service.NewLLMService(llm),
		service.WithRunLogs(runLogRepo),
		service.WithMaxConcurrency(cfg.MaxConcurrentQuestions),
	)

	var pruneWorker *jobs.Worker
	if cfg.RunLogRetention > 0 {
		pruner := jobs.NewRunLogPruner(runLogRepo, cfg.RunLogRetention)
		pruneWorker = jobs.NewWorker("run-log-pruner", pruner, jobs.PruneInterval(cfg.RunLogRetention))
		go pruneWorker.Start(ctx)
		log.Printf("run log pruner started (retention: %s)", cfg.RunLogRetention)
	}

	router := server.NewRouter(server.RouterConfig{
		BearerToken: cfg.BearerToken,
		RunHandler:  handlers.NewRunHandler(processor),
	})

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

	if pruneWorker != nil {
		pruneWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildVectorIndex selects the configured backend. The pool is only used by
// the pgvector backend.
func buildVectorIndex(cfg *config.Config, pool *pgxpool.Pool, httpClient *http.Client) (service.VectorIndex, error) {
	switch cfg.IndexBackend {
	case config.BackendPgvector:
		return repository.NewVectorRepository(pool, cfg.IndexName, cfg.EmbeddingDimensions), nil
	case config.BackendMemory:
		return vectorindex.NewMemory(cfg.EmbeddingDimensions), nil
	default:
		index, err := vectorindex.NewPinecone(pineconeConfig(cfg, httpClient))
		if err != nil {
			return nil, err
		}
		return index, nil
	}
}

// pineconeConfig never reads PINECONE_ENVIRONMENT: serverless indexes are
// placed by PINECONE_CLOUD and PINECONE_REGION.
func pineconeConfig(cfg *config.Config, httpClient *http.Client) vectorindex.PineconeConfig {
	return vectorindex.PineconeConfig{
		APIKey:     cfg.PineconeAPIKey,
		IndexName:  cfg.IndexName,
		Dimension:  cfg.EmbeddingDimensions,
		Cloud:      cfg.PineconeCloud,
		Region:     cfg.PineconeRegion,
		APIURL:     cfg.PineconeAPIURL,
		HTTPClient: httpClient,
	}
}
