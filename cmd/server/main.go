package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/invoiceflow/invoice-verifier/internal/chat"
	"github.com/invoiceflow/invoice-verifier/internal/checklist"
	"github.com/invoiceflow/invoice-verifier/internal/config"
	"github.com/invoiceflow/invoice-verifier/internal/export"
	"github.com/invoiceflow/invoice-verifier/internal/extraction"
	httpserver "github.com/invoiceflow/invoice-verifier/internal/interfaces/http"
	"github.com/invoiceflow/invoice-verifier/internal/pipeline"
	"github.com/invoiceflow/invoice-verifier/internal/reconcile"
	"github.com/invoiceflow/invoice-verifier/internal/repository"
	"github.com/invoiceflow/invoice-verifier/internal/storage"
	"github.com/invoiceflow/invoice-verifier/internal/summary"
	"github.com/invoiceflow/invoice-verifier/pkg/database"
	"github.com/invoiceflow/invoice-verifier/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Credentials may live in a local .env; absence is fine.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice verifier",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("extraction_override", cfg.Extraction.MockDataDir != ""))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	resultRepo := repository.NewResultRepository(db, logger)

	adapter, err := extraction.NewAdapter(cfg.Extraction, logger)
	if err != nil {
		logger.Fatal("Failed to initialize extraction adapter", zap.Error(err))
	}

	checker, err := checklist.NewChecker(cfg.Checklist.VendorRegistryPath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize checklist checker", zap.Error(err))
	}

	orchestrator := pipeline.NewOrchestrator(
		adapter,
		resultRepo,
		checker,
		reconcile.NewComparator(logger),
		summary.NewGenerator(),
		logger,
	)

	uploadStore, err := storage.NewLocalStore(cfg.Storage.UploadDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize upload storage", zap.Error(err))
	}

	chatRepo := repository.NewChatRepository(db, logger)
	followUp := chat.NewService(cfg.Extraction, chatRepo, logger)

	handlers := httpserver.NewHandlers(
		orchestrator,
		resultRepo,
		export.NewReportBuilder(logger),
		uploadStore,
		followUp,
		logger,
	)
	server := httpserver.NewServer(cfg.Server, handlers, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Invoice verifier stopped")
}
