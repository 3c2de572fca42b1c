package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/api"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/config"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/observability/metrics"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/processing"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/reconciliation"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/scoring"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("initializing database", zap.String("path", cfg.DBPath))
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer db.Close()

	metrics.Init(db, logger)

	templates, err := ingestion.LoadDir(cfg.TemplatesDir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	logger.Info("templates loaded", zap.Int("count", len(templates.List())), zap.String("dir", cfg.TemplatesDir))

	scorer, err := scoring.NewScorer(cfg.Confidence)
	if err != nil {
		return err
	}

	// Create repositories.
	accounts := repository.NewAccountRepo(db)
	settlements := repository.NewSettlementRepo(db)
	installments := repository.NewInstallmentRepo(db)
	validations := repository.NewValidationRepo(db)

	// Seed reference data if the ledger is empty.
	ctx := context.Background()
	count, err := installments.Count(ctx)
	if err != nil {
		return fmt.Errorf("count installments: %w", err)
	}
	if count == 0 {
		logger.Info("ledger is empty, seeding from testdata")
		if err := seedLedger(ctx, cfg.SeedPath, accounts, installments, logger); err != nil {
			logger.Warn("seed failed", zap.Error(err))
		}
	} else {
		logger.Info("ledger already populated, skipping seed", zap.Int("installments", count))
	}

	router := api.NewRouter(api.Deps{
		Ingestion:    ingestion.NewService(settlements, accounts, templates, logger),
		Recon:        reconciliation.NewService(accounts, settlements, installments, validations, scorer, logger),
		Processing:   processing.NewService(db, validations, installments, accounts, logger),
		Settlements:  settlements,
		Installments: installments,
		Validations:  validations,
		Accounts:     accounts,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("card reconciliation server listening",
			zap.String("addr", "http://localhost:"+cfg.Port),
			zap.String("api", "/api/v1"),
			zap.String("metrics", "/metrics"))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedLedger(
	ctx context.Context,
	configured string,
	accounts *repository.AccountRepo,
	installments *repository.InstallmentRepo,
	logger *zap.Logger,
) error {
	// Try the configured path, then locations relative to the executable.
	candidates := []string{configured}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "seed.json"),
			filepath.Join(dir, "..", "..", "testdata", "seed.json"),
		)
	}

	var ds *seed.Dataset
	var loadErr error
	for _, path := range candidates {
		if path == "" {
			continue
		}
		ds, loadErr = seed.Load(path)
		if loadErr == nil {
			logger.Info("loaded seed", zap.String("path", path))
			break
		}
	}
	if ds == nil {
		return fmt.Errorf("could not find seed data in any candidate path: %w", loadErr)
	}

	sum, err := seed.Apply(ctx, accounts, installments, ds)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	logger.Info("seeded ledger",
		zap.Int("bank_accounts", sum.BankAccounts),
		zap.Int("acquirers", sum.Acquirers),
		zap.Int("installments", sum.Installments))
	return nil
}
