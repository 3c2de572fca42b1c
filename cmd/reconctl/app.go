package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/config"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/processing"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/reconciliation"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/scoring"
)

// app is everything a command needs, opened against the configured database.
type app struct {
	db           *sql.DB
	log          *zap.Logger
	accounts     *repository.AccountRepo
	settlements  *repository.SettlementRepo
	installments *repository.InstallmentRepo
	validations  *repository.ValidationRepo
	ingestion    *ingestion.Service
	recon        *reconciliation.Service
	processing   *processing.Service
}

func openApp(dbOverride string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbOverride != "" {
		cfg.DBPath = dbOverride
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}

	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	templates, err := ingestion.LoadDir(cfg.TemplatesDir)
	if err != nil {
		logger.Warn("templates not loaded", zap.String("dir", cfg.TemplatesDir), zap.Error(err))
		templates = ingestion.NewRegistry()
	}

	scorer, err := scoring.NewScorer(cfg.Confidence)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		db:           db,
		log:          logger,
		accounts:     repository.NewAccountRepo(db),
		settlements:  repository.NewSettlementRepo(db),
		installments: repository.NewInstallmentRepo(db),
		validations:  repository.NewValidationRepo(db),
	}
	a.ingestion = ingestion.NewService(a.settlements, a.accounts, templates, logger)
	a.recon = reconciliation.NewService(a.accounts, a.settlements, a.installments, a.validations, scorer, logger)
	a.processing = processing.NewService(db, a.validations, a.installments, a.accounts, logger)
	return a, nil
}

func (a *app) Close() {
	_ = a.log.Sync()
	a.db.Close()
}
