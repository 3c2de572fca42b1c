package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/observability/metrics"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	Import *domain.StatementImport `json:"import"`
	// Duplicate is set when the same file was already ingested for the
	// acquirer; Import is then the earlier import and nothing was written.
	Duplicate bool `json:"duplicate"`
}

// Service turns acquirer statement files into settlement transactions.
type Service struct {
	settlements *repository.SettlementRepo
	accounts    *repository.AccountRepo
	templates   *Registry
	log         *zap.Logger
	now         func() time.Time
}

func NewService(
	settlements *repository.SettlementRepo,
	accounts *repository.AccountRepo,
	templates *Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		settlements: settlements,
		accounts:    accounts,
		templates:   templates,
		log:         logging.OrNop(logger).Named("ingestion"),
		now:         time.Now,
	}
}

// Templates exposes the registry the service parses with.
func (s *Service) Templates() *Registry {
	return s.templates
}

// Ingest parses data with the given template and stores the import and its
// lines. Either every line is stored or none is.
func (s *Service) Ingest(ctx context.Context, data []byte, templateID, fileName string) (*IngestResult, error) {
	start := s.now()
	res, err := s.ingest(ctx, data, templateID, fileName)

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = string(domain.KindOf(err))
		if result == "" {
			result = metrics.ResultError
		}
	case res.Duplicate:
		result = "duplicate"
	}
	metrics.ObserveIngest(result, s.now().Sub(start))
	return res, err
}

func (s *Service) ingest(ctx context.Context, data []byte, templateID, fileName string) (*IngestResult, error) {
	tmpl, err := s.templates.Get(templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetAcquirer(ctx, tmpl.AcquirerID); err != nil {
		return nil, err
	}

	// Idempotency check via file hash.
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	existing, err := s.settlements.FindImportByHash(ctx, tmpl.AcquirerID, hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if existing != nil {
		s.log.Info("statement already ingested",
			zap.String("import_id", existing.ID),
			zap.String("acquirer_id", tmpl.AcquirerID),
			zap.String("file_hash", hash))
		return &IngestResult{Import: existing, Duplicate: true}, nil
	}

	parsed, err := Parse(tmpl, data)
	if err != nil {
		s.log.Warn("statement rejected",
			zap.String("template_id", tmpl.ID),
			zap.String("file_name", fileName),
			zap.Error(err))
		return nil, err
	}

	imp := &domain.StatementImport{
		ID:               uuid.NewString(),
		AcquirerID:       tmpl.AcquirerID,
		TemplateID:       tmpl.ID,
		TemplateVersion:  tmpl.Version,
		FileName:         fileName,
		FileHash:         hash,
		TransactionCount: len(parsed),
		ImportedAt:       s.now().UTC(),
	}
	lines := make([]domain.SettlementTransaction, len(parsed))
	for i, p := range parsed {
		lines[i] = domain.SettlementTransaction{
			ID:                uuid.NewString(),
			ImportID:          imp.ID,
			AcquirerID:        imp.AcquirerID,
			NSU:               p.NSU,
			GrossAmount:       p.GrossAmount,
			InstallmentNumber: p.InstallmentNumber,
			InstallmentTotal:  p.InstallmentTotal,
			Brand:             p.Brand,
			ExpectedDate:      p.ExpectedDate,
			Line:              p.Line,
		}
	}

	if err := s.settlements.InsertImport(ctx, imp, lines); err != nil {
		// A concurrent upload of the same file may have won the unique index.
		if again, lookupErr := s.settlements.FindImportByHash(ctx, tmpl.AcquirerID, hash); lookupErr == nil && again != nil {
			return &IngestResult{Import: again, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("insert import: %w", err)
	}

	s.log.Info("statement ingested",
		zap.String("import_id", imp.ID),
		zap.String("acquirer_id", imp.AcquirerID),
		zap.String("template", tmpl.ID+"@"+tmpl.Version),
		zap.Int("transactions", imp.TransactionCount))

	return &IngestResult{Import: imp}, nil
}
