package billing

import (
	"context"
	"errors"
	"io"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	csvimport "github.com/arungoks/tankerapp/internal/infrastructure/import"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ImportResult summarises a roster import
type ImportResult struct {
	TotalRows int                  `json:"total_rows"`
	Created   int                  `json:"created"`
	Updated   int                  `json:"updated"`
	Skipped   int                  `json:"skipped"`
	Errors    []csvimport.RowError `json:"errors,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
}

// RosterService maintains the apartment roster
type RosterService struct {
	store     tanker.Store
	layout    tanker.RosterLayout
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewRosterService creates a RosterService that seeds layout
func NewRosterService(store tanker.Store, layout tanker.RosterLayout, publisher shared.EventPublisher, logger *zap.Logger) *RosterService {
	if publisher == nil {
		publisher = shared.NoopEventPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{store: store, layout: layout, publisher: publisher, logger: logger.Named("roster")}
}

// Seed inserts the master apartment list when the roster is empty and
// returns the number of apartments inserted
func (s *RosterService) Seed(ctx context.Context) (int, error) {
	apartments, err := tanker.MasterApartmentList(s.layout)
	if err != nil {
		return 0, err
	}

	inserted := 0
	err = s.store.Transact(ctx, func(tx tanker.Tables) error {
		existing, err := tx.Apartments().All(ctx)
		if err != nil || len(existing) > 0 {
			return err
		}
		for _, a := range apartments {
			if err := tx.Apartments().Upsert(ctx, a); err != nil {
				return err
			}
		}
		inserted = len(apartments)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted == 0 {
		s.logger.Debug("Roster already present, skipping seed")
		return 0, nil
	}

	s.logger.Info("Seeded apartment roster",
		zap.Int("apartments", inserted),
		zap.Int("floors", s.layout.Floors),
		zap.Int("units_per_floor", s.layout.UnitsPerFloor))
	s.publishImported(ctx, inserted)
	return inserted, nil
}

// Import upserts the valid rows of a roster CSV in one transaction.
// Invalid rows are reported in the result and skipped. File-level problems
// (encoding, missing header, no rows) are ValidationErrors.
func (s *RosterService) Import(ctx context.Context, r io.Reader) (_ *ImportResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "roster", "import")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	file, err := csvimport.NewRosterParser(s.layout.DefaultOccupancy).Parse(r)
	if err != nil {
		if isFileError(err) {
			return nil, shared.WrapDomainError(shared.CodeValidation, err.Error(), err)
		}
		return nil, err
	}
	telemetry.SetAttributes(span, "total_rows", file.TotalRows, "valid_rows", len(file.Rows))

	result := &ImportResult{
		TotalRows: file.TotalRows,
		Skipped:   file.TotalRows - len(file.Rows),
		Errors:    file.Errors.Errors(),
		Truncated: file.Errors.IsTruncated(),
	}
	if len(file.Rows) == 0 {
		return result, nil
	}

	err = s.store.Transact(ctx, func(tx tanker.Tables) error {
		existing, err := tx.Apartments().All(ctx)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(existing))
		for _, a := range existing {
			known[a.Number] = true
		}
		created, updated := 0, 0
		for _, row := range file.Rows {
			apt, err := tanker.NewApartment(row.Number, row.DefaultOccupancy)
			if err != nil {
				return err
			}
			if err := tx.Apartments().Upsert(ctx, *apt); err != nil {
				return err
			}
			if known[apt.Number] {
				updated++
			} else {
				created++
			}
		}
		result.Created, result.Updated = created, updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Imported apartment roster",
		zap.Int("total_rows", result.TotalRows),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	s.publishImported(ctx, result.Created+result.Updated)
	return result, nil
}

func (s *RosterService) publishImported(ctx context.Context, count int) {
	if err := s.publisher.Publish(ctx, tanker.NewRosterImportedEvent(count)); err != nil {
		s.logger.Warn("Failed to publish roster event", zap.Error(err))
	}
}

func isFileError(err error) bool {
	return errors.Is(err, csvimport.ErrEmptyFile) ||
		errors.Is(err, csvimport.ErrInvalidEncoding) ||
		errors.Is(err, csvimport.ErrMissingHeader) ||
		errors.Is(err, csvimport.ErrNoDataRows)
}
