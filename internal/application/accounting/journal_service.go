package accounting

import (
	"context"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JournalService exposes read access to the append-only journal and the one
// write operation the API offers directly: posting a reversal. Business
// events post through the Poster inside their own transactions; operators
// only ever read entries or reverse one.
type JournalService struct {
	entryRepo ledger.EntryRepository
	poster    *Poster
	logger    *zap.Logger
}

// NewJournalService creates a journal query/reversal service
func NewJournalService(entryRepo ledger.EntryRepository, poster *Poster, logger *zap.Logger) *JournalService {
	return &JournalService{
		entryRepo: entryRepo,
		poster:    poster,
		logger:    logger,
	}
}

// GetEntry loads one entry with its lines
func (s *JournalService) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "get_entry")
	defer span.End()

	entry, err := s.entryRepo.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return entry, nil
}

// GetEntryByReference loads one entry by its external reference
func (s *JournalService) GetEntryByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "get_entry_by_reference")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrExternalReference, reference)

	entry, err := s.entryRepo.FindByReference(ctx, reference)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return entry, nil
}

// ListEntries lists journal entries with pagination, newest first
func (s *JournalService) ListEntries(ctx context.Context, filter ledger.EntryFilter) (shared.Paginated[ledger.Entry], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "list_entries")
	defer span.End()

	filter.Normalize()
	entries, err := s.entryRepo.FindAll(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[ledger.Entry]{}, err
	}
	total, err := s.entryRepo.Count(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[ledger.Entry]{}, err
	}
	return shared.NewPaginated(entries, total, filter.Page, filter.PageSize), nil
}

// ReverseEntry posts the mirror of a previously posted entry. Re-running the
// same reversal returns the already-posted reversal entry.
func (s *JournalService) ReverseEntry(ctx context.Context, originalReference string, reason string) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "reverse_entry")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrExternalReference, originalReference)

	if reason == "" {
		err := shared.NewDomainError(shared.ErrValidation.Code, "A reversal needs a reason")
		telemetry.RecordError(span, err)
		return nil, err
	}

	entry, err := s.poster.PostReversal(ctx, originalReference, reason)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Entry reversed",
		zap.String("original_reference", originalReference),
		zap.String("reversal_reference", entry.ExternalReference),
	)
	return entry, nil
}
