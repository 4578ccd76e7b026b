package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Poster translates business events into balanced ledger entries through the
// fixed posting policy. Every operation derives its external reference from
// the event's identity, so a replayed event posts the same reference and the
// ledger's duplicate-reference behavior returns the original entry instead of
// creating a second one.
//
// A Poster must join the unit of work of the business mutation that triggered
// the event: use WithRepos to rebind it to the transaction's repositories
// before posting. Posting outside that transaction would let the mutation
// commit without its ledger trace (or vice versa).
type Poster struct {
	accountRepo ledger.AccountRepository
	entryRepo   ledger.EntryRepository
	policy      *ledger.PostingPolicy
	logger      *zap.Logger
	metrics     *telemetry.BusinessMetrics
}

// PosterOption is a functional option for configuring the Poster
type PosterOption func(*Poster)

// WithBusinessMetrics wires posting counters; nil is ignored
func WithBusinessMetrics(metrics *telemetry.BusinessMetrics) PosterOption {
	return func(p *Poster) {
		p.metrics = metrics
	}
}

// NewPoster creates an accounting poster
func NewPoster(
	accountRepo ledger.AccountRepository,
	entryRepo ledger.EntryRepository,
	policy *ledger.PostingPolicy,
	logger *zap.Logger,
	opts ...PosterOption,
) *Poster {
	p := &Poster{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		policy:      policy,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithRepos returns a copy of the poster bound to the given repositories,
// typically the transaction-scoped ones of the current unit of work
func (p *Poster) WithRepos(accountRepo ledger.AccountRepository, entryRepo ledger.EntryRepository) *Poster {
	clone := *p
	clone.accountRepo = accountRepo
	clone.entryRepo = entryRepo
	return &clone
}

// Policy returns the posting policy the poster writes through
func (p *Poster) Policy() *ledger.PostingPolicy {
	return p.policy
}

// PostActivation records the revenue earned by activating a rental: the
// customer now owes the rental total (debit Accounts Receivable), the
// business has earned it (credit Rental Revenue). Reference:
// rental-{rentalID}-activation.
func (p *Poster) PostActivation(ctx context.Context, rentalID uuid.UUID, amount valueobject.Money) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "post_activation")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRentalID, rentalID.String(),
		telemetry.SpanAttrAmount, amount.String(),
	)

	ref, err := ledger.NewEventReference(ledger.AggregateTypeRental, rentalID, ledger.EventTypeActivation)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rule := p.policy.ActivationRule()
	entry, err := p.post(ctx, postRequest{
		reference:   ref.String(),
		eventType:   ledger.EventTypeActivation,
		rule:        rule,
		amount:      amount,
		description: fmt.Sprintf("Rental %s activated", rentalID),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return entry, nil
}

// PostPaymentCapture records a captured payment against an invoice: cash (or
// another configured method account) comes in, the receivable shrinks.
// paymentRef must be the payment's own stable identity (a gateway reference,
// a voucher number), never a random value: the reference
// invoice-{invoiceID}-payment-{paymentRef} is what makes a retried capture
// idempotent.
func (p *Poster) PostPaymentCapture(
	ctx context.Context,
	invoiceID uuid.UUID,
	amount valueobject.Money,
	methodAccountCode string,
	paymentRef string,
) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "post_payment_capture")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoiceID.String(),
		telemetry.SpanAttrAmount, amount.String(),
		telemetry.SpanAttrPaymentMethod, methodAccountCode,
	)

	ref, err := ledger.NewSubEventReference(ledger.AggregateTypeInvoice, invoiceID, ledger.EventTypePayment, paymentRef)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rule, err := p.policy.PaymentRule(methodAccountCode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	entry, err := p.post(ctx, postRequest{
		reference:         ref.String(),
		eventType:         ledger.EventTypePayment,
		rule:              rule,
		amount:            amount,
		description:       fmt.Sprintf("Payment %s captured for invoice %s", paymentRef, invoiceID),
		debitMustBeAsset:  true,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return entry, nil
}

// PostReversal posts the mirror entry of a previously posted one: every line
// flips side, so the pair nets to zero on each account. The reversal
// reference is derived from the original, which makes re-running a reversal
// as idempotent as any other post.
func (p *Poster) PostReversal(ctx context.Context, originalReference string, reason string) (*ledger.Entry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "post_reversal")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrExternalReference, originalReference)

	original, err := p.entryRepo.FindByReference(ctx, originalReference)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			err = shared.NewDomainError(shared.ErrNotFound.Code,
				fmt.Sprintf("No ledger entry with reference %s", originalReference))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	reversalRef, err := ledger.ReversalReference(originalReference)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	reversed, err := original.Reversed(reversalRef, time.Now(), reason)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	stored, err := p.entryRepo.Post(ctx, reversed)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	p.observePost(ctx, "reversal", reversed, stored)
	return stored, nil
}

// postRequest is everything the shared posting path needs for one two-line
// entry
type postRequest struct {
	reference        string
	eventType        ledger.EventType
	rule             ledger.PostingRule
	amount           valueobject.Money
	description      string
	debitMustBeAsset bool
}

// post resolves the rule's accounts, builds the balanced two-line entry and
// hands it to the append-only store. The returned entry is always the stored
// one; when the reference was already posted that is the original entry, not
// this attempt's.
func (p *Poster) post(ctx context.Context, req postRequest) (*ledger.Entry, error) {
	if !req.amount.IsPositive() {
		return nil, shared.NewDomainError(shared.ErrValidation.Code, "Posting amount must be positive")
	}

	debitAccount, err := p.resolveAccount(ctx, req.rule.DebitAccountCode)
	if err != nil {
		return nil, err
	}
	if req.debitMustBeAsset && debitAccount.Type != ledger.AccountTypeAsset {
		return nil, shared.NewDomainError(shared.ErrValidation.Code,
			fmt.Sprintf("Payment method account %s must be an asset account, got %s", debitAccount.Code, debitAccount.Type))
	}
	creditAccount, err := p.resolveAccount(ctx, req.rule.CreditAccountCode)
	if err != nil {
		return nil, err
	}

	debitLine, err := ledger.NewDebitLine(debitAccount.ID, req.amount)
	if err != nil {
		return nil, err
	}
	creditLine, err := ledger.NewCreditLine(creditAccount.ID, req.amount)
	if err != nil {
		return nil, err
	}

	entry, err := ledger.NewEntry(req.reference, time.Now(), req.description, []ledger.EntryLine{debitLine, creditLine})
	if err != nil {
		return nil, err
	}

	stored, err := p.entryRepo.Post(ctx, entry)
	if err != nil {
		return nil, err
	}
	p.observePost(ctx, req.eventType.String(), entry, stored)
	return stored, nil
}

// resolveAccount loads an account by code and rejects inactive or missing
// ones before any line is built
func (p *Poster) resolveAccount(ctx context.Context, code string) (*ledger.Account, error) {
	account, err := p.accountRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.ErrNotFound.Code,
				fmt.Sprintf("Posting account %s does not exist", code))
		}
		return nil, err
	}
	if !account.Active {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Posting account %s is deactivated", code))
	}
	return account, nil
}

// observePost logs and counts the outcome of one post, distinguishing a fresh
// entry from an idempotent replay of an earlier one
func (p *Poster) observePost(ctx context.Context, eventType string, attempted, stored *ledger.Entry) {
	replayed := stored.ID != attempted.ID
	if replayed {
		p.logger.Info("Ledger post replayed, returning original entry",
			zap.String("external_reference", stored.ExternalReference),
			zap.String("event_type", eventType),
			zap.String("entry_id", stored.ID.String()),
		)
		if p.metrics != nil {
			p.metrics.RecordEntryReplayed(ctx, eventType)
		}
		return
	}

	p.logger.Info("Ledger entry posted",
		zap.String("external_reference", stored.ExternalReference),
		zap.String("event_type", eventType),
		zap.String("entry_id", stored.ID.String()),
		zap.Int64("amount_minor", stored.TotalDebits().Amount()),
	)
	if p.metrics != nil {
		p.metrics.RecordEntryPosted(ctx, eventType, stored.TotalDebits().Amount())
	}
}
