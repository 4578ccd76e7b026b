package billing

import (
	"context"
	"errors"

	"github.com/fleetrent/backend/internal/application/accounting"
	"github.com/fleetrent/backend/internal/domain/billing"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService captures payments against invoices. A capture is one unit of
// work under optimistic concurrency: the invoice is re-read on every attempt,
// mutated, saved with a version check and posted to the ledger in the same
// transaction. A version conflict rolls everything back and retries with a
// fresh read; a true retry of an already captured payment replays the same
// deterministic ledger reference and applies nothing twice.
type PaymentService struct {
	txScope     accounting.TransactionScope
	poster      *accounting.Poster
	invoiceRepo billing.InvoiceRepository
	logger      *zap.Logger
	metrics     *telemetry.BusinessMetrics
	retry       shared.RetryPolicy
}

// PaymentServiceOption is a functional option for configuring the PaymentService
type PaymentServiceOption func(*PaymentService)

// WithBusinessMetrics wires payment and conflict counters; nil is ignored
func WithBusinessMetrics(metrics *telemetry.BusinessMetrics) PaymentServiceOption {
	return func(s *PaymentService) {
		s.metrics = metrics
	}
}

// WithRetryPolicy overrides the conflict retry policy
func WithRetryPolicy(policy shared.RetryPolicy) PaymentServiceOption {
	return func(s *PaymentService) {
		s.retry = policy
	}
}

// NewPaymentService creates a payment service
func NewPaymentService(
	txScope accounting.TransactionScope,
	poster *accounting.Poster,
	invoiceRepo billing.InvoiceRepository,
	logger *zap.Logger,
	opts ...PaymentServiceOption,
) *PaymentService {
	s := &PaymentService{
		txScope:     txScope,
		poster:      poster,
		invoiceRepo: invoiceRepo,
		logger:      logger,
		retry:       shared.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CaptureResult is the outcome of one payment capture
type CaptureResult struct {
	Invoice *billing.Invoice `json:"invoice"`
	Entry   *ledger.Entry    `json:"entry"`
}

// CapturePayment applies a payment to an invoice and posts it to the ledger.
// paymentRef is the payment's own stable identity (gateway reference, voucher
// number); it makes the ledger side idempotent under retries. The invoice
// mutation itself is guarded by the optimistic version check, so a concurrent
// capture on the same invoice loses the save, retries on a fresh read and
// then either applies cleanly or is rejected as over-payment.
func (s *PaymentService) CapturePayment(
	ctx context.Context,
	invoiceID uuid.UUID,
	amount valueobject.Money,
	methodAccountCode string,
	paymentRef string,
) (*CaptureResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "capture_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoiceID.String(),
		telemetry.SpanAttrAmount, amount.String(),
		telemetry.SpanAttrPaymentMethod, methodAccountCode,
	)

	var result CaptureResult
	err := shared.Retry(ctx, s.retry, func(ctx context.Context) error {
		err := s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			invoice, err := repos.InvoiceRepo().FindByID(ctx, invoiceID)
			if err != nil {
				return err
			}
			if err := invoice.ApplyPayment(amount); err != nil {
				return err
			}
			if err := repos.InvoiceRepo().SaveWithLock(ctx, invoice); err != nil {
				return err
			}

			poster := s.poster.WithRepos(repos.AccountRepo(), repos.EntryRepo())
			entry, err := poster.PostPaymentCapture(ctx, invoice.ID, amount, methodAccountCode, paymentRef)
			if err != nil {
				return err
			}

			result = CaptureResult{Invoice: invoice, Entry: entry}
			return nil
		})
		if err != nil && errors.Is(err, shared.ErrConflict) && s.metrics != nil {
			s.metrics.RecordVersionConflict(ctx, "invoice")
		}
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if s.metrics != nil {
			s.metrics.RecordPaymentCaptured(ctx, methodAccountCode, telemetry.PaymentStatusFailed)
		}
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceNumber, result.Invoice.InvoiceNumber,
		telemetry.SpanAttrExternalReference, result.Entry.ExternalReference,
	)
	if s.metrics != nil {
		s.metrics.RecordPaymentCaptured(ctx, methodAccountCode, telemetry.PaymentStatusSuccess)
	}
	s.logger.Info("Payment captured",
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("payment_ref", paymentRef),
		zap.Int64("amount_minor", amount.Amount()),
		zap.String("status", result.Invoice.Status.String()),
	)
	return &result, nil
}

// VoidInvoice voids an invoice that has collected nothing
func (s *PaymentService) VoidInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "void_invoice")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID.String())

	var invoice *billing.Invoice
	err := shared.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos accounting.TransactionalRepositories) error {
			var err error
			invoice, err = repos.InvoiceRepo().FindByID(ctx, invoiceID)
			if err != nil {
				return err
			}
			if err := invoice.Void(reason); err != nil {
				return err
			}
			return repos.InvoiceRepo().SaveWithLock(ctx, invoice)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Invoice voided",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("reason", reason),
	)
	return invoice, nil
}

// GetInvoice loads one invoice by id
func (s *PaymentService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByID(ctx, invoiceID)
}

// GetInvoiceByNumber loads one invoice by business number
func (s *PaymentService) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByNumber(ctx, invoiceNumber)
}

// ListInvoices lists invoices with paging and filters
func (s *PaymentService) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) (shared.Paginated[billing.Invoice], error) {
	filter.Normalize()
	invoices, err := s.invoiceRepo.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Invoice]{}, err
	}
	total, err := s.invoiceRepo.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Invoice]{}, err
	}
	return shared.NewPaginated(invoices, total, filter.Page, filter.PageSize), nil
}
