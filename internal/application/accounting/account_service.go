package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountService administers the chart of accounts and exposes the
// ledger-derived balance views built on the same sums the reconciliation
// engine reads.
type AccountService struct {
	accountRepo ledger.AccountRepository
	entryRepo   ledger.EntryRepository
	logger      *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(
	accountRepo ledger.AccountRepository,
	entryRepo ledger.EntryRepository,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		logger:      logger,
	}
}

// CreateAccountRequest carries the fields for a new account
type CreateAccountRequest struct {
	Code string
	Name string
	Type ledger.AccountType
}

// CreateAccount adds an account to the chart
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*ledger.Account, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "create_account")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrAccountCode, req.Code)

	account, err := ledger.NewAccount(req.Code, req.Name, req.Type)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	exists, err := s.accountRepo.ExistsByCode(ctx, req.Code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if exists {
		err := shared.NewDomainError(shared.ErrAlreadyExists.Code,
			fmt.Sprintf("Account code %s is already taken", req.Code))
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.accountRepo.Save(ctx, account); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Account created",
		zap.String("code", account.Code),
		zap.String("type", account.Type.String()),
	)
	return account, nil
}

// RenameAccount changes an account's display name; the code is immutable
func (s *AccountService) RenameAccount(ctx context.Context, id uuid.UUID, name string) (*ledger.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := account.Rename(name); err != nil {
		return nil, err
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeactivateAccount closes an account for new postings. History stays: every
// line ever posted against it keeps contributing to balances.
func (s *AccountService) DeactivateAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := account.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info("Account deactivated", zap.String("code", account.Code))
	return account, nil
}

// ActivateAccount reopens a deactivated account
func (s *AccountService) ActivateAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := account.Activate(); err != nil {
		return nil, err
	}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes an account that was created by mistake. An account
// with journal lines is never deleted — deactivate it instead.
func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	hasEntries, err := s.accountRepo.HasEntries(ctx, id)
	if err != nil {
		return err
	}
	if hasEntries {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Account %s has journal entries and cannot be deleted, only deactivated", account.Code))
	}

	if err := s.accountRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Account deleted", zap.String("code", account.Code))
	return nil
}

// ListAccounts returns the chart of accounts ordered by code
func (s *AccountService) ListAccounts(ctx context.Context, activeOnly bool) ([]ledger.Account, error) {
	return s.accountRepo.FindAll(ctx, activeOnly)
}

// GetAccount loads one account by code
func (s *AccountService) GetAccount(ctx context.Context, code string) (*ledger.Account, error) {
	return s.accountRepo.FindByCode(ctx, code)
}

// AccountBalance is the directional balance of one account at a point in
// time, in minor units and as a decimal for display
type AccountBalance struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Type        ledger.AccountType `json:"type"`
	NormalSide  ledger.BalanceSide `json:"normal_side"`
	AmountMinor int64              `json:"amount_minor"`
	Amount      decimal.Decimal    `json:"amount"`
	AsOf        time.Time          `json:"as_of"`
}

// GetBalance returns an account's normal-side-adjusted balance as of the
// given time
func (s *AccountService) GetBalance(ctx context.Context, code string, asOf time.Time) (*AccountBalance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "get_balance")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrAccountCode, code)

	account, err := s.accountRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			err = shared.NewDomainError(shared.ErrNotFound.Code, fmt.Sprintf("Account %s does not exist", code))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	sum, err := s.entryRepo.SumForAccount(ctx, account.ID, asOf)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return &AccountBalance{
		Code:        account.Code,
		Name:        account.Name,
		Type:        account.Type,
		NormalSide:  account.NormalSide(),
		AmountMinor: sum,
		Amount:      minorToDecimal(sum),
		AsOf:        asOf,
	}, nil
}

// TrialBalanceRow is one account's contribution to the trial balance
type TrialBalanceRow struct {
	Code       string             `json:"code"`
	Name       string             `json:"name"`
	Type       ledger.AccountType `json:"type"`
	NormalSide ledger.BalanceSide `json:"normal_side"`
	Debit      decimal.Decimal    `json:"debit"`
	Credit     decimal.Decimal    `json:"credit"`
}

// TrialBalanceReport is the operator-facing sanity view over the ledger: the
// per-account balances folded into debit/credit columns whose totals must
// always match
type TrialBalanceReport struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	DebitTotal  decimal.Decimal   `json:"debit_total"`
	CreditTotal decimal.Decimal   `json:"credit_total"`
	Balanced    bool              `json:"balanced"`
}

// TrialBalance summarizes every account's balance as of the given time. A
// positive normal-side balance lands in the account's normal column, a
// negative one in the opposite column — the standard trial-balance rendering.
func (s *AccountService) TrialBalance(ctx context.Context, asOf time.Time) (*TrialBalanceReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "accounting", "trial_balance")
	defer span.End()

	accounts, err := s.accountRepo.FindAll(ctx, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := &TrialBalanceReport{
		AsOf: asOf,
		Rows: make([]TrialBalanceRow, 0, len(accounts)),
	}
	var debitTotalMinor, creditTotalMinor int64

	for i := range accounts {
		account := &accounts[i]
		sum, err := s.entryRepo.SumForAccount(ctx, account.ID, asOf)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		row := TrialBalanceRow{
			Code:       account.Code,
			Name:       account.Name,
			Type:       account.Type,
			NormalSide: account.NormalSide(),
			Debit:      decimal.Zero,
			Credit:     decimal.Zero,
		}

		column := account.NormalSide()
		if sum < 0 {
			column = column.Opposite()
		}
		magnitude := sum
		if magnitude < 0 {
			magnitude = -magnitude
		}
		switch column {
		case ledger.BalanceSideDebit:
			row.Debit = minorToDecimal(magnitude)
			debitTotalMinor += magnitude
		case ledger.BalanceSideCredit:
			row.Credit = minorToDecimal(magnitude)
			creditTotalMinor += magnitude
		}

		report.Rows = append(report.Rows, row)
	}

	report.DebitTotal = minorToDecimal(debitTotalMinor)
	report.CreditTotal = minorToDecimal(creditTotalMinor)
	report.Balanced = debitTotalMinor == creditTotalMinor

	if !report.Balanced {
		// Column totals can only differ if an imbalanced entry reached
		// storage, which the posting gate is supposed to make impossible.
		s.logger.Error("Trial balance columns do not match",
			zap.Int64("debit_total_minor", debitTotalMinor),
			zap.Int64("credit_total_minor", creditTotalMinor),
			zap.Time("as_of", asOf),
		)
	}
	return report, nil
}

// minorToDecimal renders a minor-unit amount as a two-decimal value
func minorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
