package ledger

import (
	"fmt"
	"sort"

	"github.com/fleetrent/backend/internal/domain/shared"
)

// Well-known codes from the seeded chart of accounts. The migration that
// seeds the chart and the posting policy below must agree on these.
const (
	AccountCodeCash               = "1000"
	AccountCodeBankClearing       = "1010"
	AccountCodeAccountsReceivable = "1100"
	AccountCodeFleetVehicles      = "1500"
	AccountCodeAccountsPayable    = "2000"
	AccountCodeCustomerDeposits   = "2100"
	AccountCodeOwnerEquity        = "3000"
	AccountCodeRentalRevenue      = "4000"
	AccountCodeLateFeeRevenue     = "4100"
	AccountCodeMaintenanceExpense = "5000"
	AccountCodeInsuranceExpense   = "5100"
)

// PostingRule names the two accounts one financial event moves
type PostingRule struct {
	DebitAccountCode  string
	CreditAccountCode string
}

// ReconciliationProbe tells the reconciliation engine where to look for an
// event's ledger trace: which account's prefix sums to read and on which side
// the event moves that account.
type ReconciliationProbe struct {
	AccountCode  string
	MovementSide BalanceSide
}

// Sign converts a normal-side-adjusted account sum into the event's own
// orientation: +1 when the event moves the account on its normal side, -1
// when it moves it on the opposite side. A payment credits the debit-normal
// receivable account, so its prefix sum comes back negative and flips here.
func (p ReconciliationProbe) Sign(normalSide BalanceSide) int64 {
	if p.MovementSide == normalSide {
		return 1
	}
	return -1
}

// PostingPolicy is the fixed mapping from business event types to ledger
// accounts. The poster writes through it and the reconciliation engine reads
// through it, so both sides always agree on where an event lands.
type PostingPolicy struct {
	methodAccounts map[string]struct{}
}

// PostingPolicyOption is a functional option for configuring PostingPolicy
type PostingPolicyOption func(*PostingPolicy)

// WithMethodAccount registers an additional payment method account code
func WithMethodAccount(code string) PostingPolicyOption {
	return func(p *PostingPolicy) {
		if code != "" {
			p.methodAccounts[code] = struct{}{}
		}
	}
}

// NewPostingPolicy creates the policy with the default payment method
// accounts (cash and bank clearing)
func NewPostingPolicy(opts ...PostingPolicyOption) *PostingPolicy {
	p := &PostingPolicy{
		methodAccounts: map[string]struct{}{
			AccountCodeCash:         {},
			AccountCodeBankClearing: {},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ActivationRule returns the posting rule for a rental activation: the
// customer now owes the rental total, the business has earned it
func (p *PostingPolicy) ActivationRule() PostingRule {
	return PostingRule{
		DebitAccountCode:  AccountCodeAccountsReceivable,
		CreditAccountCode: AccountCodeRentalRevenue,
	}
}

// PaymentRule returns the posting rule for a payment captured into the given
// method account. The method account must be one of the configured payment
// method accounts.
func (p *PostingPolicy) PaymentRule(methodAccountCode string) (PostingRule, error) {
	if _, ok := p.methodAccounts[methodAccountCode]; !ok {
		return PostingRule{}, shared.NewDomainError(shared.ErrValidation.Code,
			fmt.Sprintf("Account %s is not a configured payment method account", methodAccountCode))
	}
	return PostingRule{
		DebitAccountCode:  methodAccountCode,
		CreditAccountCode: AccountCodeAccountsReceivable,
	}, nil
}

// MethodAccountCodes returns the configured payment method account codes in
// stable order
func (p *PostingPolicy) MethodAccountCodes() []string {
	codes := make([]string, 0, len(p.methodAccounts))
	for code := range p.methodAccounts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Probe returns the reconciliation probe for an event type
func (p *PostingPolicy) Probe(eventType EventType) (ReconciliationProbe, error) {
	switch eventType {
	case EventTypeActivation:
		return ReconciliationProbe{
			AccountCode:  AccountCodeAccountsReceivable,
			MovementSide: BalanceSideDebit,
		}, nil
	case EventTypePayment:
		return ReconciliationProbe{
			AccountCode:  AccountCodeAccountsReceivable,
			MovementSide: BalanceSideCredit,
		}, nil
	}
	return ReconciliationProbe{}, shared.NewDomainError(shared.ErrValidation.Code,
		fmt.Sprintf("No reconciliation probe defined for event type %q", eventType))
}
