package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD" // US Dollar (default)
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	CAD Currency = "CAD" // Canadian Dollar
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = USD

// IsValid returns true when the currency is one the system recognizes
func (c Currency) IsValid() bool {
	switch c {
	case USD, EUR, GBP, CAD:
		return true
	}
	return false
}

// minorUnitsPerMajor is the scale between the stored integer amount and the
// displayed major unit (cents per dollar). All supported currencies use 2
// decimal places.
const minorUnitsPerMajor = 100

// Money is a value object representing a monetary amount as an exact integer
// count of minor currency units (cents). It is immutable - all operations
// return new Money instances. Arithmetic never rounds; fractional minor
// units cannot be represented at all.
type Money struct {
	amount   int64
	currency Currency
}

// NewMoney creates Money from an amount in minor units (cents)
func NewMoney(amount int64, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("unknown currency %q", currency)
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustNewMoney creates Money from minor units, panicking on an unknown
// currency. Intended for literals in tests and seed data.
func MustNewMoney(amount int64, currency Currency) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromDecimal creates Money from a major-unit decimal (e.g. "112.00").
// Amounts with sub-minor precision are rejected rather than rounded.
func NewMoneyFromDecimal(amount decimal.Decimal, currency Currency) (Money, error) {
	minor := amount.Mul(decimal.NewFromInt(minorUnitsPerMajor))
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("amount %s has sub-cent precision", amount)
	}
	return NewMoney(minor.IntPart(), currency)
}

// NewMoneyFromString creates Money from a major-unit decimal string
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoneyFromDecimal(d, currency)
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: 0, currency: currency}
}

// ZeroUSD returns a zero-value Money in USD
func ZeroUSD() Money {
	return Zero(USD)
}

// Amount returns the amount in minor units (cents)
func (m Money) Amount() int64 {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount == 0
}

// IsPositive returns true if the amount is strictly positive
func (m Money) IsPositive() bool {
	return m.amount > 0
}

// IsNegative returns true if the amount is strictly negative
func (m Money) IsNegative() bool {
	return m.amount < 0
}

// Add returns a new Money with the sum of both amounts.
// Returns an error if currencies don't match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// MustAdd adds two Money values, panics if currencies don't match
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract returns a new Money with the difference.
// Returns an error if currencies don't match.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// MustSubtract subtracts two Money values, panics if currencies don't match
func (m Money) MustSubtract(other Money) Money {
	result, err := m.Subtract(other)
	if err != nil {
		panic(err)
	}
	return result
}

// MultiplyByInt returns a new Money multiplied by an integer factor
// (e.g. a daily rate by a number of days)
func (m Money) MultiplyByInt(factor int64) Money {
	return Money{amount: m.amount * factor, currency: m.currency}
}

// Negate returns a new Money with the sign reversed
func (m Money) Negate() Money {
	return Money{amount: -m.amount, currency: m.currency}
}

// Abs returns a new Money with the absolute value
func (m Money) Abs() Money {
	if m.amount < 0 {
		return m.Negate()
	}
	return m
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount == other.amount
}

// Compare returns -1, 0, or 1 as m is less than, equal to, or greater than
// other. Returns an error if currencies don't match.
func (m Money) Compare(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, fmt.Errorf("cannot compare money with different currencies: %s and %s", m.currency, other.currency)
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// LessThan returns true if this Money is less than the other.
// Returns an error if currencies don't match.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Compare(other)
	return c < 0, err
}

// GreaterThan returns true if this Money is greater than the other.
// Returns an error if currencies don't match.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Compare(other)
	return c > 0, err
}

// Decimal returns the amount in major units as an exact decimal
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.amount, -2)
}

// String returns a human-readable representation, e.g. "112.00 USD"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.currency)
}

// MarshalJSON implements json.Marshaler; the amount travels as an integer
// count of minor units so no reader can lose precision
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64    `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount,
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler for request binding. An absent
// currency falls back to DefaultCurrency; anything else unknown is rejected.
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   int64    `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Currency == "" {
		v.Currency = DefaultCurrency
	}
	if !v.Currency.IsValid() {
		return fmt.Errorf("unknown currency %q", v.Currency)
	}
	m.amount = v.Amount
	m.currency = v.Currency
	return nil
}

// Value implements driver.Valuer for database storage.
// Stores the minor-unit amount only; currency lives in its own column.
func (m Money) Value() (driver.Value, error) {
	return m.amount, nil
}

// Scan implements sql.Scanner for database retrieval. Only the amount is
// scanned; the currency defaults to DefaultCurrency unless already set by
// the row mapper.
func (m *Money) Scan(value any) error {
	if value == nil {
		m.amount = 0
		if m.currency == "" {
			m.currency = DefaultCurrency
		}
		return nil
	}

	switch v := value.(type) {
	case int64:
		m.amount = v
	case int:
		m.amount = int64(v)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
	if m.currency == "" {
		m.currency = DefaultCurrency
	}
	return nil
}

// Allocate divides money into n parts that sum exactly to the original
// amount; the first parts absorb any remainder cent by cent
func (m Money) Allocate(parts int) ([]Money, error) {
	if parts <= 0 {
		return nil, errors.New("parts must be positive")
	}

	base := m.amount / int64(parts)
	remainder := m.amount - base*int64(parts)

	result := make([]Money, parts)
	for i := range result {
		amount := base
		if int64(i) < remainder {
			amount++
		}
		result[i] = Money{amount: amount, currency: m.currency}
	}
	return result, nil
}
