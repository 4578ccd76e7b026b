package handler

import (
	"time"

	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
)

// MoneyResponse renders a monetary amount. The integer minor-unit count is
// the authoritative value; display is a convenience rendering.
type MoneyResponse struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Display     string `json:"display"`
}

func toMoneyResponse(m valueobject.Money) MoneyResponse {
	return MoneyResponse{
		AmountMinor: m.Amount(),
		Currency:    string(m.Currency()),
		Display:     m.Decimal().StringFixed(2),
	}
}

// parseDateParam parses an optional YYYY-MM-DD query parameter, defaulting
// to now when absent
func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	return time.Parse("2006-01-02", value)
}
