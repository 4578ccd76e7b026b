package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed
// fields. Returns the defaultField if the input is empty or not in the
// whitelist. User-supplied order columns never reach the query raw.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// VehicleSortFields contains allowed sort fields for vehicles
var VehicleSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"plate_number":      true,
	"make":              true,
	"model":             true,
	"model_year":        true,
	"daily_rate_amount": true,
	"status":            true,
}

// RentalSortFields contains allowed sort fields for rentals
var RentalSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"rental_number": true,
	"customer_name": true,
	"start_date":    true,
	"end_date":      true,
	"total_amount":  true,
	"status":        true,
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"invoice_number": true,
	"customer_name":  true,
	"issued_at":      true,
	"total_amount":   true,
	"paid_amount":    true,
	"status":         true,
}

// EntrySortFields contains allowed sort fields for ledger entries
var EntrySortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"entry_date":         true,
	"external_reference": true,
}
