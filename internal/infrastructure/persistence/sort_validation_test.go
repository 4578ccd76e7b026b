package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ASC", "ASC"},
		{"asc", "ASC"},
		{" Asc ", "ASC"},
		{"DESC", "DESC"},
		{"desc", "DESC"},
		{"", "DESC"},
		{"sideways", "DESC"},
		{"ASC; DROP TABLE rentals", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"allowed field", "rental_number", "rental_number"},
		{"empty falls back", "", "created_at"},
		{"unknown falls back", "secret_column", "created_at"},
		{"injection falls back", "created_at; DROP TABLE rentals", "created_at"},
		{"whitespace trimmed", " start_date ", "start_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, RentalSortFields, "created_at"))
		})
	}
}
