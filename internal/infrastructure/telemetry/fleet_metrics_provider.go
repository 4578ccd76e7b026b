// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormFleetMetricsProvider implements FleetMetricsProvider using GORM.
// It queries the invoices and rentals tables directly for aggregated metrics.
type GormFleetMetricsProvider struct {
	db *gorm.DB
}

// NewGormFleetMetricsProvider creates a new GormFleetMetricsProvider.
func NewGormFleetMetricsProvider(db *gorm.DB) *GormFleetMetricsProvider {
	return &GormFleetMetricsProvider{db: db}
}

// OutstandingInvoiceAmount returns the total unpaid amount across open invoices.
func (p *GormFleetMetricsProvider) OutstandingInvoiceAmount(ctx context.Context) (int64, error) {
	var result struct {
		Total int64
	}

	err := p.db.WithContext(ctx).
		Table("invoices").
		Select("COALESCE(SUM(total_amount - paid_amount), 0) as total").
		Where("status IN ?", []string{"ISSUED", "PARTIAL"}).
		Scan(&result).Error

	if err != nil {
		return 0, err
	}

	return result.Total, nil
}

// CountActiveRentals returns the number of rentals currently on the road.
func (p *GormFleetMetricsProvider) CountActiveRentals(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("rentals").
		Where("status = ?", "ACTIVE").
		Count(&count).Error

	return count, err
}
