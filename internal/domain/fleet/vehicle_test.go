package fleet

import (
	"testing"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rate(t *testing.T, minor int64) valueobject.Money {
	t.Helper()
	m, err := valueobject.NewMoney(minor, valueobject.USD)
	require.NoError(t, err)
	return m
}

func createTestVehicle(t *testing.T) *Vehicle {
	t.Helper()
	v, err := NewVehicle("KA-1207", "Toyota", "Corolla", 2023, rate(t, 5600))
	require.NoError(t, err)
	return v
}

func TestVehicleStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  VehicleStatus
		isValid bool
	}{
		{VehicleStatusAvailable, true},
		{VehicleStatusReserved, true},
		{VehicleStatusRented, true},
		{VehicleStatusInMaintenance, true},
		{VehicleStatusRetired, true},
		{VehicleStatus("PARKED"), false},
		{VehicleStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestNewVehicle(t *testing.T) {
	v := createTestVehicle(t)

	assert.Equal(t, "KA-1207", v.PlateNumber)
	assert.Equal(t, VehicleStatusAvailable, v.Status)
	assert.Equal(t, 0, v.Version)
	assert.Equal(t, int64(5600), v.DailyRate.Amount())
}

func TestNewVehicle_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) error
	}{
		{"empty plate", func(t *testing.T) error {
			_, err := NewVehicle("", "Toyota", "Corolla", 2023, rate(t, 5600))
			return err
		}},
		{"empty make", func(t *testing.T) error {
			_, err := NewVehicle("KA-1207", "", "Corolla", 2023, rate(t, 5600))
			return err
		}},
		{"ancient year", func(t *testing.T) error {
			_, err := NewVehicle("KA-1207", "Toyota", "Corolla", 1972, rate(t, 5600))
			return err
		}},
		{"zero rate", func(t *testing.T) error {
			_, err := NewVehicle("KA-1207", "Toyota", "Corolla", 2023, rate(t, 0))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(t)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestVehicle_ChangeDailyRate(t *testing.T) {
	v := createTestVehicle(t)

	require.NoError(t, v.ChangeDailyRate(rate(t, 6100)))
	assert.Equal(t, int64(6100), v.DailyRate.Amount())
	assert.Equal(t, 1, v.Version)

	err := v.ChangeDailyRate(rate(t, -100))
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, 1, v.Version)
}

func TestVehicle_ChangeDailyRate_CurrencyMismatch(t *testing.T) {
	v := createTestVehicle(t)
	eur, err := valueobject.NewMoney(6100, valueobject.EUR)
	require.NoError(t, err)

	err = v.ChangeDailyRate(eur)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestVehicle_RentalLifecycle(t *testing.T) {
	v := createTestVehicle(t)

	require.NoError(t, v.Reserve())
	assert.Equal(t, VehicleStatusReserved, v.Status)

	require.NoError(t, v.HandOver())
	assert.Equal(t, VehicleStatusRented, v.Status)

	require.NoError(t, v.Return())
	assert.Equal(t, VehicleStatusAvailable, v.Status)

	assert.Equal(t, 3, v.Version)
}

func TestVehicle_ReleaseReservation(t *testing.T) {
	v := createTestVehicle(t)
	require.NoError(t, v.Reserve())

	require.NoError(t, v.ReleaseReservation())
	assert.Equal(t, VehicleStatusAvailable, v.Status)
}

func TestVehicle_InvalidTransitions(t *testing.T) {
	v := createTestVehicle(t)

	// Not reserved yet.
	assert.ErrorIs(t, v.HandOver(), shared.ErrInvalidState)
	assert.ErrorIs(t, v.Return(), shared.ErrInvalidState)
	assert.ErrorIs(t, v.ReleaseReservation(), shared.ErrInvalidState)

	require.NoError(t, v.Reserve())
	assert.ErrorIs(t, v.Reserve(), shared.ErrInvalidState)
	assert.ErrorIs(t, v.SendToMaintenance(), shared.ErrInvalidState)
	assert.ErrorIs(t, v.Retire(), shared.ErrInvalidState)
}

func TestVehicle_Maintenance(t *testing.T) {
	v := createTestVehicle(t)

	require.NoError(t, v.SendToMaintenance())
	assert.Equal(t, VehicleStatusInMaintenance, v.Status)

	assert.ErrorIs(t, v.Reserve(), shared.ErrInvalidState)

	require.NoError(t, v.ReturnFromMaintenance())
	assert.Equal(t, VehicleStatusAvailable, v.Status)
}

func TestVehicle_Retire(t *testing.T) {
	v := createTestVehicle(t)

	require.NoError(t, v.Retire())
	assert.Equal(t, VehicleStatusRetired, v.Status)
	assert.True(t, v.Status.IsTerminal())

	assert.ErrorIs(t, v.Reserve(), shared.ErrInvalidState)
	assert.ErrorIs(t, v.ChangeDailyRate(rate(t, 9900)), shared.ErrInvalidState)
}
