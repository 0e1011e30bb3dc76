package tanker

import (
	"slices"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// OccupancyOverride replaces an apartment's default occupancy for one date.
// At most one override exists per (apartment, date).
type OccupancyOverride struct {
	ApartmentNumber string
	Date            Date
	Occupancy       int
}

// OverrideKey identifies an override
type OverrideKey struct {
	ApartmentNumber string
	Date            Date
}

// NewOccupancyOverride creates a validated override
func NewOccupancyOverride(apartmentNumber string, date Date, occupancy int) (*OccupancyOverride, error) {
	if apartmentNumber == "" {
		return nil, shared.NewValidationError("apartment number cannot be empty")
	}
	if date.IsZero() {
		return nil, shared.NewValidationError("override date is required")
	}
	if occupancy < 0 {
		return nil, shared.NewValidationError("occupancy cannot be negative")
	}
	return &OccupancyOverride{ApartmentNumber: apartmentNumber, Date: date, Occupancy: occupancy}, nil
}

// Key returns the override's identity
func (o OccupancyOverride) Key() OverrideKey {
	return OverrideKey{ApartmentNumber: o.ApartmentNumber, Date: o.Date}
}

// SortOverrides orders overrides by apartment number, then date
func SortOverrides(overrides []OccupancyOverride) {
	slices.SortFunc(overrides, func(a, b OccupancyOverride) int {
		if c := CompareApartmentNumbers(a.ApartmentNumber, b.ApartmentNumber); c != 0 {
			return c
		}
		return a.Date.Compare(b.Date)
	})
}
