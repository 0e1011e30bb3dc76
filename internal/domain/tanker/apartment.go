package tanker

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// Apartment is a roster entry. The apartment number is its identity in every
// store backend.
type Apartment struct {
	Number           string // e.g. "101"; canonical identity
	DefaultOccupancy int    // occupants assumed when no vacancy or override applies
}

// NewApartment creates a validated roster entry
func NewApartment(number string, defaultOccupancy int) (*Apartment, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewValidationError("apartment number cannot be empty")
	}
	if defaultOccupancy < 0 {
		return nil, shared.NewValidationError("default occupancy cannot be negative")
	}
	return &Apartment{Number: number, DefaultOccupancy: defaultOccupancy}, nil
}

// CompareApartmentNumbers orders apartment numbers numerically ("2" < "10").
// Numeric labels sort before non-numeric ones; non-numeric labels sort lexically.
func CompareApartmentNumbers(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortApartments sorts the roster in numeric apartment-number order
func SortApartments(apartments []Apartment) {
	slices.SortFunc(apartments, func(x, y Apartment) int {
		return CompareApartmentNumbers(x.Number, y.Number)
	})
}

// RosterLayout describes a block of floors with the same number of units
type RosterLayout struct {
	Floors           int
	UnitsPerFloor    int
	DefaultOccupancy int
}

// DefaultRosterLayout is 17 floors of 4 units, one occupant each
func DefaultRosterLayout() RosterLayout {
	return RosterLayout{Floors: 17, UnitsPerFloor: 4, DefaultOccupancy: 1}
}

// MasterApartmentList returns the full roster for the layout, floor by floor:
// 101..104, 201..204, and so on.
func MasterApartmentList(layout RosterLayout) ([]Apartment, error) {
	if layout.Floors <= 0 || layout.UnitsPerFloor <= 0 {
		return nil, shared.NewValidationError("roster layout needs at least one floor and one unit")
	}
	if layout.UnitsPerFloor > 99 {
		return nil, shared.NewValidationError("at most 99 units per floor are supported")
	}
	if layout.DefaultOccupancy < 0 {
		return nil, shared.NewValidationError("default occupancy cannot be negative")
	}

	apartments := make([]Apartment, 0, layout.Floors*layout.UnitsPerFloor)
	for floor := 1; floor <= layout.Floors; floor++ {
		for unit := 1; unit <= layout.UnitsPerFloor; unit++ {
			apartments = append(apartments, Apartment{
				Number:           fmt.Sprintf("%d%02d", floor, unit),
				DefaultOccupancy: layout.DefaultOccupancy,
			})
		}
	}
	return apartments, nil
}
