package tanker

import (
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApartment(t *testing.T) {
	t.Run("trims number", func(t *testing.T) {
		apt, err := NewApartment(" 101 ", 2)
		require.NoError(t, err)
		assert.Equal(t, "101", apt.Number)
		assert.Equal(t, 2, apt.DefaultOccupancy)
	})

	t.Run("rejects empty number", func(t *testing.T) {
		_, err := NewApartment("  ", 1)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("rejects negative default occupancy", func(t *testing.T) {
		_, err := NewApartment("101", -1)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestSortApartments_Numeric(t *testing.T) {
	apartments := []Apartment{{Number: "1001"}, {Number: "B2"}, {Number: "201"}, {Number: "A1"}, {Number: "101"}}

	SortApartments(apartments)

	var numbers []string
	for _, a := range apartments {
		numbers = append(numbers, a.Number)
	}
	assert.Equal(t, []string{"101", "201", "1001", "A1", "B2"}, numbers)
}

func TestMasterApartmentList(t *testing.T) {
	t.Run("default layout", func(t *testing.T) {
		apartments, err := MasterApartmentList(DefaultRosterLayout())
		require.NoError(t, err)
		require.Len(t, apartments, 68)
		assert.Equal(t, "101", apartments[0].Number)
		assert.Equal(t, "104", apartments[3].Number)
		assert.Equal(t, "201", apartments[4].Number)
		assert.Equal(t, "1704", apartments[67].Number)
		assert.Equal(t, 1, apartments[10].DefaultOccupancy)
	})

	t.Run("invalid layout", func(t *testing.T) {
		_, err := MasterApartmentList(RosterLayout{Floors: 0, UnitsPerFloor: 4})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}
