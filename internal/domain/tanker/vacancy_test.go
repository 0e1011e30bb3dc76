package tanker

import (
	"testing"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVacancyRecord(t *testing.T) {
	start := MustParseDate("2026-02-09")

	t.Run("creates open-ended record", func(t *testing.T) {
		v, err := NewVacancyRecord("101", start, nil)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, v.ID)
		assert.True(t, v.IsOpenEnded())
		assert.True(t, v.Covers(MustParseDate("2030-01-01")))
		assert.False(t, v.Covers(MustParseDate("2026-02-08")))
	})

	t.Run("rejects end before start", func(t *testing.T) {
		end := MustParseDate("2026-02-08")
		_, err := NewVacancyRecord("101", start, &end)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("single day covers only that day", func(t *testing.T) {
		v, err := NewSingleDayVacancy("101", start)
		require.NoError(t, err)
		assert.True(t, v.Covers(start))
		assert.False(t, v.Covers(start.AddDays(1)))
		assert.False(t, v.Covers(start.AddDays(-1)))
	})

	t.Run("range is inclusive on both ends", func(t *testing.T) {
		end := MustParseDate("2026-02-11")
		v, err := NewVacancyRecord("101", start, &end)
		require.NoError(t, err)
		assert.True(t, v.Covers(start))
		assert.True(t, v.Covers(end))
		assert.True(t, v.CoversApartmentOn("101", MustParseDate("2026-02-10")))
		assert.False(t, v.CoversApartmentOn("102", MustParseDate("2026-02-10")))
	})
}

func TestNewBillingCycle(t *testing.T) {
	start := MustParseDate("2026-02-01")
	end := MustParseDate("2026-02-28")

	c, err := NewBillingCycle(start, end, 10)
	require.NoError(t, err)
	assert.Equal(t, start, c.StartDate)
	assert.Equal(t, end, c.EndDate)
	assert.Equal(t, 10, c.TotalTankersSnapshot)
	assert.NotEqual(t, uuid.Nil, c.ID)

	_, err = NewBillingCycle(end, end, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = NewBillingCycle(start, end, -1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDefaultCycleBoundary(t *testing.T) {
	b := DefaultCycleBoundary(MustParseDate("2026-03-15"))
	assert.Equal(t, MustParseDate("2026-02-28"), b.StartDate)
	assert.True(t, b.OpenRange().Contains(MustParseDate("2026-03-01")))
}
