package tanker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApartmentStatuses(t *testing.T) {
	date := MustParseDate("2026-02-10")
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "201", DefaultOccupancy: 2}, {Number: "101", DefaultOccupancy: 1}, {Number: "102", DefaultOccupancy: 1}},
		Vacancies:  []VacancyRecord{{ApartmentNumber: "102", StartDate: date}},
		Overrides: []OccupancyOverride{
			{ApartmentNumber: "201", Date: date, Occupancy: 4},
			{ApartmentNumber: "102", Date: date, Occupancy: 3},
		},
	}

	statuses := ApartmentStatuses(snapshot, date)

	require.Len(t, statuses, 3)
	assert.Equal(t, "101", statuses[0].Apartment.Number)
	assert.Equal(t, 1, statuses[0].Occupancy)
	assert.False(t, statuses[0].Overridden)

	assert.Equal(t, "102", statuses[1].Apartment.Number)
	assert.True(t, statuses[1].Vacant)
	assert.False(t, statuses[1].Overridden, "a vacancy hides the override")

	assert.Equal(t, "201", statuses[2].Apartment.Number)
	assert.Equal(t, 4, statuses[2].Occupancy)
	assert.True(t, statuses[2].Overridden)
}

func TestVacantDatesInMonth_ClampsOpenEndedRecord(t *testing.T) {
	apt := Apartment{Number: "101", DefaultOccupancy: 1}
	end := MustParseDate("2026-02-02")
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{apt},
		Vacancies: []VacancyRecord{
			{ApartmentNumber: "101", StartDate: MustParseDate("2026-01-30"), EndDate: &end},
			{ApartmentNumber: "101", StartDate: MustParseDate("2026-02-27")},
		},
	}

	dates := VacantDatesInMonth(snapshot, apt, 2026, time.February)

	assert.Equal(t, []Date{
		MustParseDate("2026-02-01"),
		MustParseDate("2026-02-02"),
		MustParseDate("2026-02-27"),
		MustParseDate("2026-02-28"),
	}, dates)
}

func TestTankerDatesInMonth(t *testing.T) {
	events := []TankerEvent{
		{Date: MustParseDate("2026-02-12"), Count: 3},
		{Date: MustParseDate("2026-01-31"), Count: 1},
		{Date: MustParseDate("2026-02-01"), Count: 2},
		{Date: MustParseDate("2026-02-05"), Count: 0},
		{Date: MustParseDate("2026-03-01"), Count: 1},
	}

	got := TankerDatesInMonth(events, 2026, time.February)

	assert.Equal(t, []TankerEvent{
		{Date: MustParseDate("2026-02-01"), Count: 2},
		{Date: MustParseDate("2026-02-12"), Count: 3},
	}, got)
}
