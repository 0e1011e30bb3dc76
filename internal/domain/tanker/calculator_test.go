package tanker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func februaryEvents() []TankerEvent {
	return []TankerEvent{
		{Date: MustParseDate("2026-02-10"), Count: 2},
		{Date: MustParseDate("2026-02-12"), Count: 3},
	}
}

func billFor(t *testing.T, bills []ApartmentBill, number string) ApartmentBill {
	t.Helper()
	for _, b := range bills {
		if b.Apartment.Number == number {
			return b
		}
	}
	require.Failf(t, "bill not found", "apartment %s", number)
	return ApartmentBill{}
}

func TestComputeBills_NoVacancy(t *testing.T) {
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "101", DefaultOccupancy: 1}},
		Events:     februaryEvents(),
	}

	bills := ComputeBills(snapshot, DateRange{})

	bill := billFor(t, bills, "101")
	assert.Equal(t, 5, bill.BillableTankers)
	assert.Equal(t, 5, bill.TotalTankersInCycle)
	assert.Equal(t, map[Date]int{
		MustParseDate("2026-02-10"): 2,
		MustParseDate("2026-02-12"): 3,
	}, bill.DailyBreakdown)
}

func TestComputeBills_SingleDayVacancy(t *testing.T) {
	feb10 := MustParseDate("2026-02-10")
	vacancy, err := NewSingleDayVacancy("102", feb10)
	require.NoError(t, err)

	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "101", DefaultOccupancy: 1}, {Number: "102", DefaultOccupancy: 1}},
		Events:     februaryEvents(),
		Vacancies:  []VacancyRecord{*vacancy},
	}

	bill := billFor(t, ComputeBills(snapshot, DateRange{}), "102")
	assert.Equal(t, 3, bill.BillableTankers)
	assert.Equal(t, 5, bill.TotalTankersInCycle)
	assert.Equal(t, map[Date]int{MustParseDate("2026-02-12"): 3}, bill.DailyBreakdown)
	assert.Equal(t, 0, bill.DailyOccupancyBreakdown[feb10])
	assert.Equal(t, 1, bill.DailyOccupancyBreakdown[MustParseDate("2026-02-12")])
}

func TestComputeBills_RangeVacancyMatchesSingleDay(t *testing.T) {
	end := MustParseDate("2026-02-11")
	rangeVacancy, err := NewVacancyRecord("102", MustParseDate("2026-02-09"), &end)
	require.NoError(t, err)
	singleVacancy, err := NewSingleDayVacancy("102", MustParseDate("2026-02-10"))
	require.NoError(t, err)

	base := AggregateSnapshot{
		Apartments: []Apartment{{Number: "102", DefaultOccupancy: 1}},
		Events:     februaryEvents(),
	}
	withRange := base
	withRange.Vacancies = []VacancyRecord{*rangeVacancy}
	withSingle := base
	withSingle.Vacancies = []VacancyRecord{*singleVacancy}

	assert.Equal(t, ComputeBills(withSingle, DateRange{}), ComputeBills(withRange, DateRange{}))
	assert.Equal(t, 3, ComputeBills(withRange, DateRange{})[0].BillableTankers)
}

func TestComputeBills_RangeBounds(t *testing.T) {
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "101", DefaultOccupancy: 1}},
		Events: []TankerEvent{
			{Date: MustParseDate("2026-01-31"), Count: 7},
			{Date: MustParseDate("2026-02-01"), Count: 1},
			{Date: MustParseDate("2026-02-28"), Count: 4},
			{Date: MustParseDate("2026-03-01"), Count: 9},
		},
	}

	bills := ComputeBills(snapshot, Between(MustParseDate("2026-01-31"), MustParseDate("2026-02-28")))

	require.Len(t, bills, 1)
	assert.Equal(t, 5, bills[0].TotalTankersInCycle, "from is exclusive, to is inclusive")
	assert.Equal(t, 5, bills[0].BillableTankers)
}

func TestComputeBills_IgnoresZeroCountsAndOrphans(t *testing.T) {
	feb10 := MustParseDate("2026-02-10")
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "101", DefaultOccupancy: 1}},
		Events:     []TankerEvent{{Date: feb10, Count: 0}, {Date: feb10.AddDays(1), Count: 2}},
		Vacancies:  []VacancyRecord{{ApartmentNumber: "999", StartDate: feb10}},
		Overrides:  []OccupancyOverride{{ApartmentNumber: "998", Date: feb10, Occupancy: 3}},
	}

	bills := ComputeBills(snapshot, DateRange{})

	require.Len(t, bills, 1)
	assert.Equal(t, 2, bills[0].BillableTankers)
	assert.NotContains(t, bills[0].DailyOccupancyBreakdown, feb10)
	assert.Len(t, FindIdentityMismatches(snapshot), 2)
}

func TestComputeBills_NoEvents(t *testing.T) {
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{{Number: "101", DefaultOccupancy: 1}},
		Events:     februaryEvents(),
	}

	bills := ComputeBills(snapshot, Between(MustParseDate("2026-03-01"), MustParseDate("2026-03-31")))

	require.Len(t, bills, 1)
	assert.Zero(t, bills[0].TotalTankersInCycle)
	assert.Zero(t, bills[0].BillableTankers)
	assert.Empty(t, bills[0].DailyBreakdown)

	assert.Empty(t, ComputeBills(AggregateSnapshot{Events: februaryEvents()}, DateRange{}))
}

func TestComputeBills_Invariants(t *testing.T) {
	end := MustParseDate("2026-02-14")
	snapshot := AggregateSnapshot{
		Apartments: []Apartment{
			{Number: "1001", DefaultOccupancy: 2},
			{Number: "101", DefaultOccupancy: 1},
			{Number: "201", DefaultOccupancy: 0},
			{Number: "301", DefaultOccupancy: 4},
		},
		Events: []TankerEvent{
			{Date: MustParseDate("2026-02-10"), Count: 2},
			{Date: MustParseDate("2026-02-12"), Count: 3},
			{Date: MustParseDate("2026-02-15"), Count: 1},
		},
		Vacancies: []VacancyRecord{{ApartmentNumber: "301", StartDate: MustParseDate("2026-02-11"), EndDate: &end}},
		Overrides: []OccupancyOverride{
			{ApartmentNumber: "201", Date: MustParseDate("2026-02-15"), Occupancy: 2},
			{ApartmentNumber: "101", Date: MustParseDate("2026-02-10"), Occupancy: 0},
		},
	}

	bills := ComputeBills(snapshot, DateRange{})

	require.Len(t, bills, 4)
	assert.Equal(t, []string{"101", "201", "301", "1001"}, []string{
		bills[0].Apartment.Number, bills[1].Apartment.Number, bills[2].Apartment.Number, bills[3].Apartment.Number,
	})
	for _, b := range bills {
		sum := 0
		for _, n := range b.DailyBreakdown {
			sum += n
		}
		assert.Equal(t, b.BillableTankers, sum, "apartment %s", b.Apartment.Number)
		assert.LessOrEqual(t, b.BillableTankers, b.TotalTankersInCycle)
		assert.Equal(t, 6, b.TotalTankersInCycle)
		assert.Len(t, b.DailyOccupancyBreakdown, 3)
	}
	assert.Equal(t, 4, bills[0].BillableTankers)
	assert.Equal(t, 1, bills[1].BillableTankers)
	assert.Equal(t, 3, bills[2].BillableTankers)
	assert.Equal(t, 6, bills[3].BillableTankers)
}

func TestTotalTankers(t *testing.T) {
	events := februaryEvents()
	assert.Equal(t, 5, TotalTankers(events, DateRange{}))
	assert.Equal(t, 3, TotalTankers(events, Since(MustParseDate("2026-02-10"))))
	assert.Equal(t, 2, CountOn(events, MustParseDate("2026-02-10")))
	assert.Equal(t, 0, CountOn(events, MustParseDate("2026-02-11")))
}
