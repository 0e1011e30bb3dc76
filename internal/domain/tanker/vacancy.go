package tanker

import (
	"cmp"
	"slices"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/google/uuid"
)

// VacancyRecord asserts an apartment is unoccupied over an inclusive date
// range. A nil EndDate is open-ended.
type VacancyRecord struct {
	ID              uuid.UUID
	ApartmentNumber string
	StartDate       Date
	EndDate         *Date
}

// NewVacancyRecord creates a validated vacancy record with a fresh ID
func NewVacancyRecord(apartmentNumber string, start Date, end *Date) (*VacancyRecord, error) {
	if apartmentNumber == "" {
		return nil, shared.NewValidationError("apartment number cannot be empty")
	}
	if start.IsZero() {
		return nil, shared.NewValidationError("vacancy start date is required")
	}
	if end != nil && end.Before(start) {
		return nil, shared.NewValidationError("vacancy end %s is before start %s", end, start)
	}
	return &VacancyRecord{
		ID:              uuid.New(),
		ApartmentNumber: apartmentNumber,
		StartDate:       start,
		EndDate:         end,
	}, nil
}

// NewSingleDayVacancy creates the record [date, date]
func NewSingleDayVacancy(apartmentNumber string, date Date) (*VacancyRecord, error) {
	end := date
	return NewVacancyRecord(apartmentNumber, date, &end)
}

// Covers reports whether the record includes date
func (v VacancyRecord) Covers(date Date) bool {
	if date.Before(v.StartDate) {
		return false
	}
	return v.EndDate == nil || !date.After(*v.EndDate)
}

// IsOpenEnded reports whether the record has no end date
func (v VacancyRecord) IsOpenEnded() bool {
	return v.EndDate == nil
}

// CoversApartmentOn reports whether the record is for apartmentNumber and covers date
func (v VacancyRecord) CoversApartmentOn(apartmentNumber string, date Date) bool {
	return v.ApartmentNumber == apartmentNumber && v.Covers(date)
}

// SortVacancies orders records by apartment number, then start date
func SortVacancies(vacancies []VacancyRecord) {
	slices.SortFunc(vacancies, func(a, b VacancyRecord) int {
		if c := CompareApartmentNumbers(a.ApartmentNumber, b.ApartmentNumber); c != 0 {
			return c
		}
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
