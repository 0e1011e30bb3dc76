package dto

import (
	"time"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	csvimport "github.com/arungoks/tankerapp/internal/infrastructure/import"
	"github.com/google/uuid"
)

// RangeQuery is the optional (from, to] date range of bill queries
type RangeQuery struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// ReportQuery selects the range and output format of a report export
type ReportQuery struct {
	RangeQuery
	Format string `form:"format" binding:"omitempty,oneof=text txt csv xlsx excel"`
}

// MonthQuery selects a calendar month as YYYY-MM
type MonthQuery struct {
	Month string `form:"month" binding:"required,datetime=2006-01"`
}

// ToggleVacancyRequest marks an apartment vacant or occupied for one date
type ToggleVacancyRequest struct {
	Date   string `json:"date" binding:"required,datetime=2006-01-02"`
	Vacant *bool  `json:"vacant" binding:"required"`
}

// SetOccupancyRequest sets the occupant count of an apartment for one date
type SetOccupancyRequest struct {
	Date  string `json:"date" binding:"required,datetime=2006-01-02"`
	Count *int   `json:"count" binding:"required,gte=0"`
}

// SetTankerCountRequest sets the number of tankers delivered on a date
type SetTankerCountRequest struct {
	Count *int `json:"count" binding:"required,gte=0"`
}

// ApartmentResponse is one roster entry
type ApartmentResponse struct {
	Number           string `json:"number"`
	DefaultOccupancy int    `json:"default_occupancy"`
}

// BillResponse is the bill of one apartment
type BillResponse struct {
	Apartment               ApartmentResponse `json:"apartment"`
	BillableTankers         int               `json:"billable_tankers"`
	TotalTankersInCycle     int               `json:"total_tankers_in_cycle"`
	DailyBreakdown          map[string]int    `json:"daily_breakdown"`
	DailyOccupancyBreakdown map[string]int    `json:"daily_occupancy_breakdown"`
}

// RangeResponse echoes a (from, to] range; a missing bound is unbounded
type RangeResponse struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// ReportResponse is a computed bill list with its context
type ReportResponse struct {
	Range        RangeResponse  `json:"range"`
	TotalTankers int            `json:"total_tankers"`
	Bills        []BillResponse `json:"bills"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// CycleResponse is one closed billing cycle
type CycleResponse struct {
	ID           uuid.UUID `json:"id"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	TotalTankers int       `json:"total_tankers"`
	ClosedAt     time.Time `json:"closed_at"`
}

// CurrentCycleResponse describes the open cycle
type CurrentCycleResponse struct {
	StartDate    string `json:"start_date"` // exclusive
	Today        string `json:"today"`
	TotalTankers int    `json:"total_tankers"`
}

// ApartmentStatusResponse is an apartment's resolved state on one date
type ApartmentStatusResponse struct {
	Apartment        string `json:"apartment"`
	DefaultOccupancy int    `json:"default_occupancy"`
	Date             string `json:"date"`
	Occupancy        int    `json:"occupancy"`
	Vacant           bool   `json:"vacant"`
	Overridden       bool   `json:"overridden"`
}

// TankerEventResponse is the tanker count of one date
type TankerEventResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// VacanciesResponse lists the vacant dates of an apartment in a month
type VacanciesResponse struct {
	Apartment string   `json:"apartment"`
	Month     string   `json:"month"`
	Dates     []string `json:"dates"`
}

// ImportResultResponse summarizes a roster import
type ImportResultResponse struct {
	TotalRows int                  `json:"total_rows"`
	Created   int                  `json:"created"`
	Updated   int                  `json:"updated"`
	Skipped   int                  `json:"skipped"`
	Errors    []csvimport.RowError `json:"errors,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
}

// ToApartmentResponse converts a roster entry
func ToApartmentResponse(a tanker.Apartment) ApartmentResponse {
	return ApartmentResponse{Number: a.Number, DefaultOccupancy: a.DefaultOccupancy}
}

// ToApartmentResponses converts a roster
func ToApartmentResponses(apartments []tanker.Apartment) []ApartmentResponse {
	out := make([]ApartmentResponse, len(apartments))
	for i, a := range apartments {
		out[i] = ToApartmentResponse(a)
	}
	return out
}

func dateKeyed(m map[tanker.Date]int) map[string]int {
	out := make(map[string]int, len(m))
	for d, v := range m {
		out[d.String()] = v
	}
	return out
}

// ToBillResponses converts a bill list, keeping its order
func ToBillResponses(bills []tanker.ApartmentBill) []BillResponse {
	out := make([]BillResponse, len(bills))
	for i, b := range bills {
		out[i] = BillResponse{
			Apartment:               ToApartmentResponse(b.Apartment),
			BillableTankers:         b.BillableTankers,
			TotalTankersInCycle:     b.TotalTankersInCycle,
			DailyBreakdown:          dateKeyed(b.DailyBreakdown),
			DailyOccupancyBreakdown: dateKeyed(b.DailyOccupancyBreakdown),
		}
	}
	return out
}

// ToRangeResponse converts a date range
func ToRangeResponse(r tanker.DateRange) RangeResponse {
	var out RangeResponse
	if r.From != nil {
		s := r.From.String()
		out.From = &s
	}
	if r.To != nil {
		s := r.To.String()
		out.To = &s
	}
	return out
}

// ToReportResponse converts a computed report
func ToReportResponse(r billing.Report) ReportResponse {
	return ReportResponse{
		Range:        ToRangeResponse(r.Range),
		TotalTankers: r.TotalTankers,
		Bills:        ToBillResponses(r.Bills),
		GeneratedAt:  r.GeneratedAt,
	}
}

// ToCycleResponses converts cycle history, keeping its order
func ToCycleResponses(cycles []tanker.BillingCycle) []CycleResponse {
	out := make([]CycleResponse, len(cycles))
	for i, c := range cycles {
		out[i] = ToCycleResponse(c)
	}
	return out
}

// ToCycleResponse converts one closed cycle
func ToCycleResponse(c tanker.BillingCycle) CycleResponse {
	return CycleResponse{
		ID:           c.ID,
		StartDate:    c.StartDate.String(),
		EndDate:      c.EndDate.String(),
		TotalTankers: c.TotalTankersSnapshot,
		ClosedAt:     c.CreatedAt,
	}
}

// ToApartmentStatusResponses converts calendar statuses
func ToApartmentStatusResponses(statuses []tanker.ApartmentStatus) []ApartmentStatusResponse {
	out := make([]ApartmentStatusResponse, len(statuses))
	for i, s := range statuses {
		out[i] = ApartmentStatusResponse{
			Apartment:        s.Apartment.Number,
			DefaultOccupancy: s.Apartment.DefaultOccupancy,
			Date:             s.Date.String(),
			Occupancy:        s.Occupancy,
			Vacant:           s.Vacant,
			Overridden:       s.Overridden,
		}
	}
	return out
}

// ToTankerEventResponses converts tanker events
func ToTankerEventResponses(events []tanker.TankerEvent) []TankerEventResponse {
	out := make([]TankerEventResponse, len(events))
	for i, e := range events {
		out[i] = TankerEventResponse{Date: e.Date.String(), Count: e.Count}
	}
	return out
}

// ToDateStrings formats dates as YYYY-MM-DD
func ToDateStrings(dates []tanker.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

// ToImportResultResponse converts a roster import result
func ToImportResultResponse(r *billing.ImportResult) ImportResultResponse {
	return ImportResultResponse{
		TotalRows: r.TotalRows,
		Created:   r.Created,
		Updated:   r.Updated,
		Skipped:   r.Skipped,
		Errors:    r.Errors,
		Truncated: r.Truncated,
	}
}
