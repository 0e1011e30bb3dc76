package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Calendar answers roster and calendar queries
type Calendar interface {
	Apartments(ctx context.Context) ([]tanker.Apartment, error)
	ApartmentStatuses(ctx context.Context, date tanker.Date) ([]tanker.ApartmentStatus, error)
	VacantDatesInMonth(ctx context.Context, apt string, year int, month time.Month) ([]tanker.Date, error)
	TankerDatesInMonth(ctx context.Context, year int, month time.Month) ([]tanker.TankerEvent, error)
}

// OccupancyEditor records vacancies and occupancy overrides
type OccupancyEditor interface {
	ToggleVacancy(ctx context.Context, apt string, date tanker.Date, vacant bool) error
	SetOccupancy(ctx context.Context, apt string, date tanker.Date, count int) error
}

// RosterImporter imports a CSV roster
type RosterImporter interface {
	Import(ctx context.Context, r io.Reader) (*billing.ImportResult, error)
}

// ApartmentHandler serves the roster, per-apartment occupancy and the daily calendar
type ApartmentHandler struct {
	BaseHandler
	calendar Calendar
	editor   OccupancyEditor
	roster   RosterImporter
}

// NewApartmentHandler creates a new ApartmentHandler
func NewApartmentHandler(calendar Calendar, editor OccupancyEditor, roster RosterImporter) *ApartmentHandler {
	return &ApartmentHandler{calendar: calendar, editor: editor, roster: roster}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *ApartmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	apartments := rg.Group("/apartments")
	apartments.GET("", h.ListApartments)
	apartments.POST("/import", h.ImportRoster)
	apartments.GET("/:number/vacancies", h.GetVacancies)
	apartments.PUT("/:number/vacancy", h.ToggleVacancy)
	apartments.PUT("/:number/occupancy", h.SetOccupancy)

	rg.GET("/calendar/:date", h.GetCalendarDay)
}

// ListApartments returns the roster in numeric order
//
//	GET /apartments
func (h *ApartmentHandler) ListApartments(c *gin.Context) {
	apartments, err := h.calendar.Apartments(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToApartmentResponses(apartments)))
}

// ImportRoster upserts apartments from a CSV with header
// number,default_occupancy, sent as multipart field "file" or as the raw body
//
//	POST /apartments/import
func (h *ApartmentHandler) ImportRoster(c *gin.Context) {
	body := c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			h.HandleError(c, shared.NewValidationError("multipart field \"file\" is required"))
			return
		}
		f, err := header.Open()
		if err != nil {
			h.HandleError(c, err)
			return
		}
		defer f.Close()
		body = f
	}

	result, err := h.roster.Import(c.Request.Context(), body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToImportResultResponse(result))
}

// GetVacancies lists the dates an apartment is vacant in a month
//
//	GET /apartments/:number/vacancies?month=YYYY-MM
func (h *ApartmentHandler) GetVacancies(c *gin.Context) {
	var q dto.MonthQuery
	if !bind(c, &q, c.ShouldBindQuery) {
		return
	}
	year, month, err := parseMonth(q.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	apt := c.Param("number")
	dates, err := h.calendar.VacantDatesInMonth(c.Request.Context(), apt, year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.VacanciesResponse{
		Apartment: apt,
		Month:     q.Month,
		Dates:     dto.ToDateStrings(dates),
	})
}

// ToggleVacancy marks an apartment vacant or occupied for one date
//
//	PUT /apartments/:number/vacancy {"date": "YYYY-MM-DD", "vacant": true}
func (h *ApartmentHandler) ToggleVacancy(c *gin.Context) {
	var req dto.ToggleVacancyRequest
	if !bind(c, &req, c.ShouldBindJSON) {
		return
	}
	date, err := tanker.ParseDate(req.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.editor.ToggleVacancy(c.Request.Context(), c.Param("number"), date, *req.Vacant); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// SetOccupancy sets the occupants of an apartment for one date; 0 marks it vacant
//
//	PUT /apartments/:number/occupancy {"date": "YYYY-MM-DD", "count": 3}
func (h *ApartmentHandler) SetOccupancy(c *gin.Context) {
	var req dto.SetOccupancyRequest
	if !bind(c, &req, c.ShouldBindJSON) {
		return
	}
	date, err := tanker.ParseDate(req.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.editor.SetOccupancy(c.Request.Context(), c.Param("number"), date, *req.Count); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GetCalendarDay returns every apartment's resolved state on a date
//
//	GET /calendar/:date
func (h *ApartmentHandler) GetCalendarDay(c *gin.Context) {
	date, err := dateParam(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	statuses, err := h.calendar.ApartmentStatuses(c.Request.Context(), date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToApartmentStatusResponses(statuses)))
}
