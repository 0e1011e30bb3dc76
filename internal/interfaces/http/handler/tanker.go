package handler

import (
	"context"
	"net/http"

	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// TankerEditor records tanker deliveries
type TankerEditor interface {
	IncrementTanker(ctx context.Context, date tanker.Date) error
	DecrementTanker(ctx context.Context, date tanker.Date) error
	SetTankerCount(ctx context.Context, date tanker.Date, count int) error
}

// TankerHandler serves tanker delivery counts
type TankerHandler struct {
	BaseHandler
	calendar Calendar
	editor   TankerEditor
}

// NewTankerHandler creates a new TankerHandler
func NewTankerHandler(calendar Calendar, editor TankerEditor) *TankerHandler {
	return &TankerHandler{calendar: calendar, editor: editor}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *TankerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tankers := rg.Group("/tankers")
	tankers.GET("", h.ListTankers)
	tankers.PUT("/:date", h.SetTankerCount)
	tankers.POST("/:date/increment", h.IncrementTanker)
	tankers.POST("/:date/decrement", h.DecrementTanker)
}

// ListTankers returns the dates of a month with deliveries
//
//	GET /tankers?month=YYYY-MM
func (h *TankerHandler) ListTankers(c *gin.Context) {
	var q dto.MonthQuery
	if !bind(c, &q, c.ShouldBindQuery) {
		return
	}
	year, month, err := parseMonth(q.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	events, err := h.calendar.TankerDatesInMonth(c.Request.Context(), year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToTankerEventResponses(events)))
}

// SetTankerCount sets the deliveries of a date; 0 removes the record
//
//	PUT /tankers/:date {"count": 2}
func (h *TankerHandler) SetTankerCount(c *gin.Context) {
	date, err := dateParam(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.SetTankerCountRequest
	if !bind(c, &req, c.ShouldBindJSON) {
		return
	}

	if err := h.editor.SetTankerCount(c.Request.Context(), date, *req.Count); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// IncrementTanker records one more delivery on a date
//
//	POST /tankers/:date/increment
func (h *TankerHandler) IncrementTanker(c *gin.Context) {
	h.adjust(c, h.editor.IncrementTanker)
}

// DecrementTanker removes one delivery from a date, never going below zero
//
//	POST /tankers/:date/decrement
func (h *TankerHandler) DecrementTanker(c *gin.Context) {
	h.adjust(c, h.editor.DecrementTanker)
}

func (h *TankerHandler) adjust(c *gin.Context, op func(context.Context, tanker.Date) error) {
	date, err := dateParam(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := op(c.Request.Context(), date); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
