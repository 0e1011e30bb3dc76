package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/export"
	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillingQueries is the billing service surface used by BillingHandler
type BillingQueries interface {
	Today() tanker.Date
	Report(ctx context.Context, r tanker.DateRange) (billing.Report, error)
	History(ctx context.Context) ([]tanker.BillingCycle, error)
	CycleReport(ctx context.Context, cycleID uuid.UUID) (billing.Report, error)
	CloseCycle(ctx context.Context) (tanker.BillingCycle, error)
}

// CycleCounter reports the open cycle and its tanker total
type CycleCounter interface {
	CurrentCycleTankerCount(ctx context.Context) (int, tanker.CycleBoundary, error)
}

// BillingHandler serves bills, billing cycles and report exports
type BillingHandler struct {
	BaseHandler
	billing BillingQueries
	cycles  CycleCounter
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(billing BillingQueries, cycles CycleCounter) *BillingHandler {
	return &BillingHandler{billing: billing, cycles: cycles}
}

// RegisterRoutes implements router.RouteRegistrar
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bills", h.GetBills)
	rg.GET("/reports/bills", h.ExportBills)

	cycles := rg.Group("/cycles")
	cycles.GET("", h.ListCycles)
	cycles.GET("/current", h.GetCurrentCycle)
	cycles.POST("/close", h.CloseCycle)
	cycles.GET("/:id/report", h.GetCycleReport)
}

// GetBills computes the bills of the (from, to] range once
//
//	GET /bills?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *BillingHandler) GetBills(c *gin.Context) {
	var q dto.RangeQuery
	if !bind(c, &q, c.ShouldBindQuery) {
		return
	}
	r, err := parseRange(q)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	report, err := h.billing.Report(c.Request.Context(), r)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToReportResponse(report))
}

// ExportBills renders the bills of a range as text, CSV or XLSX
//
//	GET /reports/bills?from=&to=&format=text|csv|xlsx
func (h *BillingHandler) ExportBills(c *gin.Context) {
	var q dto.ReportQuery
	if !bind(c, &q, c.ShouldBindQuery) {
		return
	}
	r, err := parseRange(q.RangeQuery)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	renderer, err := export.ForFormat(q.Format)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	report, err := h.billing.Report(c.Request.Context(), r)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.attach(c, renderer, report, "bills"+rangeSuffix(r))
}

// ListCycles returns closed cycles, oldest first
//
//	GET /cycles
func (h *BillingHandler) ListCycles(c *gin.Context) {
	cycles, err := h.billing.History(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToCycleResponses(cycles)))
}

// GetCurrentCycle returns the open cycle's start and tanker total
//
//	GET /cycles/current
func (h *BillingHandler) GetCurrentCycle(c *gin.Context) {
	total, boundary, err := h.cycles.CurrentCycleTankerCount(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CurrentCycleResponse{
		StartDate:    boundary.StartDate.String(),
		Today:        h.billing.Today().String(),
		TotalTankers: total,
	})
}

// CloseCycle closes the open cycle through today
//
//	POST /cycles/close
func (h *BillingHandler) CloseCycle(c *gin.Context) {
	cycle, err := h.billing.CloseCycle(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.ToCycleResponse(cycle)))
}

// GetCycleReport recomputes the bills of a closed cycle. With a format
// query parameter the report is rendered as a file instead of JSON.
//
//	GET /cycles/:id/report?format=
func (h *BillingHandler) GetCycleReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.HandleError(c, shared.NewValidationError("malformed cycle id %q", c.Param("id")))
		return
	}
	format := c.Query("format")
	var renderer billing.ReportRenderer
	if format != "" {
		if renderer, err = export.ForFormat(format); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	report, err := h.billing.CycleReport(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if renderer == nil {
		h.Success(c, dto.ToReportResponse(report))
		return
	}
	h.attach(c, renderer, report, "cycle"+rangeSuffix(report.Range))
}

// attach renders report into memory first so a render failure still
// produces a JSON error instead of a truncated file
func (h *BillingHandler) attach(c *gin.Context, renderer billing.ReportRenderer, report billing.Report, name string) {
	var buf bytes.Buffer
	if err := renderer.Render(&buf, report); err != nil {
		h.HandleError(c, fmt.Errorf("render report: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, name, renderer.Extension()))
	c.Data(http.StatusOK, renderer.ContentType(), buf.Bytes())
}

func rangeSuffix(r tanker.DateRange) string {
	s := ""
	if r.From != nil {
		s += "_" + r.From.String()
	}
	if r.To != nil {
		s += "_to_" + r.To.String()
	}
	return s
}
