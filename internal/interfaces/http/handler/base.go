// Package handler implements the gin handlers of the tanker billing API.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/logger"
	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/arungoks/tankerapp/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response, deriving the status from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// HandleError converts an error to a response. Domain errors keep their code;
// anything else is an internal error whose details are logged, not returned.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		if dto.GetHTTPStatus(domainErr.Code) >= http.StatusInternalServerError {
			logger.GetGinLogger(c).Error("Request failed", zap.String("code", domainErr.Code), zap.Error(err))
		}
		h.Error(c, domainErr.Code, domainErr.Message)
		return
	}

	logger.GetGinLogger(c).Error("Unexpected error", zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}

// bind binds the request into req with bindFn, answering 400 on failure
func bind(c *gin.Context, req any, bindFn func(any) error) bool {
	if err := bindFn(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// parseOptionalDate parses s as YYYY-MM-DD; empty means unbounded
func parseOptionalDate(s string) (*tanker.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := tanker.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseRange builds the (from, to] range of q
func parseRange(q dto.RangeQuery) (tanker.DateRange, error) {
	from, err := parseOptionalDate(q.From)
	if err != nil {
		return tanker.DateRange{}, err
	}
	to, err := parseOptionalDate(q.To)
	if err != nil {
		return tanker.DateRange{}, err
	}
	r := tanker.DateRange{From: from, To: to}
	return r, r.Validate()
}

// parseMonth parses YYYY-MM
func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, shared.NewValidationError("malformed month %q, expected YYYY-MM", s)
	}
	return t.Year(), t.Month(), nil
}

// dateParam parses the :date path parameter
func dateParam(c *gin.Context) (tanker.Date, error) {
	return tanker.ParseDate(c.Param("date"))
}
