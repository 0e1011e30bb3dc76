package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arungoks/tankerapp/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleValidationError(t *testing.T) {
	SetupValidator()

	r := gin.New()
	r.PUT("/vacancy", func(c *gin.Context) {
		var req dto.ToggleVacancyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	put := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/vacancy", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("valid", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, put(`{"date":"2026-02-10","vacant":false}`).Code)
	})

	t.Run("field details use json names", func(t *testing.T) {
		w := put(`{"date":"10/02/2026"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "Must be a date formatted YYYY-MM-DD", messages["date"])
		assert.Equal(t, "This field is required", messages["vacant"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w := put(`{"date":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Empty(t, resp.Error.Details)
		assert.NotEmpty(t, resp.Error.Message)
	})
}
