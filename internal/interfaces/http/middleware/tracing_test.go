package middleware

import (
	"net/http"
	"testing"

	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return sr
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func tracedEngine() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test"}), SpanEnricher())
	r.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.PUT("/apartments/:number/vacancy", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/tankers/:date/decrement", func(c *gin.Context) {
		c.Set(ErrorCodeKey, "NOT_FOUND")
		c.Status(http.StatusNotFound)
	})
	r.POST("/cycles/close", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	return r
}

func TestSpanEnricher_AddsPathAttributes(t *testing.T) {
	sr := setupTestTracer(t)

	w := serve(tracedEngine(), http.MethodPut, "/apartments/101/vacancy", http.Header{RequestIDHeader: {"req-1"}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	a := attrs(spans[0])
	assert.Equal(t, "101", a[telemetry.SpanAttrApartment].AsString())
	assert.Equal(t, "req-1", a["request_id"].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestSpanEnricher_MarksErrors(t *testing.T) {
	sr := setupTestTracer(t)
	engine := tracedEngine()

	serve(engine, http.MethodPost, "/tankers/2026-02-10/decrement", nil)
	serve(engine, http.MethodPost, "/cycles/close", nil)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	notFound := spans[0]
	assert.Equal(t, codes.Error, notFound.Status().Code)
	assert.Equal(t, "Not Found", notFound.Status().Description)
	assert.Equal(t, "2026-02-10", attrs(notFound)[telemetry.SpanAttrDate].AsString())
	assert.Equal(t, "NOT_FOUND", attrs(notFound)[telemetry.AttrErrorCode].AsString())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracing_SkipsHealthAndDisabled(t *testing.T) {
	sr := setupTestTracer(t)

	serve(tracedEngine(), http.MethodGet, "/api/v1/health", nil)
	assert.Empty(t, sr.Ended())

	r := gin.New()
	r.Use(TracingWithConfig(TracingConfig{Enabled: false}), SpanEnricher())
	r.GET("/bills", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/bills", nil).Code)
	assert.Empty(t, sr.Ended())
}
