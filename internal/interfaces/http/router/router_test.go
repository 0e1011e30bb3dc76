package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	tagged := func(c *gin.Context) {
		c.Header("X-Api", "yes")
		c.Next()
	}
	r := NewRouter(engine, WithMiddleware(tagged)).Register(
		registrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		}),
		registrarFunc(func(rg *gin.RouterGroup) {
			rg.POST("/cycles/close", func(c *gin.Context) { c.Status(http.StatusCreated) })
		}),
	)
	engine.GET("/outside", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Api"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/outside", nil))
	assert.Empty(t, w.Header().Get("X-Api"), "API middleware stays on the API group")

	assert.ElementsMatch(t, []string{
		"GET /api/v1/ping",
		"POST /api/v1/cycles/close",
		"GET /outside",
	}, r.Routes())
}

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v2")).Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	})).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
