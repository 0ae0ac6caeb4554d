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

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

func deny(c *gin.Context) {
	c.AbortWithStatus(http.StatusUnauthorized)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
	assert.Empty(t, r.mounts)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterRegister(t *testing.T) {
	r := NewRouter(gin.New())
	r.Register(pingRegistrar{}).Register(pingRegistrar{})
	assert.Len(t, r.registrars, 2)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v1")).Register(pingRegistrar{}).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/ping").Code)
}

func TestRouterAPIMiddleware(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIMiddleware(deny)).
		Register(pingRegistrar{}).
		Mount(func(r gin.IRoutes) {
			r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		}).
		Setup()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/ping").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health").Code)
}

func TestRouterMount(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Mount(func(r gin.IRoutes) {
			r.POST("/queue_task", func(c *gin.Context) { c.Status(http.StatusOK) })
		}, deny).
		Mount(func(r gin.IRoutes) {
			r.POST("/wsdl", func(c *gin.Context) { c.Status(http.StatusOK) })
		}).
		Setup()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/queue_task").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/wsdl").Code)
}
