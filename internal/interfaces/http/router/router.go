package router

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// MountFunc registers routes outside the versioned API group
type MountFunc func(r gin.IRoutes)

type mount struct {
	fn         MountFunc
	middleware []gin.HandlerFunc
}

// Router manages HTTP route registration
type Router struct {
	engine        *gin.Engine
	apiVersion    string
	apiMiddleware []gin.HandlerFunc
	registrars    []RouteRegistrar
	mounts        []mount
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAPIMiddleware adds middleware applied to every versioned route
func WithAPIMiddleware(middleware ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.apiMiddleware = append(r.apiMiddleware, middleware...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Mount adds unversioned routes. The middleware applies to those routes only.
func (r *Router) Mount(fn MountFunc, middleware ...gin.HandlerFunc) *Router {
	r.mounts = append(r.mounts, mount{fn: fn, middleware: middleware})
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.apiMiddleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}

	for _, m := range r.mounts {
		m.fn(r.engine.Group("", m.middleware...))
	}
}
