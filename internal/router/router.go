package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/egfr-calculator/internal/handler"
	"github.com/iliyamo/egfr-calculator/internal/middleware"
)

// Handlers bundles what RegisterAll mounts.
type Handlers struct {
	Driver    string
	Auth      *handler.AuthHandler
	EGFR      *handler.EGFRHandler
	Analyses  *handler.AnalysisHandler
	Profiles  *handler.ProfileHandler
	Me        *handler.MeHandler
	Authn     middleware.Authenticator
	RateLimit echo.MiddlewareFunc
	Cache     *middleware.ResponseCache
}

// RegisterAll mounts every route of the API.
func RegisterAll(e *echo.Echo, h Handlers) {
	RegisterRoutes(e, h.Driver)
	RegisterAuth(e, h.Auth, h.Authn, h.RateLimit)
	RegisterEGFR(e, h.EGFR, h.Cache)
	RegisterAnalyses(e, h.Analyses, h.Authn, h.Cache)
	RegisterProfile(e, h.Profiles, h.Me, h.Authn)
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, driver string) {
	e.GET("/healthz", handler.Health(driver))
}

// RegisterAuth mounts /v1/auth.  Register, login and refresh are
// rate-limited and need no session; logout requires an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn middleware.Authenticator, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	if limit != nil {
		g.Use(limit)
	}
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.JWTAuth(authn))
}

// RegisterEGFR mounts the anonymous calculator.
func RegisterEGFR(e *echo.Echo, h *handler.EGFRHandler, cache *middleware.ResponseCache) {
	g := e.Group("/v1/egfr")
	g.POST("/calculate", h.Calculate)
	g.GET("/stages", h.Stages, cache.Middleware())
}

// RegisterAnalyses mounts the caller's saved analyses.  Reads are cached
// per user; every write drops that user's cached reads.
func RegisterAnalyses(e *echo.Echo, h *handler.AnalysisHandler, authn middleware.Authenticator, cache *middleware.ResponseCache) {
	g := e.Group("/v1/analyses", middleware.JWTAuth(authn))
	g.POST("", h.Create, cache.Invalidate())
	g.GET("", h.List, cache.Middleware())
	g.GET("/stats", h.Stats, cache.Middleware())
	g.GET("/:id", h.Get, cache.Middleware())
	g.DELETE("/:id", h.Delete, cache.Invalidate())
}

// RegisterProfile mounts the caller's profile and the post-sign-in bundle.
func RegisterProfile(e *echo.Echo, p *handler.ProfileHandler, me *handler.MeHandler, authn middleware.Authenticator) {
	g := e.Group("/v1", middleware.JWTAuth(authn))
	g.GET("/profile", p.Get)
	g.PUT("/profile", p.Put)
	g.PATCH("/profile", p.Patch)
	g.GET("/me", me.Get)
}
