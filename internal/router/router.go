package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/stagekit/showcall/internal/gateway"    // websocket gateway for realtime session sync
	"github.com/stagekit/showcall/internal/handler"    // handlers that implement business logic
	"github.com/stagekit/showcall/internal/middleware" // middleware for JWT authentication
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  Unauthenticated operations live under
// /v1/auth, protected endpoints under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Token issuing and exchange does not require an existing session.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts a JSON body with a refresh_token and revokes it; no
	// access token is required.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterShow registers the session registry and cue sheet endpoints.
// Everything here requires a valid access token; per-session
// authorization (membership, capability) is enforced by the core, not
// by route middleware, because a role only exists inside a membership.
func RegisterShow(e *echo.Echo, s *handler.SessionHandler, cs *handler.CueSheetHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/sessions", s.Create)
	g.POST("/sessions/join", s.Join)
	g.POST("/sessions/:id/close", s.Close)
	g.POST("/sessions/:id/role", s.SwitchRole)

	g.POST("/sessions/:id/cuesheets", cs.Create)
	g.GET("/sessions/:id/cuesheets/active", cs.Active)
}

// RegisterGateway mounts the realtime websocket endpoint.  The gateway
// authenticates the token itself (browser websocket clients cannot set
// an Authorization header, so a query token is also accepted).
func RegisterGateway(e *echo.Echo, gw *gateway.Gateway) {
	e.GET("/ws", echo.WrapHandler(gw.Handler()))
}
