// routes.go - Route registration helpers
package api

import (
	"time"

	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/enem-redacao/essay-form/internal/storage"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions   SessionStore
	Store      storage.Store
	Upstream   Upstream
	Messages   i18n.Messages
	Locale     string
	CookieName string
	SessionTTL time.Duration
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Page   PageHandler
	Form   FormHandler
	Stream StatusStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps),
		Page:   NewPageHandler(deps),
		Form:   NewFormHandler(deps),
		Stream: NewWebSocketHandler(deps),
	}
}

// RegisterRoutes registers the page and API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Server-rendered form
	e.GET("/", handlers.Page.HandleIndex)
	e.POST("/form/text", handlers.Page.HandleSetText)
	e.POST("/form/file", handlers.Page.HandleSetFile)
	e.POST("/form/submit", handlers.Page.HandleSubmit)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/services-status", handlers.Health.HandleServicesStatus)

	formGroup := apiGroup.Group("/form")
	formGroup.GET("", handlers.Form.HandleGetForm)
	formGroup.PUT("/text", handlers.Form.HandlePutText)
	formGroup.POST("/file", handlers.Form.HandlePostFile)
	formGroup.POST("/submit", handlers.Form.HandleSubmit)
	formGroup.DELETE("", handlers.Form.HandleDeleteForm)
}

// RegisterWebSocketRoutes registers WebSocket routes. Timeout and gzip
// middleware must skip them, see IsWebSocketRequest.
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET(WebSocketPath, handlers.Stream.HandleStatusStream)
}

// WebSocketPath is the status stream endpoint.
const WebSocketPath = "/api/form/ws"

// IsWebSocketRequest reports whether c targets the status stream. Used as a
// middleware skipper.
func IsWebSocketRequest(c echo.Context) bool {
	return c.Path() == WebSocketPath || c.Request().URL.Path == WebSocketPath
}

// SetupErrorHandling installs the structured error handler
func SetupErrorHandling(e *echo.Echo, showDetails bool) {
	e.HTTPErrorHandler = NewErrorHandler(showDetails)
}
