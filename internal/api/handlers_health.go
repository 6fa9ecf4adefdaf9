// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionStore
	upstream Upstream
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps *Dependencies) HealthHandler {
	return &HealthHandlerImpl{
		version:  deps.Version,
		sessions: deps.Sessions,
		upstream: deps.Upstream,
	}
}

// HandleHealth returns server health plus reachability of the analysis service.
// The server itself is healthy even when the analysis service is not.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"analysis": "ok",
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}
	if err := h.upstream.Health(c.Request().Context()); err != nil {
		resp["analysis"] = "unreachable"
		resp["analysisError"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleServicesStatus proxies the analysis service's per-service report
func (h *HealthHandlerImpl) HandleServicesStatus(c echo.Context) error {
	status, err := h.upstream.ServicesStatus(c.Request().Context())
	if err != nil {
		return NewServiceUnavailableError("analysis service unavailable", err)
	}
	return c.JSON(http.StatusOK, status)
}
