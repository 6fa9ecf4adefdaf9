// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/labstack/echo/v4"
)

// PageHandler serves the server-rendered form (post/redirect/get)
type PageHandler interface {
	HandleIndex(c echo.Context) error
	HandleSetText(c echo.Context) error
	HandleSetFile(c echo.Context) error
	HandleSubmit(c echo.Context) error
}

// FormHandler exposes the form state machine as a JSON API
type FormHandler interface {
	HandleGetForm(c echo.Context) error
	HandlePutText(c echo.Context) error
	HandlePostFile(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleDeleteForm(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleServicesStatus(c echo.Context) error
}

// StatusStreamHandler pushes form status transitions over a websocket
type StatusStreamHandler interface {
	HandleStatusStream(c echo.Context) error
}

// SessionStore defines the session operations handlers rely on.
// This allows mocking in tests
type SessionStore interface {
	Get(id string) (*form.SubmissionForm, bool)
	GetOrCreate(id string) (string, *form.SubmissionForm)
	Touch(id string) bool
	Remove(id string) bool
	Count() int
}

// Upstream is the analysis service as seen by the health endpoints
type Upstream interface {
	Health(ctx context.Context) error
	ServicesStatus(ctx context.Context) (*analysis.ServicesStatus, error)
}
