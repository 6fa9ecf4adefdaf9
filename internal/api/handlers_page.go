// handlers_page.go - Server-rendered form handlers (post/redirect/get)
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/enem-redacao/essay-form/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// pageStatusTimeout bounds the services badge lookup so a slow upstream
// never delays the page.
const pageStatusTimeout = 1500 * time.Millisecond

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	formBinder
	upstream Upstream
	messages i18n.Messages
	locale   string
}

// NewPageHandler creates a new page handler instance
func NewPageHandler(deps *Dependencies) PageHandler {
	return &PageHandlerImpl{
		formBinder: newFormBinder(deps.Sessions, deps.Store, deps.CookieName, deps.SessionTTL),
		upstream:   deps.Upstream,
		messages:   deps.Messages,
		locale:     deps.Locale,
	}
}

// HandleIndex renders the form for the caller's session
func (h *PageHandlerImpl) HandleIndex(c echo.Context) error {
	f := h.current(c)
	view := f.View()

	page := &web.Page{
		Lang:     h.locale,
		Messages: h.messages,
		View:     view,
	}
	if view.Status != models.SubmissionStatusPending {
		page.Services = h.servicesStatus(c.Request().Context())
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Render(http.StatusOK, web.IndexTemplate, page)
}

func (h *PageHandlerImpl) servicesStatus(ctx context.Context) *analysis.ServicesStatus {
	if h.upstream == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pageStatusTimeout)
	defer cancel()

	status, err := h.upstream.ServicesStatus(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("services status unavailable")
		return nil
	}
	return status
}

// HandleSetText replaces the input with the posted text
func (h *PageHandlerImpl) HandleSetText(c echo.Context) error {
	f := h.current(c)
	if err := f.SetText(c.FormValue("text")); err != nil {
		log.Debug().Err(err).Str("form", f.ID()).Msg("set text")
	}
	return h.redirectHome(c)
}

// HandleSetFile selects the first posted file
func (h *PageHandlerImpl) HandleSetFile(c echo.Context) error {
	f := h.current(c)
	files, err := uploadedFiles(c, "file")
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	if _, _, err := h.attachFile(f, files); err != nil {
		return err
	}
	return h.redirectHome(c)
}

// HandleSubmit applies the posted fields and starts the analysis. Validation
// and pending outcomes are already part of the form state the redirect shows.
func (h *PageHandlerImpl) HandleSubmit(c echo.Context) error {
	f := h.current(c)

	files, err := uploadedFiles(c, "file")
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}

	attached := false
	if len(files) > 0 {
		if _, attached, err = h.attachFile(f, files); err != nil {
			return err
		}
	}
	if !attached {
		h.applyText(c, f)
	}

	err = f.Submit()
	var validation *form.ValidationError
	switch {
	case err == nil, errors.Is(err, form.ErrSubmissionPending), errors.As(err, &validation):
	default:
		log.Warn().Err(err).Str("form", f.ID()).Msg("submit failed")
	}
	return h.redirectHome(c)
}

// applyText takes the textarea value unless the user left it blank while a
// file is selected.
func (h *PageHandlerImpl) applyText(c echo.Context, f *form.SubmissionForm) {
	values, err := c.FormParams()
	if err != nil {
		return
	}
	texts, ok := values["text"]
	if !ok {
		return
	}
	text := ""
	if len(texts) > 0 {
		text = texts[0]
	}
	if text == "" && f.Input().Kind() == models.InputFile {
		return
	}
	if err := f.SetText(text); err != nil {
		log.Debug().Err(err).Str("form", f.ID()).Msg("set text")
	}
}

func (h *PageHandlerImpl) redirectHome(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/")
}
