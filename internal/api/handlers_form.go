// handlers_form.go - JSON API over the submission form
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack selects the msgpack encoding of the render model.
const MIMEApplicationMsgpack = "application/msgpack"

// FormHandlerImpl implements the FormHandler interface
type FormHandlerImpl struct {
	formBinder
}

// NewFormHandler creates a new form API handler instance
func NewFormHandler(deps *Dependencies) FormHandler {
	return &FormHandlerImpl{
		formBinder: newFormBinder(deps.Sessions, deps.Store, deps.CookieName, deps.SessionTTL),
	}
}

// setTextRequest is the body of PUT /api/form/text
type setTextRequest struct {
	Text *string `json:"text"`
}

// HandleGetForm returns the render model, as msgpack when the client asks for it
func (h *FormHandlerImpl) HandleGetForm(c echo.Context) error {
	return respondView(c, http.StatusOK, h.current(c).View())
}

// HandlePutText replaces the input with text
func (h *FormHandlerImpl) HandlePutText(c echo.Context) error {
	var req setTextRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Text == nil {
		return NewBadRequestError("missing field: text", nil)
	}

	f := h.current(c)
	if err := f.SetText(*req.Text); err != nil {
		return NewConflictError(err.Error())
	}
	return respondView(c, http.StatusOK, f.View())
}

// HandlePostFile selects the first file of the multipart field "file"
func (h *FormHandlerImpl) HandlePostFile(c echo.Context) error {
	files, err := uploadedFiles(c, "file")
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	if len(files) == 0 {
		return NewBadRequestError("no file provided", nil)
	}

	f := h.current(c)
	handle, accepted, err := h.attachFile(f, files)
	if err != nil {
		return err
	}
	if !accepted {
		return NewUnsupportedMediaError(handle.ContentType)
	}
	return respondView(c, http.StatusOK, f.View())
}

// HandleSubmit starts the analysis of the current input
func (h *FormHandlerImpl) HandleSubmit(c echo.Context) error {
	f := h.current(c)

	err := f.Submit()
	var validation *form.ValidationError
	switch {
	case err == nil:
		return respondView(c, http.StatusAccepted, f.View())
	case errors.Is(err, form.ErrSubmissionPending):
		return NewConflictError(err.Error())
	case errors.As(err, &validation):
		return NewValidationError(validation.Message)
	case errors.Is(err, form.ErrClosed):
		return NewConflictError(err.Error())
	default:
		return NewInternalError(f.View().ErrorMessage, err)
	}
}

// HandleDeleteForm unmounts the caller's form, aborting any in-flight request
func (h *FormHandlerImpl) HandleDeleteForm(c echo.Context) error {
	id, _, ok := h.existing(c)
	if !ok {
		return NewNotFoundError("form", id)
	}
	h.sessions.Remove(id)
	h.clearCookie(c)
	log.Info().Str("form", id).Msg("form unmounted")
	return c.NoContent(http.StatusNoContent)
}

func respondView(c echo.Context, status int, view form.View) error {
	if !acceptsMsgpack(c) {
		return c.JSON(status, view)
	}
	data, err := msgpack.Marshal(view)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(status, MIMEApplicationMsgpack, data)
}

func acceptsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEApplicationMsgpack) || strings.Contains(accept, "application/x-msgpack")
}
