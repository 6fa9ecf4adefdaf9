// handlers.go - Session binding and input helpers shared by page and API handlers
package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/enem-redacao/essay-form/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// DefaultCookieName is used when no cookie name is configured.
const DefaultCookieName = "essay_form_session"

// formBinder resolves the caller's form from the session cookie
type formBinder struct {
	sessions   SessionStore
	store      storage.Store
	cookieName string
	cookieTTL  time.Duration
}

func newFormBinder(sessions SessionStore, store storage.Store, cookieName string, ttl time.Duration) formBinder {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return formBinder{sessions: sessions, store: store, cookieName: cookieName, cookieTTL: ttl}
}

func (b formBinder) sessionID(c echo.Context) string {
	cookie, err := c.Cookie(b.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// current returns the caller's form, mounting one and issuing a cookie when
// the request carries no live session.
func (b formBinder) current(c echo.Context) *form.SubmissionForm {
	prev := b.sessionID(c)
	id, f := b.sessions.GetOrCreate(prev)
	if id != prev {
		b.setCookie(c, id)
	}
	return f
}

// existing returns the caller's form without mounting a new one.
func (b formBinder) existing(c echo.Context) (string, *form.SubmissionForm, bool) {
	id := b.sessionID(c)
	if id == "" {
		return "", nil, false
	}
	f, ok := b.sessions.Get(id)
	return id, f, ok
}

func (b formBinder) setCookie(c echo.Context, id string) {
	cookie := &http.Cookie{
		Name:     b.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if b.cookieTTL > 0 {
		cookie.MaxAge = int(b.cookieTTL.Seconds())
	}
	c.SetCookie(cookie)
}

func (b formBinder) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     b.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// attachFile stores the first uploaded file and hands it to the form. A file
// the form does not accept is removed from storage again and reported as
// not accepted; the form's input is left unchanged in that case.
func (b formBinder) attachFile(f *form.SubmissionForm, files []*multipart.FileHeader) (*models.FileHandle, bool, error) {
	if len(files) == 0 {
		return nil, false, nil
	}
	fh := files[0]

	src, err := fh.Open()
	if err != nil {
		return nil, false, NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	handle, err := b.store.Save(fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			return nil, false, NewPayloadTooLargeError(err.Error())
		}
		return nil, false, NewInternalError("failed to save file", err)
	}

	accepted, err := f.SetFile(*handle)
	if err != nil || !accepted {
		if delErr := b.store.Delete(handle.ID); delErr != nil {
			log.Warn().Err(delErr).Str("file", handle.ID).Msg("failed to discard rejected upload")
		}
		if err != nil {
			return handle, false, NewConflictError(err.Error())
		}
		log.Debug().Str("form", f.ID()).Str("contentType", handle.ContentType).Msg("ignored unsupported file")
		return handle, false, nil
	}

	log.Info().Str("form", f.ID()).Str("file", handle.ID).Str("name", handle.Name).Int64("size", handle.Size).Msg("file selected")
	return handle, true, nil
}

// uploadedFiles returns the parts of the named multipart field, if any.
func uploadedFiles(c echo.Context, field string) ([]*multipart.FileHeader, error) {
	mf, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	return mf.File[field], nil
}
