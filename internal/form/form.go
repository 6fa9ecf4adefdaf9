// Package form implements the essay submission form: one exclusive input,
// one in-flight analysis request, and the render model derived from them.
package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSubmissionPending is returned by Submit while a request is in flight.
	// The form is left untouched.
	ErrSubmissionPending = errors.New("submission already pending")

	// ErrClosed is returned by operations on a closed form.
	ErrClosed = errors.New("form is closed")
)

// ValidationError reports a submit attempt with nothing entered. It never
// reaches the network.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Analyzer performs the outbound analysis request.
type Analyzer interface {
	Analyze(ctx context.Context, sub analysis.Submission) (*models.AnalysisResult, error)
}

// FileStore gives the form access to uploaded files it holds handles for.
type FileStore interface {
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
}

// SubmissionForm owns the input, status and outcome of one user's form.
// All methods are safe for concurrent use.
type SubmissionForm struct {
	id       string
	analyzer Analyzer
	files    FileStore
	messages i18n.Messages
	timeout  time.Duration

	mu       sync.Mutex
	input    models.InputState
	status   models.SubmissionStatus
	result   *models.AnalysisResult
	errMsg   string
	cancel   context.CancelFunc
	done     chan struct{}
	requests int
	closed   bool

	subs   map[int]chan models.StatusEvent
	nextID int
}

// Option configures a SubmissionForm.
type Option func(*SubmissionForm)

// WithID sets the identifier used in logs and status events.
func WithID(id string) Option {
	return func(f *SubmissionForm) { f.id = id }
}

// WithMessages sets the localized strings used for error messages and labels.
func WithMessages(m i18n.Messages) Option {
	return func(f *SubmissionForm) { f.messages = m }
}

// WithTimeout bounds each analysis request. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(f *SubmissionForm) { f.timeout = d }
}

// New creates an idle, empty form. files may be nil when only text is used.
func New(analyzer Analyzer, files FileStore, opts ...Option) *SubmissionForm {
	f := &SubmissionForm{
		analyzer: analyzer,
		files:    files,
		status:   models.SubmissionStatusIdle,
		subs:     make(map[int]chan models.StatusEvent),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.messages == (i18n.Messages{}) {
		f.messages = i18n.Embedded().Lookup("")
	}
	return f
}

// ID returns the form identifier.
func (f *SubmissionForm) ID() string {
	return f.id
}

// SetText replaces the input with text, dropping any selected file.
func (f *SubmissionForm) SetText(value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	f.replaceInput(models.TextInput(value))
	return nil
}

// SetFile selects the first of handles, dropping any typed text. Files of an
// unsupported type are ignored and the input is left as it was; the returned
// bool reports whether the file was taken.
func (f *SubmissionForm) SetFile(handles ...models.FileHandle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, ErrClosed
	}
	if len(handles) == 0 || !models.IsAcceptedFileType(handles[0].ContentType) {
		return false, nil
	}
	f.replaceInput(models.FileInput(handles[0]))
	return true, nil
}

// replaceInput swaps the input and releases a file that is no longer held.
// Caller holds f.mu.
func (f *SubmissionForm) replaceInput(next models.InputState) {
	if old, ok := f.input.File(); ok {
		if cur, same := next.File(); !same || cur.ID != old.ID {
			f.releaseFile(old)
		}
	}
	f.input = next
}

func (f *SubmissionForm) releaseFile(h models.FileHandle) {
	if f.files == nil {
		return
	}
	if err := f.files.Delete(h.ID); err != nil {
		log.Debug().Err(err).Str("form", f.id).Str("file", h.ID).Msg("release file")
	}
}

// Input returns the current input.
func (f *SubmissionForm) Input() models.InputState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// Status returns the current submission status.
func (f *SubmissionForm) Status() models.SubmissionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// RequestCount returns how many analysis requests this form has issued.
func (f *SubmissionForm) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Submit validates the input and starts one analysis request in the
// background. It returns ErrSubmissionPending without side effects while a
// request is in flight, and a *ValidationError when nothing was entered.
func (f *SubmissionForm) Submit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if !f.status.CanSubmit() {
		return ErrSubmissionPending
	}

	if f.input.IsEmpty() {
		f.result = nil
		f.errMsg = f.messages.ValidationEmpty
		f.setStatus(models.SubmissionStatusFailed)
		return &ValidationError{Message: f.errMsg}
	}

	sub, body, err := f.buildSubmission()
	if err != nil {
		f.result = nil
		f.errMsg = f.messages.RequestFallback
		f.setStatus(models.SubmissionStatusFailed)
		log.Warn().Err(err).Str("form", f.id).Msg("could not read selected file")
		return err
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), f.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})

	f.result = nil
	f.errMsg = ""
	f.cancel = cancel
	f.done = done
	f.requests++
	f.setStatus(models.SubmissionStatusPending)

	log.Info().Str("form", f.id).Str("input", f.input.Kind().String()).Msg("submitting essay for analysis")

	go f.run(ctx, cancel, sub, body, done)
	return nil
}

// buildSubmission maps the input onto the wire payload. The returned closer,
// if any, must be closed once the request finishes. Caller holds f.mu.
func (f *SubmissionForm) buildSubmission() (analysis.Submission, io.Closer, error) {
	if h, ok := f.input.File(); ok {
		if f.files == nil {
			return analysis.Submission{}, nil, fmt.Errorf("no file store configured")
		}
		rc, err := f.files.Open(h.ID)
		if err != nil {
			return analysis.Submission{}, nil, fmt.Errorf("opening %s: %w", h.ID, err)
		}
		return analysis.Submission{File: &analysis.FilePart{
			Name:        h.Name,
			ContentType: h.ContentType,
			Content:     rc,
		}}, rc, nil
	}

	text, _ := f.input.Text()
	return analysis.Submission{Text: text}, nil, nil
}

func (f *SubmissionForm) run(ctx context.Context, cancel context.CancelFunc, sub analysis.Submission, body io.Closer, done chan struct{}) {
	defer close(done)
	defer cancel()

	result, err := f.analyzer.Analyze(ctx, sub)
	if body != nil {
		body.Close()
	}
	if err == nil && result == nil {
		err = &analysis.RequestError{Cause: analysis.ErrMalformedResponse}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancel = nil
	if f.closed {
		return
	}

	if err != nil {
		f.result = nil
		f.errMsg = f.userMessage(err)
		f.setStatus(models.SubmissionStatusFailed)
		log.Warn().Err(err).Str("form", f.id).Msg("analysis request failed")
		return
	}

	f.result = result
	f.errMsg = ""
	f.setStatus(models.SubmissionStatusSucceeded)
	log.Info().Str("form", f.id).Int("extracted_chars", len(result.ExtractedText)).Msg("analysis succeeded")
}

func (f *SubmissionForm) userMessage(err error) string {
	var reqErr *analysis.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.UserMessage(f.messages.RequestFallback)
	}
	return f.messages.RequestFallback
}

// Wait blocks until no request is in flight or ctx ends.
func (f *SubmissionForm) Wait(ctx context.Context) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts any in-flight request, releases the selected file and ends all
// subscriptions. It is idempotent.
func (f *SubmissionForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if h, ok := f.input.File(); ok {
		f.releaseFile(h)
	}
	f.input = models.EmptyInput()

	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}

// Subscribe returns a channel of status changes and a function that ends the
// subscription. Slow subscribers miss events rather than block the form.
func (f *SubmissionForm) Subscribe() (<-chan models.StatusEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan models.StatusEvent, 8)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			close(c)
			delete(f.subs, id)
		}
	}
}

// setStatus records the new status and notifies subscribers. Caller holds f.mu.
func (f *SubmissionForm) setStatus(s models.SubmissionStatus) {
	f.status = s
	ev := models.StatusEvent{
		SessionID: f.id,
		Status:    s,
		Error:     f.errMsg,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
