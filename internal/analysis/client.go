// Package analysis talks to the remote essay analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// ProcessPath is the analysis endpoint, relative to the base URL.
	ProcessPath = "/process-redaction"

	// Multipart field names understood by the service.
	FieldImage = "image"
	FieldText  = "text"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// Client submits essays to the analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option is a function that configures the client
type Option func(*Client)

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		userAgent:  "essay-form/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each call. Zero means no timeout beyond the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets a custom user agent for requests
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FilePart is a binary essay to be sent in the image field.
type FilePart struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Submission carries exactly one of Text or File. File wins if both are set.
type Submission struct {
	Text string
	File *FilePart
}

// Analyze posts the submission as multipart/form-data and decodes the result.
// Every failure is returned as a *RequestError.
func (c *Client) Analyze(ctx context.Context, sub Submission) (*models.AnalysisResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, &RequestError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProcessPath, body)
	if err != nil {
		return nil, &RequestError{Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Cause: fmt.Errorf("failed to perform request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RequestError{Status: resp.StatusCode, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis service responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			Status:        resp.StatusCode,
			ServerMessage: serverMessage(data),
			Cause:         fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return decodeResult(resp.StatusCode, data)
}

// encodeSubmission builds the single-field multipart body.
func encodeSubmission(sub Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	switch {
	case sub.File != nil:
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			FieldImage, quoteEscaper.Replace(sub.File.Name)))
		ct := sub.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := io.Copy(part, sub.File.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write image part: %w", err)
		}
	case sub.Text != "":
		if err := w.WriteField(FieldText, sub.Text); err != nil {
			return nil, "", fmt.Errorf("failed to write text field: %w", err)
		}
	default:
		return nil, "", ErrEmptySubmission
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// decodeResult accepts a JSON object carrying extracted_text. An explicit
// "success": false is treated as a failure even on a 2xx status.
func decodeResult(status int, data []byte) (*models.AnalysisResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, &RequestError{Status: status, Cause: ErrMalformedResponse}
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &RequestError{Status: status, Cause: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	if result.Success != nil && !*result.Success {
		return nil, &RequestError{
			Status:        status,
			ServerMessage: serverMessage(data),
			Cause:         fmt.Errorf("service reported failure"),
		}
	}

	if _, ok := fields["extracted_text"]; !ok {
		return nil, &RequestError{
			Status:        status,
			ServerMessage: serverMessage(data),
			Cause:         fmt.Errorf("%w: missing extracted_text", ErrMalformedResponse),
		}
	}

	return &result, nil
}

// serverMessage pulls a non-empty string "error" field out of a JSON object body.
func serverMessage(data []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	var msg string
	if err := json.Unmarshal(body.Error, &msg); err != nil {
		return ""
	}
	return strings.TrimSpace(msg)
}
