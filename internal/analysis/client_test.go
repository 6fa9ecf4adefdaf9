package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_TextSubmission(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ProcessPath, r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "minha redação", r.FormValue(FieldText))
		assert.Empty(t, r.MultipartForm.File)
		assert.Len(t, r.MultipartForm.Value, 1, "exactly one field is sent")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"extracted_text":"Foo","analysis":{"llm_feedback":"Bar"},"feedback":{"personalized_feedback":true,"content_recommendations":["X","Y"]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result, err := client.Analyze(context.Background(), Submission{Text: "minha redação"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "Foo", result.ExtractedText)
	narrative, ok := result.NarrativeFeedback()
	assert.True(t, ok)
	assert.Equal(t, "Bar", narrative)
	assert.Equal(t, []string{"X", "Y"}, result.Recommendations())
}

func TestAnalyze_FileSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Empty(t, r.MultipartForm.Value, "text must not be sent with a file")

		files := r.MultipartForm.File[FieldImage]
		require.Len(t, files, 1)
		assert.Equal(t, `essay "1".png`, files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

		f, err := files[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "PNGDATA", string(data))

		w.Write([]byte(`{"extracted_text":"ocr text"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Analyze(context.Background(), Submission{
		Text: "ignored",
		File: &FilePart{Name: `essay "1".png`, ContentType: "image/png", Content: strings.NewReader("PNGDATA")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ocr text", result.ExtractedText)
	assert.Nil(t, result.Analysis)
	assert.Nil(t, result.Feedback)
}

func TestAnalyze_MalformedSectionsKeepExtractedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"extracted_text":"Foo","analysis":"indisponível","feedback":{"personalized_feedback":true,"content_recommendations":["X",{"title":"Y"}],"improvement_suggestions":"Z"}}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL).Analyze(context.Background(), Submission{Text: "x"})
	require.NoError(t, err)

	assert.Equal(t, "Foo", result.ExtractedText)
	assert.Nil(t, result.Analysis)
	_, ok := result.NarrativeFeedback()
	assert.False(t, ok)
	assert.Equal(t, []string{"X"}, result.Recommendations())
	assert.Nil(t, result.Suggestions())
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		wantErr     error
	}{
		{
			name:        "server error message",
			status:      http.StatusBadRequest,
			body:        `{"error":"Arquivo inválido"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Arquivo inválido",
		},
		{
			name:       "non-json error body",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "error field not a string",
			status:     http.StatusInternalServerError,
			body:       `{"error":{"code":1}}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "malformed success body",
			status:     http.StatusOK,
			body:       `not json`,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:       "success body is an array",
			status:     http.StatusOK,
			body:       `["Foo"]`,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:       "missing extracted_text",
			status:     http.StatusOK,
			body:       `{"analysis":{}}`,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:        "error reported with 200 and no extracted_text",
			status:      http.StatusOK,
			body:        `{"error":"Arquivo inválido"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "Arquivo inválido",
			wantErr:     ErrMalformedResponse,
		},
		{
			name:       "extracted_text not a string",
			status:     http.StatusOK,
			body:       `{"extracted_text":42}`,
			wantStatus: http.StatusOK,
			wantErr:    ErrMalformedResponse,
		},
		{
			name:        "explicit success false",
			status:      http.StatusOK,
			body:        `{"success":false,"error":"Texto muito curto para análise"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "Texto muito curto para análise",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Analyze(context.Background(), Submission{Text: "x"})
			require.Error(t, err)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr), "expected *RequestError, got %T", err)
			assert.Equal(t, tt.wantStatus, reqErr.Status)
			assert.Equal(t, tt.wantMessage, reqErr.ServerMessage)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMessage == "" {
				assert.Equal(t, "fallback", reqErr.UserMessage("fallback"))
			}
		})
	}
}

func TestAnalyze_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Analyze(context.Background(), Submission{Text: "x"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.True(t, reqErr.IsTransport())
	assert.Equal(t, "Erro ao processar redação. Tente novamente.", reqErr.UserMessage("Erro ao processar redação. Tente novamente."))
}

func TestAnalyze_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, WithTimeout(50*time.Millisecond))
	_, err := client.Analyze(context.Background(), Submission{Text: "x"})

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.True(t, reqErr.IsTransport())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze_EmptySubmission(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Analyze(context.Background(), Submission{})
	assert.ErrorIs(t, err, ErrEmptySubmission)
}

func TestHealthAndServicesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"healthy","service":"backend-api"}`))
		case "/services-status":
			w.Write([]byte(`{"backend":"healthy","services":{"tesseract-ocr":true,"llama":false}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	assert.NoError(t, client.Health(context.Background()))

	status, err := client.ServicesStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Backend)
	assert.True(t, status.BackendUp())
	assert.True(t, status.Services["tesseract-ocr"])
	assert.False(t, status.Services["llama"])
}

func TestServicesStatus_BackendUp(t *testing.T) {
	tests := []struct {
		backend string
		want    bool
	}{
		{"healthy", true},
		{"Healthy", true},
		{"ok", true},
		{" up ", true},
		{"unhealthy", false},
		{"degraded", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			assert.Equal(t, tt.want, (&ServicesStatus{Backend: tt.backend}).BackendUp())
		})
	}

	var missing *ServicesStatus
	assert.False(t, missing.BackendUp())
}

func TestHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	assert.Error(t, NewClient(server.URL).Health(context.Background()))
	_, err := NewClient(server.URL).ServicesStatus(context.Background())
	assert.Error(t, err)
}
