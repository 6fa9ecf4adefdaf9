// mock_analyzer.go - Scriptable stand-in for the analysis service
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/models"
)

// MockAnalyzer records submissions and answers with a fixed result or error.
// When Gate is non-nil every call blocks until Gate is closed or the call's
// context ends.
type MockAnalyzer struct {
	Result *models.AnalysisResult
	Err    error
	Gate   chan struct{}

	mu    sync.Mutex
	calls []RecordedSubmission
}

// RecordedSubmission is what MockAnalyzer saw for one call.
type RecordedSubmission struct {
	Text        string
	FileName    string
	ContentType string
	FileData    []byte
}

// Analyze implements form.Analyzer.
func (m *MockAnalyzer) Analyze(ctx context.Context, sub analysis.Submission) (*models.AnalysisResult, error) {
	rec := RecordedSubmission{Text: sub.Text}
	if sub.File != nil {
		rec.FileName = sub.File.Name
		rec.ContentType = sub.File.ContentType
		rec.FileData, _ = io.ReadAll(sub.File.Content)
		rec.Text = ""
	}

	m.mu.Lock()
	m.calls = append(m.calls, rec)
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &analysis.RequestError{Cause: ctx.Err()}
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// Calls returns the submissions received so far.
func (m *MockAnalyzer) Calls() []RecordedSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedSubmission(nil), m.calls...)
}

// CallCount returns how many requests were made.
func (m *MockAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
