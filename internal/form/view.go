package form

import "github.com/enem-redacao/essay-form/internal/models"

// View is everything a page or API client needs to draw the form.
type View struct {
	SessionID      string                  `json:"sessionId" msgpack:"sessionId"`
	Status         models.SubmissionStatus `json:"status" msgpack:"status"`
	Input          string                  `json:"input" msgpack:"input"`
	Text           string                  `json:"text" msgpack:"text"`
	File           *models.FileHandle      `json:"file,omitempty" msgpack:"file,omitempty"`
	SubmitDisabled bool                    `json:"submitDisabled" msgpack:"submitDisabled"`
	SubmitLabel    string                  `json:"submitLabel" msgpack:"submitLabel"`
	ErrorMessage   string                  `json:"error,omitempty" msgpack:"error,omitempty"`
	Result         *ResultView             `json:"result,omitempty" msgpack:"result,omitempty"`
}

// ResultView is the displayable part of a successful analysis. Sections the
// service left out are empty and render nothing.
type ResultView struct {
	ExtractedText   string   `json:"extractedText" msgpack:"extractedText"`
	Narrative       string   `json:"narrative,omitempty" msgpack:"narrative,omitempty"`
	ShowNarrative   bool     `json:"showNarrative" msgpack:"showNarrative"`
	Recommendations []string `json:"recommendations,omitempty" msgpack:"recommendations,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty" msgpack:"suggestions,omitempty"`
}

// View snapshots the form for rendering.
func (f *SubmissionForm) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		SessionID:   f.id,
		Status:      f.status,
		Input:       f.input.Kind().String(),
		SubmitLabel: f.messages.SubmitIdle,
	}
	if text, ok := f.input.Text(); ok {
		v.Text = text
	}
	if h, ok := f.input.File(); ok {
		v.File = &h
	}

	switch f.status {
	case models.SubmissionStatusPending:
		v.SubmitDisabled = true
		v.SubmitLabel = f.messages.SubmitBusy
	case models.SubmissionStatusFailed:
		v.ErrorMessage = f.errMsg
	case models.SubmissionStatusSucceeded:
		v.Result = newResultView(f.result)
	}
	return v
}

func newResultView(r *models.AnalysisResult) *ResultView {
	if r == nil {
		return nil
	}
	rv := &ResultView{
		ExtractedText:   r.ExtractedText,
		Recommendations: nonEmpty(r.Recommendations()),
		Suggestions:     nonEmpty(r.Suggestions()),
	}
	rv.Narrative, rv.ShowNarrative = r.NarrativeFeedback()
	return rv
}

func nonEmpty(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return items
}
