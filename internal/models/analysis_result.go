package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// AnalysisResult is the payload returned by the analysis service on success.
// Everything except ExtractedText may be missing.
type AnalysisResult struct {
	Success       *bool     `json:"success,omitempty"`
	ExtractedText string    `json:"extracted_text"`
	Analysis      *Analysis `json:"analysis,omitempty"`
	Feedback      *Feedback `json:"feedback,omitempty"`
}

// Analysis holds the competency analysis section.
type Analysis struct {
	LLMFeedback *string `json:"llm_feedback,omitempty"`
	Service     string  `json:"service,omitempty"`
}

// Feedback holds the personalised feedback section.
type Feedback struct {
	// PersonalizedFeedback is kept raw: the service has sent booleans,
	// strings and whole objects here. Only its truthiness matters.
	PersonalizedFeedback   json.RawMessage `json:"personalized_feedback,omitempty"`
	ContentRecommendations []string        `json:"content_recommendations,omitempty"`
	ImprovementSuggestions []string        `json:"improvement_suggestions,omitempty"`
}

// UnmarshalJSON requires a string extracted_text but reads the analysis and
// feedback sections leniently: a section of the wrong shape is treated as
// absent, and list items that are not strings are skipped.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var top struct {
		Success       *bool           `json:"success"`
		ExtractedText string          `json:"extracted_text"`
		Analysis      json.RawMessage `json:"analysis"`
		Feedback      json.RawMessage `json:"feedback"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	*r = AnalysisResult{
		Success:       top.Success,
		ExtractedText: top.ExtractedText,
		Analysis:      decodeAnalysis(top.Analysis),
		Feedback:      decodeFeedback(top.Feedback),
	}
	return nil
}

func decodeAnalysis(raw json.RawMessage) *Analysis {
	fields, ok := objectFields(raw)
	if !ok {
		return nil
	}
	a := &Analysis{}
	if s, ok := stringField(fields["llm_feedback"]); ok {
		a.LLMFeedback = &s
	}
	a.Service, _ = stringField(fields["service"])
	return a
}

func decodeFeedback(raw json.RawMessage) *Feedback {
	fields, ok := objectFields(raw)
	if !ok {
		return nil
	}
	f := &Feedback{
		ContentRecommendations: stringItems(fields["content_recommendations"]),
		ImprovementSuggestions: stringItems(fields["improvement_suggestions"]),
	}
	if v := bytes.TrimSpace(fields["personalized_feedback"]); len(v) > 0 && !bytes.Equal(v, []byte("null")) {
		f.PersonalizedFeedback = append(json.RawMessage(nil), v...)
	}
	return f
}

// objectFields splits raw into its members; ok is false unless raw is an object.
func objectFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || v[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func stringField(raw json.RawMessage) (string, bool) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func stringItems(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := stringField(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// NarrativeFeedback returns analysis.llm_feedback when feedback.personalized_feedback
// is truthy and the narrative is present.
func (r *AnalysisResult) NarrativeFeedback() (string, bool) {
	if r == nil || r.Feedback == nil || !IsTruthy(r.Feedback.PersonalizedFeedback) {
		return "", false
	}
	if r.Analysis == nil || r.Analysis.LLMFeedback == nil {
		return "", false
	}
	return *r.Analysis.LLMFeedback, true
}

// Recommendations returns feedback.content_recommendations, or nil.
func (r *AnalysisResult) Recommendations() []string {
	if r == nil || r.Feedback == nil {
		return nil
	}
	return r.Feedback.ContentRecommendations
}

// Suggestions returns feedback.improvement_suggestions, or nil.
func (r *AnalysisResult) Suggestions() []string {
	if r == nil || r.Feedback == nil {
		return nil
	}
	return r.Feedback.ImprovementSuggestions
}

// IsTruthy evaluates a raw JSON value the way a loosely typed client would:
// absent, null, false, 0 and "" are false, everything else is true.
func IsTruthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch v[0] {
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		return len(v) > 2
	}
	f, err := strconv.ParseFloat(string(v), 64)
	return err == nil && f != 0
}
