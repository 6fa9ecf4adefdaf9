package form

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/enem-redacao/essay-form/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validationMsg = "Por favor, insira um texto ou faça upload de um arquivo."
	fallbackMsg   = "Erro ao processar redação. Tente novamente."
)

func strPtr(s string) *string { return &s }

func fullResult(personalized string) *models.AnalysisResult {
	return &models.AnalysisResult{
		ExtractedText: "Foo",
		Analysis:      &models.Analysis{LLMFeedback: strPtr("Bar")},
		Feedback: &models.Feedback{
			PersonalizedFeedback:   []byte(personalized),
			ContentRecommendations: []string{"X", "Y"},
		},
	}
}

func waitIdle(t *testing.T, f *SubmissionForm) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func pngFile(store *testutil.MockStorage, id string) models.FileHandle {
	return *store.AddFile(id, id+".png", models.MIMEPNG, []byte("PNG-"+id))
}

func TestSubmissionForm_InitialState(t *testing.T) {
	f := New(&testutil.MockAnalyzer{}, nil, WithID("s1"))

	assert.Equal(t, models.SubmissionStatusIdle, f.Status())
	assert.True(t, f.Input().IsEmpty())

	v := f.View()
	assert.Equal(t, "s1", v.SessionID)
	assert.False(t, v.SubmitDisabled)
	assert.Equal(t, "Analisar Redação", v.SubmitLabel)
	assert.Empty(t, v.ErrorMessage)
	assert.Nil(t, v.Result)
}

func TestSubmissionForm_MutualExclusivity(t *testing.T) {
	store := testutil.NewMockStorage()
	f := New(&testutil.MockAnalyzer{}, store)

	steps := []func(){
		func() { f.SetText("primeira versão") },
		func() { f.SetFile(pngFile(store, "a")) },
		func() { f.SetText("segunda versão") },
		func() { f.SetFile(pngFile(store, "b")) },
		func() { f.SetFile(pngFile(store, "c")) },
		func() { f.SetText("") },
		func() { f.SetFile(pngFile(store, "d")) },
	}

	for i, step := range steps {
		step()
		in := f.Input()
		_, hasText := in.Text()
		_, hasFile := in.File()
		assert.False(t, hasText && hasFile, "step %d holds both text and file", i)
	}

	fh, ok := f.Input().File()
	require.True(t, ok)
	assert.Equal(t, "d", fh.ID)
	assert.Equal(t, []string{"a", "b", "c"}, store.Deleted(), "replaced files are released")
}

func TestSubmissionForm_SetFileRejectsUnsupportedType(t *testing.T) {
	store := testutil.NewMockStorage()
	f := New(&testutil.MockAnalyzer{}, store)
	require.NoError(t, f.SetText("texto digitado"))

	plain := store.AddFile("txt", "notes.txt", "text/plain", []byte("hello"))
	accepted, err := f.SetFile(*plain)
	require.NoError(t, err)
	assert.False(t, accepted)

	text, ok := f.Input().Text()
	assert.True(t, ok)
	assert.Equal(t, "texto digitado", text)

	accepted, err = f.SetFile()
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestSubmissionForm_SetFileKeepsFirstOfMany(t *testing.T) {
	store := testutil.NewMockStorage()
	f := New(&testutil.MockAnalyzer{}, store)

	accepted, err := f.SetFile(pngFile(store, "first"), pngFile(store, "second"))
	require.NoError(t, err)
	assert.True(t, accepted)

	fh, _ := f.Input().File()
	assert.Equal(t, "first", fh.ID)
}

func TestSubmissionForm_SubmitEmpty(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{}
	f := New(analyzer, nil)

	err := f.Submit()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, validationMsg, vErr.Message)

	assert.Equal(t, models.SubmissionStatusFailed, f.Status())
	assert.Equal(t, validationMsg, f.View().ErrorMessage)
	assert.Equal(t, 0, analyzer.CallCount())
	assert.Equal(t, 0, f.RequestCount())
	assert.True(t, f.Input().IsEmpty())

	// Still interactive afterwards.
	require.NoError(t, f.SetText("agora sim"))
	require.NoError(t, f.Submit())
	waitIdle(t, f)
	assert.Equal(t, 1, analyzer.CallCount())
}

func TestSubmissionForm_SubmitWhilePendingIsNoop(t *testing.T) {
	gate := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{Gate: gate, Result: fullResult("true")}
	f := New(analyzer, nil)
	require.NoError(t, f.SetText("redação"))

	require.NoError(t, f.Submit())
	assert.Equal(t, models.SubmissionStatusPending, f.Status())

	v := f.View()
	assert.True(t, v.SubmitDisabled)
	assert.Equal(t, "Processando...", v.SubmitLabel)

	assert.ErrorIs(t, f.Submit(), ErrSubmissionPending)
	assert.ErrorIs(t, f.Submit(), ErrSubmissionPending)

	close(gate)
	waitIdle(t, f)

	assert.Equal(t, 1, analyzer.CallCount())
	assert.Equal(t, 1, f.RequestCount())
	assert.Equal(t, models.SubmissionStatusSucceeded, f.Status())
}

func TestSubmissionForm_InputChangesWhilePending(t *testing.T) {
	gate := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{Gate: gate, Result: fullResult("true")}
	f := New(analyzer, nil)
	require.NoError(t, f.SetText("original"))
	require.NoError(t, f.Submit())

	require.NoError(t, f.SetText("editado durante o envio"))
	close(gate)
	waitIdle(t, f)

	assert.Equal(t, "original", analyzer.Calls()[0].Text)
	text, _ := f.Input().Text()
	assert.Equal(t, "editado durante o envio", text)
}

func TestSubmissionForm_SuccessRendering(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{Result: fullResult("true")}
	f := New(analyzer, nil)
	require.NoError(t, f.SetText("redação"))
	require.NoError(t, f.Submit())
	waitIdle(t, f)

	v := f.View()
	assert.Equal(t, models.SubmissionStatusSucceeded, v.Status)
	assert.False(t, v.SubmitDisabled)
	require.NotNil(t, v.Result)
	assert.Equal(t, "Foo", v.Result.ExtractedText)
	assert.True(t, v.Result.ShowNarrative)
	assert.Equal(t, "Bar", v.Result.Narrative)
	assert.Equal(t, []string{"X", "Y"}, v.Result.Recommendations)
	assert.Empty(t, v.ErrorMessage)
}

func TestSubmissionForm_NarrativeHiddenUnlessPersonalized(t *testing.T) {
	for _, personalized := range []string{"false", ""} {
		t.Run("personalized="+personalized, func(t *testing.T) {
			analyzer := &testutil.MockAnalyzer{Result: fullResult(personalized)}
			f := New(analyzer, nil)
			require.NoError(t, f.SetText("redação"))
			require.NoError(t, f.Submit())
			waitIdle(t, f)

			v := f.View()
			require.NotNil(t, v.Result)
			assert.False(t, v.Result.ShowNarrative)
			assert.Empty(t, v.Result.Narrative)
			assert.Equal(t, []string{"X", "Y"}, v.Result.Recommendations)
		})
	}
}

func TestSubmissionForm_PartialResult(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{Result: &models.AnalysisResult{ExtractedText: "só o texto"}}
	f := New(analyzer, nil)
	require.NoError(t, f.SetText("redação"))
	require.NoError(t, f.Submit())
	waitIdle(t, f)

	v := f.View()
	require.NotNil(t, v.Result)
	assert.Equal(t, "só o texto", v.Result.ExtractedText)
	assert.False(t, v.Result.ShowNarrative)
	assert.Nil(t, v.Result.Recommendations)
	assert.Nil(t, v.Result.Suggestions)
}

func TestSubmissionForm_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network failure",
			err:  &analysis.RequestError{Cause: errors.New("connection refused")},
			want: fallbackMsg,
		},
		{
			name: "server message",
			err:  &analysis.RequestError{Status: 400, ServerMessage: "Arquivo inválido"},
			want: "Arquivo inválido",
		},
		{
			name: "unexpected error type",
			err:  errors.New("boom"),
			want: fallbackMsg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &testutil.MockAnalyzer{Err: tt.err}
			f := New(analyzer, nil)
			require.NoError(t, f.SetText("redação"))
			require.NoError(t, f.Submit())
			waitIdle(t, f)

			v := f.View()
			assert.Equal(t, models.SubmissionStatusFailed, v.Status)
			assert.Equal(t, tt.want, v.ErrorMessage)
			assert.Nil(t, v.Result)
			assert.False(t, v.SubmitDisabled)

			text, _ := f.Input().Text()
			assert.Equal(t, "redação", text, "failures keep the input")
		})
	}
}

func TestSubmissionForm_FileSubmission(t *testing.T) {
	store := testutil.NewMockStorage()
	analyzer := &testutil.MockAnalyzer{Result: &models.AnalysisResult{ExtractedText: "ocr"}}
	f := New(analyzer, store)

	require.NoError(t, f.SetText("descartado"))
	accepted, err := f.SetFile(pngFile(store, "essay"))
	require.NoError(t, err)
	require.True(t, accepted)

	require.NoError(t, f.Submit())
	waitIdle(t, f)

	calls := analyzer.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Text)
	assert.Equal(t, "essay.png", calls[0].FileName)
	assert.Equal(t, models.MIMEPNG, calls[0].ContentType)
	assert.Equal(t, "PNG-essay", string(calls[0].FileData))
}

func TestSubmissionForm_MissingStoredFile(t *testing.T) {
	store := testutil.NewMockStorage()
	analyzer := &testutil.MockAnalyzer{}
	f := New(analyzer, store)

	_, err := f.SetFile(models.FileHandle{ID: "gone", Name: "x.pdf", ContentType: models.MIMEPDF})
	require.NoError(t, err)

	assert.Error(t, f.Submit())
	assert.Equal(t, models.SubmissionStatusFailed, f.Status())
	assert.Equal(t, fallbackMsg, f.View().ErrorMessage)
	assert.Equal(t, 0, analyzer.CallCount())
}

func TestSubmissionForm_Timeout(t *testing.T) {
	analyzer := &testutil.MockAnalyzer{Gate: make(chan struct{})}
	f := New(analyzer, nil, WithTimeout(30*time.Millisecond))
	require.NoError(t, f.SetText("redação"))
	require.NoError(t, f.Submit())
	waitIdle(t, f)

	assert.Equal(t, models.SubmissionStatusFailed, f.Status())
	assert.Equal(t, fallbackMsg, f.View().ErrorMessage)
}

func TestSubmissionForm_CloseAbortsInFlight(t *testing.T) {
	store := testutil.NewMockStorage()
	analyzer := &testutil.MockAnalyzer{Gate: make(chan struct{})}
	f := New(analyzer, store)
	_, err := f.SetFile(pngFile(store, "essay"))
	require.NoError(t, err)

	events, _ := f.Subscribe()
	require.NoError(t, f.Submit())
	assert.Equal(t, models.SubmissionStatusPending, (<-events).Status)

	f.Close()
	waitIdle(t, f)

	_, open := <-events
	assert.False(t, open, "subscriptions end on close")
	assert.Equal(t, []string{"essay"}, store.Deleted())
	assert.ErrorIs(t, f.Submit(), ErrClosed)
	assert.ErrorIs(t, f.SetText("x"), ErrClosed)
	f.Close()
}

func TestSubmissionForm_Subscribe(t *testing.T) {
	gate := make(chan struct{})
	analyzer := &testutil.MockAnalyzer{Gate: gate, Err: &analysis.RequestError{Status: 400, ServerMessage: "Arquivo inválido"}}
	f := New(analyzer, nil, WithID("sess"))
	events, unsubscribe := f.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.SetText("redação"))
	require.NoError(t, f.Submit())
	close(gate)

	first := <-events
	assert.Equal(t, models.SubmissionStatusPending, first.Status)
	assert.Equal(t, "sess", first.SessionID)

	second := <-events
	assert.Equal(t, models.SubmissionStatusFailed, second.Status)
	assert.Equal(t, "Arquivo inválido", second.Error)
}

func TestSubmissionForm_EnglishMessages(t *testing.T) {
	catalogEN := New(nil, nil).messages
	catalogEN.ValidationEmpty = "Please enter some text or upload a file."
	f := New(&testutil.MockAnalyzer{}, nil, WithMessages(catalogEN))

	var vErr *ValidationError
	require.ErrorAs(t, f.Submit(), &vErr)
	assert.Equal(t, "Please enter some text or upload a file.", vErr.Message)
}

func TestSubmissionForm_SuppliedMessagesKept(t *testing.T) {
	f := New(&testutil.MockAnalyzer{}, nil, WithMessages(i18n.Messages{SubmitIdle: "Go"}))
	assert.Equal(t, "Go", f.View().SubmitLabel)

	f = New(&testutil.MockAnalyzer{}, nil, WithMessages(i18n.Messages{}))
	assert.Equal(t, i18n.Embedded().Lookup("").SubmitIdle, f.View().SubmitLabel)
}
