// Package i18n holds the user-facing strings of the essay form.
package i18n

import (
	_ "embed"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var embeddedMessages []byte

// Messages is the set of strings rendered by the form for one locale.
type Messages struct {
	Title                  string `yaml:"title"`
	UploadHeading          string `yaml:"upload_heading"`
	TextPlaceholder        string `yaml:"text_placeholder"`
	DropzoneHint           string `yaml:"dropzone_hint"`
	SelectedFile           string `yaml:"selected_file"`
	SubmitIdle             string `yaml:"submit_idle"`
	SubmitBusy             string `yaml:"submit_busy"`
	ValidationEmpty        string `yaml:"validation_empty"`
	RequestFallback        string `yaml:"request_fallback"`
	ResultHeading          string `yaml:"result_heading"`
	ExtractedTextHeading   string `yaml:"extracted_text_heading"`
	FeedbackHeading        string `yaml:"feedback_heading"`
	RecommendationsHeading string `yaml:"recommendations_heading"`
	SuggestionsHeading     string `yaml:"suggestions_heading"`
	ServicesHeading        string `yaml:"services_heading"`
}

// Catalog maps locale tags to messages.
type Catalog struct {
	Default string              `yaml:"default"`
	Locales map[string]Messages `yaml:"locales"`
}

// Load parses a YAML catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

var embedded = sync.OnceValues(func() (*Catalog, error) {
	return parse(embeddedMessages)
})

// Embedded returns the catalog compiled into the binary. It is parsed once
// and shared; callers must not modify it.
func Embedded() *Catalog {
	c, err := embedded()
	if err != nil {
		panic(fmt.Sprintf("i18n: embedded catalog is invalid: %v", err))
	}
	return c
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing message catalog: %w", err)
	}
	if _, ok := c.Locales[c.Default]; !ok {
		return nil, fmt.Errorf("default locale %q missing from catalog", c.Default)
	}
	return &c, nil
}

// Lookup returns the messages for locale, falling back to the default locale.
func (c *Catalog) Lookup(locale string) Messages {
	if m, ok := c.Locales[locale]; ok {
		return m
	}
	return c.Locales[c.Default]
}
