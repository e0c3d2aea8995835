package filter

import (
	"context"
	"strings"
	"unicode"
)

// DuplicateTextFilterName is the config key of DuplicateTextFilter.
const DuplicateTextFilterName = "duplicate_text_filter"

// DuplicateTextFilter rejects a new reader whose passage is already being read.
// Passages match when their words are equal ignoring case and surrounding
// punctuation, so re-wrapped or re-punctuated copies are caught too.
type DuplicateTextFilter struct {
	source TextSource
}

// TextSource gives access to the passages currently hosted.
type TextSource interface {
	Passages() [][]string
}

// NewDuplicateTextFilter creates a new duplicate text filter.
func NewDuplicateTextFilter(source TextSource) *DuplicateTextFilter {
	return &DuplicateTextFilter{
		source: source,
	}
}

// Name returns the filter name.
func (f *DuplicateTextFilter) Name() string {
	return DuplicateTextFilterName
}

// Description returns the filter description.
func (f *DuplicateTextFilter) Description() string {
	return "Rejects creating a reader for a passage another reader already hosts"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTextFilter) ReturnCodes() []string {
	return []string{"duplicate_text"}
}

// AppliesTo returns which origins this filter applies to.
func (f *DuplicateTextFilter) AppliesTo(origin Origin) bool {
	return origin == OriginCreate
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTextFilter) ValidateConfig(map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the passage is a duplicate.
func (f *DuplicateTextFilter) Check(_ context.Context, req PassageRequest) Result {
	if f.source == nil || len(req.Words) == 0 {
		return Accept()
	}

	want := normalizeWords(req.Words)
	for _, words := range f.source.Passages() {
		if normalizeWords(words) == want {
			return Reject("duplicate_text")
		}
	}
	return Accept()
}

// normalizeWords lowercases words and strips surrounding punctuation.
func normalizeWords(words []string) string {
	var b strings.Builder
	for _, w := range words {
		w = strings.TrimFunc(strings.ToLower(w), unicode.IsPunct)
		if w == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

func init() {
	// The source is injected when the reader registry builds its chain.
	Register(DuplicateTextFilterName, func() Filter {
		return &DuplicateTextFilter{}
	})
}
