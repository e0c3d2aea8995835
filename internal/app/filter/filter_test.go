package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/speedreader/internal/app/playback"
)

type stubFilter struct {
	name    string
	origins []Origin
	result  Result
	calls   int
}

func (f *stubFilter) Name() string { return f.name }

func (f *stubFilter) Description() string { return "stub" }

func (f *stubFilter) ReturnCodes() []string { return []string{f.result.Code} }

func (f *stubFilter) ValidateConfig(map[string]any) error { return nil }

func (f *stubFilter) AppliesTo(origin Origin) bool {
	for _, o := range f.origins {
		if o == origin {
			return true
		}
	}
	return false
}

func (f *stubFilter) Check(context.Context, PassageRequest) Result {
	f.calls++
	return f.result
}

func TestChain_Execute(t *testing.T) {
	both := []Origin{OriginCreate, OriginReplace}

	t.Run("empty chain accepts", func(t *testing.T) {
		result := NewChain().Execute(context.Background(), PassageRequest{})
		assert.True(t, result.Accepted)
	})

	t.Run("first rejection wins", func(t *testing.T) {
		first := &stubFilter{name: "first", origins: both, result: Reject("first_code")}
		second := &stubFilter{name: "second", origins: both, result: Reject("second_code")}

		chain := NewChain()
		chain.Add(first)
		chain.Add(second)

		result := chain.Execute(context.Background(), PassageRequest{Origin: OriginCreate})
		assert.False(t, result.Accepted)
		assert.Equal(t, "first_code", result.Code)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 0, second.calls, "filters after a rejection must not run")
	})

	t.Run("filters for other origins are skipped", func(t *testing.T) {
		createOnly := &stubFilter{name: "create", origins: []Origin{OriginCreate}, result: Reject("nope")}

		chain := NewChain()
		chain.Add(createOnly)

		result := chain.Execute(context.Background(), PassageRequest{Origin: OriginReplace})
		assert.True(t, result.Accepted)
		assert.Equal(t, 0, createOnly.calls)
		assert.Len(t, chain.Filters(), 1)
	})
}

func TestRegisteredFilters(t *testing.T) {
	assert.Equal(t,
		[]string{"duplicate_text_filter", "speed_limit_filter", "word_limit_filter"},
		Names())

	for name, factory := range GetRegistered() {
		f := factory()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.Description())
		assert.NotEmpty(t, f.ReturnCodes())
	}
}

func TestWordLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name     string
		minWords int
		maxWords int
		words    []string
		wantCode string
	}{
		{
			name:     "within limits",
			minWords: 1,
			maxWords: 3,
			words:    []string{"a", "b"},
		},
		{
			name:     "empty passage",
			minWords: 1,
			words:    []string{},
			wantCode: "too_few_words",
		},
		{
			name:     "too long",
			minWords: 1,
			maxWords: 3,
			words:    []string{"a", "b", "c", "d"},
			wantCode: "too_many_words",
		},
		{
			name:     "exact max",
			minWords: 1,
			maxWords: 3,
			words:    []string{"a", "b", "c"},
		},
		{
			name:     "no max",
			minWords: 2,
			maxWords: 0,
			words:    make([]string, 100000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewWordLimitFilter()
			f.config = &WordLimitConfig{MinWords: tt.minWords, MaxWords: tt.maxWords}

			for _, origin := range []Origin{OriginCreate, OriginReplace} {
				require.True(t, f.AppliesTo(origin))
				result := f.Check(context.Background(), PassageRequest{Origin: origin, Words: tt.words})
				if tt.wantCode != "" {
					assert.False(t, result.Accepted)
					assert.Equal(t, tt.wantCode, result.Code)
				} else {
					assert.True(t, result.Accepted)
				}
			}
		})
	}

	t.Run("unconfigured accepts", func(t *testing.T) {
		assert.True(t, NewWordLimitFilter().Check(context.Background(), PassageRequest{}).Accepted)
	})
}

func TestWordLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
		wantMin  int
	}{
		{
			name:     "valid config",
			settings: map[string]any{"min_words": 2, "max_words": 500},
			wantMin:  2,
		},
		{
			name:     "numbers as strings",
			settings: map[string]any{"min_words": "3", "max_words": "10"},
			wantMin:  3,
		},
		{
			name:     "empty settings uses default min",
			settings: map[string]any{},
			wantMin:  1,
		},
		{
			name:     "min greater than max",
			settings: map[string]any{"min_words": 10, "max_words": 5},
			wantErr:  true,
		},
		{
			name:     "negative max",
			settings: map[string]any{"max_words": -1},
			wantErr:  true,
		},
		{
			name:     "unknown key",
			settings: map[string]any{"max_minutes": 5},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewWordLimitFilter()
			err := f.ValidateConfig(tt.settings)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMin, f.config.MinWords)
		})
	}
}

func TestSpeedLimitFilter(t *testing.T) {
	f := &SpeedLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_wpm": 600}))

	assert.True(t, f.AppliesTo(OriginCreate))
	assert.False(t, f.AppliesTo(OriginReplace))

	ok := f.Check(context.Background(), PassageRequest{Config: playback.Config{SpeedWPM: 600}})
	assert.True(t, ok.Accepted)

	rejected := f.Check(context.Background(), PassageRequest{Config: playback.Config{SpeedWPM: 601}})
	assert.False(t, rejected.Accepted)
	assert.Equal(t, "speed_limit_exceeded", rejected.Code)

	defaulted := &SpeedLimitFilter{}
	require.NoError(t, defaulted.ValidateConfig(nil))
	assert.Equal(t, float64(1000), defaulted.config.MaxWPM)

	assert.Error(t, (&SpeedLimitFilter{}).ValidateConfig(map[string]any{"max_wpm": -5}))
}

type staticSource [][]string

func (s staticSource) Passages() [][]string { return s }

func TestDuplicateTextFilter_Check(t *testing.T) {
	hosted := staticSource{
		{"The", "quick", "brown", "fox."},
		{"Hello", "world"},
	}

	tests := []struct {
		name         string
		words        []string
		wantAccepted bool
	}{
		{"exact match", []string{"Hello", "world"}, false},
		{"case and punctuation differ", []string{"the", "Quick", "brown", "fox"}, false},
		{"quoted words", []string{"\"Hello,", "world!\""}, false},
		{"different text", []string{"Hello", "there"}, true},
		{"prefix only", []string{"The", "quick"}, true},
		{"empty passage", []string{}, true},
	}

	f := NewDuplicateTextFilter(hosted)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), PassageRequest{Origin: OriginCreate, Words: tt.words})
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duplicate_text", result.Code)
			}
		})
	}

	assert.True(t, f.AppliesTo(OriginCreate))
	assert.False(t, f.AppliesTo(OriginReplace), "a reader may reload its own text")
	assert.True(t, (&DuplicateTextFilter{}).Check(context.Background(),
		PassageRequest{Words: []string{"Hello", "world"}}).Accepted, "no source accepts")
}

func TestOrigin_String(t *testing.T) {
	assert.Equal(t, "create", OriginCreate.String())
	assert.Equal(t, "replace", OriginReplace.String())
	assert.Equal(t, "unknown", Origin(9).String())
}
