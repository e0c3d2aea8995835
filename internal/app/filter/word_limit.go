package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// WordLimitConfig represents the configuration for WordLimitFilter.
type WordLimitConfig struct {
	MinWords int `yaml:"min_words" mapstructure:"min_words" default:"1" validate:"gte=1"`
	MaxWords int `yaml:"max_words" mapstructure:"max_words" validate:"gte=0"` // 0 means no limit
}

// WordLimitFilter checks if the passage length is within allowed limits.
type WordLimitFilter struct {
	config *WordLimitConfig
}

// NewWordLimitFilter creates a new word limit filter.
func NewWordLimitFilter() *WordLimitFilter {
	return &WordLimitFilter{}
}

func (f *WordLimitFilter) Name() string {
	return "word_limit_filter"
}

func (f *WordLimitFilter) Description() string {
	return "Checks if the passage word count is within allowed limits"
}

func (f *WordLimitFilter) ReturnCodes() []string {
	return []string{"too_few_words", "too_many_words"}
}

func (f *WordLimitFilter) ValidateConfig(settings map[string]any) error {
	var config WordLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	if config.MaxWords > 0 && config.MinWords > config.MaxWords {
		return errors.New("min_words cannot be greater than max_words")
	}
	f.config = &config
	zlog.Info().Msgf("word limit filter config: %+v", config)
	return nil
}

func (f *WordLimitFilter) AppliesTo(Origin) bool {
	return true
}

func (f *WordLimitFilter) Check(_ context.Context, req PassageRequest) Result {
	if f.config == nil {
		return Accept()
	}

	n := len(req.Words)
	if n < f.config.MinWords {
		return Reject("too_few_words")
	}
	if f.config.MaxWords > 0 && n > f.config.MaxWords {
		return Reject("too_many_words")
	}
	return Accept()
}

func init() {
	Register("word_limit_filter", func() Filter {
		return &WordLimitFilter{}
	})
}
