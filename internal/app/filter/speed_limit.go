package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// SpeedLimitConfig represents the configuration for SpeedLimitFilter.
type SpeedLimitConfig struct {
	MaxWPM float64 `yaml:"max_wpm" mapstructure:"max_wpm" default:"1000" validate:"gt=0"`
}

// SpeedLimitFilter caps the reading speed new readers may start with.
type SpeedLimitFilter struct {
	config *SpeedLimitConfig
}

func (f *SpeedLimitFilter) Name() string {
	return "speed_limit_filter"
}

func (f *SpeedLimitFilter) Description() string {
	return "Rejects readers created faster than the configured words per minute"
}

func (f *SpeedLimitFilter) ReturnCodes() []string {
	return []string{"speed_limit_exceeded"}
}

func (f *SpeedLimitFilter) ValidateConfig(settings map[string]any) error {
	var config SpeedLimitConfig
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = &config
	return nil
}

func (f *SpeedLimitFilter) AppliesTo(origin Origin) bool {
	// Replacing text keeps the reader's current speed.
	return origin == OriginCreate
}

func (f *SpeedLimitFilter) Check(_ context.Context, req PassageRequest) Result {
	if f.config == nil {
		return Accept()
	}
	if req.Config.SpeedWPM > f.config.MaxWPM {
		return Reject("speed_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("speed_limit_filter", func() Filter {
		return &SpeedLimitFilter{}
	})
}
