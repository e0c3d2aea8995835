package playback

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultSpeedWPM is the reading speed when none is configured.
	DefaultSpeedWPM = 250
	// DefaultWordsPerChunk is the chunk size when none is configured.
	DefaultWordsPerChunk = 1

	// MinSpeedWPM and MaxSpeedWPM bound the tick interval to between
	// 100 minutes and one millisecond.
	MinSpeedWPM = 0.01
	MaxSpeedWPM = 60000
)

// ErrInvalidConfiguration marks a rejected speed, chunk size or option set.
var ErrInvalidConfiguration = errors.New("invalid configuration")

var validate = validator.New()

// Config holds engine configuration.
// Zero SpeedWPM and WordsPerChunk are replaced by their defaults. Speeds
// outside [MinSpeedWPM, MaxSpeedWPM] and chunk sizes below one are rejected.
type Config struct {
	SpeedWPM      float64 `mapstructure:"speed" default:"250" validate:"gte=0.01,lte=60000"`
	WordsPerChunk int     `mapstructure:"words_per_chunk" default:"1" validate:"gte=1"`
	AutoPlay      bool    `mapstructure:"auto_play"`
	OnFinish      func()  `mapstructure:"-"` // Called once each time the passage is exhausted
}

// Interval returns the delay between two ticks.
func (c Config) Interval() time.Duration {
	return intervalFor(c.SpeedWPM)
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "struct validation failed"), ErrInvalidConfiguration)
	}
	return validateSpeed(c.SpeedWPM)
}

// withDefaults fills zero fields with their defaults and validates the result.
func (c Config) withDefaults() (Config, error) {
	if err := defaults.Set(&c); err != nil {
		return c, errors.Wrap(err, "failed to set defaults")
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// DecodeOptions builds a Config from loosely typed host options such as a
// decoded JSON object or query parameters. Recognized keys are "speed",
// "words_per_chunk" and "auto_play"; unknown keys are rejected.
func DecodeOptions(options map[string]any) (Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return cfg, errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(options); err != nil {
		return cfg, errors.Mark(errors.Wrap(err, "failed to decode options"), ErrInvalidConfiguration)
	}

	// Only an absent key falls back to its default.
	if _, ok := options["speed"]; ok {
		if err := validateSpeed(cfg.SpeedWPM); err != nil {
			return cfg, err
		}
	}
	if _, ok := options["words_per_chunk"]; ok {
		if err := validateWordsPerChunk(cfg.WordsPerChunk); err != nil {
			return cfg, err
		}
	}

	return cfg.withDefaults()
}

func validateSpeed(wpm float64) error {
	if math.IsNaN(wpm) || math.IsInf(wpm, 0) {
		return errors.Mark(errors.Newf("speed %v words per minute is not finite", wpm), ErrInvalidConfiguration)
	}
	if err := validate.Var(wpm, "gte=0.01,lte=60000"); err != nil {
		return errors.Mark(errors.Wrapf(err, "speed %v words per minute", wpm), ErrInvalidConfiguration)
	}
	return nil
}

func validateWordsPerChunk(n int) error {
	if err := validate.Var(n, "gte=1"); err != nil {
		return errors.Mark(errors.Wrapf(err, "%d words per chunk", n), ErrInvalidConfiguration)
	}
	return nil
}

func intervalFor(wpm float64) time.Duration {
	return time.Duration(float64(time.Minute) / wpm)
}
