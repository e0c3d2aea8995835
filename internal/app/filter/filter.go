// Package filter provides the admission filter chain for passages.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/speedreader/internal/app/playback"
)

// Origin tells filters how a passage reached the server.
type Origin int

const (
	OriginCreate  Origin = iota // A new reader is being created
	OriginReplace               // An existing reader's text is being replaced
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginCreate:
		return "create"
	case OriginReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// PassageRequest represents a passage to be admitted.
type PassageRequest struct {
	Origin   Origin
	ReaderID string // Empty for OriginCreate
	Words    []string
	Config   playback.Config
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "too_many_words", "duplicate_text"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for passage filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should run for the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req PassageRequest) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
