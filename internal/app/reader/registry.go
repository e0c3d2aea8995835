package reader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/filter"
	"github.com/osa030/speedreader/internal/app/playback"
	"github.com/osa030/speedreader/internal/domain/passage"
	"github.com/osa030/speedreader/internal/infra/config"
	"github.com/osa030/speedreader/internal/infra/metrics"
)

var (
	ErrReaderNotFound = errors.New("reader not found")
	ErrRegistryFull   = errors.New("too many readers")
	ErrRejected       = errors.New("passage rejected")
)

// RejectedError reports a passage refused by an admission filter.
type RejectedError struct {
	Filter string
	Code   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("passage rejected by %s: %s", e.Filter, e.Code)
}

// Registry manages hosted readers with thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	readers    map[string]*Reader
	maxReaders int
	metrics    *metrics.Metrics
	opts       []playback.Option
	filters    *filter.Chain
}

// NewRegistry creates a new reader registry. A nil metrics disables
// instrumentation; opts are applied to every engine.
func NewRegistry(maxReaders int, m *metrics.Metrics, opts ...playback.Option) *Registry {
	return &Registry{
		readers:    make(map[string]*Reader),
		maxReaders: maxReaders,
		metrics:    m,
		opts:       opts,
		filters:    filter.NewChain(),
	}
}

// SetupFilters builds the admission chain from the enabled filters.
// It must be called before the registry is shared.
func (r *Registry) SetupFilters(filters map[string]config.FilterConfig) error {
	chain := filter.NewChain()
	registered := filter.GetRegistered()

	names := make([]string, 0, len(filters))
	for name, fc := range filters {
		if fc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var f filter.Filter
		switch name {
		case filter.DuplicateTextFilterName:
			f = filter.NewDuplicateTextFilter(r)
		default:
			factory, ok := registered[name]
			if !ok {
				return errors.Newf("unknown filter %q", name)
			}
			f = factory()
		}
		if err := f.ValidateConfig(filters[name].Settings); err != nil {
			return errors.Wrapf(err, "filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("passage filter enabled: %s", name)
	}

	r.filters = chain
	return nil
}

// admit runs the filter chain. It must not be called with r.mu held since
// filters may read the registry.
func (r *Registry) admit(ctx context.Context, req filter.PassageRequest) error {
	result := r.filters.Execute(ctx, req)
	if result.Accepted {
		return nil
	}
	name := "filter"
	for _, f := range r.filters.Filters() {
		for _, code := range f.ReturnCodes() {
			if code == result.Code {
				name = f.Name()
			}
		}
	}
	zlog.Info().Msgf("passage rejected: origin=%s reader=%s code=%s", req.Origin, req.ReaderID, result.Code)
	return errors.Mark(&RejectedError{Filter: name, Code: result.Code}, ErrRejected)
}

// Create starts a new reader for text and returns it.
func (r *Registry) Create(ctx context.Context, text string, cfg playback.Config) (*Reader, error) {
	if err := r.admit(ctx, filter.PassageRequest{
		Origin: filter.OriginCreate,
		Words:  passage.Words(text),
		Config: cfg,
	}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxReaders > 0 && len(r.readers) >= r.maxReaders {
		return nil, errors.Wrapf(ErrRegistryFull, "limit is %d", r.maxReaders)
	}

	id := uuid.New().String()
	opts := append([]playback.Option{playback.WithName(id)}, r.opts...)
	engine, err := playback.New(text, cfg, opts...)
	if err != nil {
		return nil, err
	}

	rd := newReader(id, engine, r.metrics)
	r.readers[id] = rd

	if r.metrics != nil {
		r.metrics.ActiveReaders.Set(float64(len(r.readers)))
		r.metrics.WordsPerMinute.Observe(engine.Snapshot().SpeedWPM)
	}
	zlog.Info().Msgf("reader created: id=%s words=%d", id, len(engine.Snapshot().Words))

	return rd, nil
}

// ReplaceText swaps the passage of a hosted reader after admitting it.
func (r *Registry) ReplaceText(ctx context.Context, rd *Reader, text string) error {
	snap := rd.Snapshot()
	if err := r.admit(ctx, filter.PassageRequest{
		Origin:   filter.OriginReplace,
		ReaderID: rd.ID,
		Words:    passage.Words(text),
		Config: playback.Config{
			SpeedWPM:      snap.SpeedWPM,
			WordsPerChunk: snap.WordsPerChunk,
			AutoPlay:      snap.IsPlaying,
		},
	}); err != nil {
		return err
	}
	return rd.engine.SetText(text)
}

// Passages returns the words of every hosted passage.
func (r *Registry) Passages() [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([][]string, 0, len(r.readers))
	for _, rd := range r.readers {
		out = append(out, rd.Snapshot().Words)
	}
	return out
}

// Get retrieves a reader by ID.
func (r *Registry) Get(id string) (*Reader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rd, ok := r.readers[id]
	if !ok {
		return nil, ErrReaderNotFound
	}
	return rd, nil
}

// Remove tears a reader down and forgets it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	rd, ok := r.readers[id]
	if ok {
		delete(r.readers, id)
	}
	count := len(r.readers)
	r.mu.Unlock()

	if !ok {
		return ErrReaderNotFound
	}

	rd.close()
	if r.metrics != nil {
		r.metrics.ActiveReaders.Set(float64(count))
	}
	zlog.Info().Msgf("reader removed: id=%s", id)
	return nil
}

// IDs returns the IDs of all readers, oldest first.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Reader, 0, len(r.readers))
	for _, rd := range r.readers {
		all = append(all, rd)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	ids := make([]string, len(all))
	for i, rd := range all {
		ids[i] = rd.ID
	}
	return ids
}

// Count returns the number of readers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readers)
}

// Close tears every reader down.
func (r *Registry) Close() {
	r.mu.Lock()
	readers := r.readers
	r.readers = make(map[string]*Reader)
	r.mu.Unlock()

	for _, rd := range readers {
		rd.close()
	}
	if r.metrics != nil {
		r.metrics.ActiveReaders.Set(0)
	}
}
