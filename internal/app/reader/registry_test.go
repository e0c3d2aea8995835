package reader

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/speedreader/internal/app/notification"
	"github.com/osa030/speedreader/internal/app/playback"
	"github.com/osa030/speedreader/internal/infra/config"
	"github.com/osa030/speedreader/internal/infra/metrics"
)

type recordingStream struct {
	mu       sync.Mutex
	messages []*notification.Message
}

func (s *recordingStream) Send(msg *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingStream) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.messages))
	for i, m := range s.messages {
		types[i] = m.Type
	}
	return types
}

// slowStream delays every send to fall behind the engine.
type slowStream struct {
	recordingStream
	delay time.Duration
}

func (s *slowStream) Send(msg *notification.Message) error {
	time.Sleep(s.delay)
	return s.recordingStream.Send(msg)
}

func (s *slowStream) last() *notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	reg := NewRegistry(10, nil)
	defer reg.Close()

	rd, err := reg.Create(context.Background(), "This is a test", playback.Config{SpeedWPM: 1})
	require.NoError(t, err)
	require.NotEmpty(t, rd.ID)

	got, err := reg.Get(rd.ID)
	require.NoError(t, err)
	assert.Same(t, rd, got)
	assert.Equal(t, []string{"This", "is", "a", "test"}, got.Snapshot().Words)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []string{rd.ID}, reg.IDs())

	require.NoError(t, reg.Remove(rd.ID))
	assert.Equal(t, 0, reg.Count())

	_, err = reg.Get(rd.ID)
	assert.ErrorIs(t, err, ErrReaderNotFound)
	assert.ErrorIs(t, reg.Remove(rd.ID), ErrReaderNotFound)
	assert.ErrorIs(t, rd.Engine().Play(), playback.ErrClosed)

	select {
	case <-rd.Done():
	default:
		t.Fatal("event loop still running after remove")
	}
}

func TestRegistry_Full(t *testing.T) {
	reg := NewRegistry(1, nil)
	defer reg.Close()

	_, err := reg.Create(context.Background(), "one", playback.Config{})
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), "two", playback.Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistryFull))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_InvalidConfiguration(t *testing.T) {
	reg := NewRegistry(10, nil)
	defer reg.Close()

	_, err := reg.Create(context.Background(), "one", playback.Config{SpeedWPM: -10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, playback.ErrInvalidConfiguration))
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_IDsOrderedByCreation(t *testing.T) {
	reg := NewRegistry(0, nil)
	defer reg.Close()

	var want []string
	for i := 0; i < 3; i++ {
		rd, err := reg.Create(context.Background(), "text", playback.Config{})
		require.NoError(t, err)
		want = append(want, rd.ID)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, want, reg.IDs())
}

func TestReader_ForwardsEvents(t *testing.T) {
	m := metrics.New("test_reader")
	reg := NewRegistry(10, m)
	defer reg.Close()

	rd, err := reg.Create(context.Background(), "Hello world", playback.Config{SpeedWPM: 60000})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveReaders))

	stream := &recordingStream{}
	rd.Notifications().Subscribe(stream)

	require.NoError(t, rd.Engine().Play())

	require.Eventually(t, func() bool {
		types := stream.types()
		return len(types) > 0 && types[len(types)-1] == "finished"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"state_changed", "chunk_revealed", "chunk_revealed", "finished"}, stream.types())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PlaybackEvents.WithLabelValues("chunk_revealed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PlaybackEvents.WithLabelValues("finished")))

	reg.Close()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveReaders))
}

func TestReader_SlowSubscriberReceivesFinished(t *testing.T) {
	reg := NewRegistry(10, nil)
	defer reg.Close()

	rd, err := reg.Create(context.Background(), strings.Repeat("word ", 300), playback.Config{SpeedWPM: playback.MaxSpeedWPM})
	require.NoError(t, err)

	stream := &slowStream{delay: 5 * time.Millisecond}
	rd.Notifications().Subscribe(stream)

	require.NoError(t, rd.Engine().Play())

	require.Eventually(t, func() bool {
		msg := stream.last()
		return msg != nil && msg.Type == "finished"
	}, 10*time.Second, 10*time.Millisecond)

	last := stream.last()
	assert.Equal(t, 300, last.Snapshot.Position)
	assert.Equal(t, "finished", last.State)

	types := stream.types()
	assert.Equal(t, "state_changed", types[0])
	assert.Equal(t, "chunk_revealed", types[len(types)-2])
}

func TestRegistry_Filters(t *testing.T) {
	reg := NewRegistry(10, nil)
	defer reg.Close()

	require.NoError(t, reg.SetupFilters(map[string]config.FilterConfig{
		"word_limit_filter":     {Enabled: true, Settings: map[string]any{"max_words": 4}},
		"duplicate_text_filter": {Enabled: true},
		"speed_limit_filter":    {Enabled: false},
	}))

	rd, err := reg.Create(context.Background(), "Hello world", playback.Config{SpeedWPM: 5000})
	require.NoError(t, err, "speed limit filter is disabled")

	tests := []struct {
		name     string
		text     string
		wantCode string
	}{
		{"empty passage", "   ", "too_few_words"},
		{"too long", "one two three four five", "too_many_words"},
		{"duplicate", "hello, WORLD", "duplicate_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(context.Background(), tt.text, playback.Config{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))

			var rejected *RejectedError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, tt.wantCode, rejected.Code)
		})
	}
	assert.Equal(t, 1, reg.Count())

	// Replacing text skips the duplicate check but keeps the word limit.
	require.NoError(t, reg.ReplaceText(context.Background(), rd, "Hello world"))
	err = reg.ReplaceText(context.Background(), rd, "one two three four five")
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, []string{"Hello", "world"}, rd.Snapshot().Words)

	require.NoError(t, reg.ReplaceText(context.Background(), rd, "Brand new text"))
	assert.Equal(t, []string{"Brand", "new", "text"}, rd.Snapshot().Words)
}

func TestRegistry_SetupFiltersErrors(t *testing.T) {
	reg := NewRegistry(10, nil)
	defer reg.Close()

	err := reg.SetupFilters(map[string]config.FilterConfig{"no_such_filter": {Enabled: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter")

	err = reg.SetupFilters(map[string]config.FilterConfig{
		"word_limit_filter": {Enabled: true, Settings: map[string]any{"min_words": 9, "max_words": 2}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word_limit_filter")

	// Disabled unknown filters are ignored.
	require.NoError(t, reg.SetupFilters(map[string]config.FilterConfig{"no_such_filter": {}}))
}
