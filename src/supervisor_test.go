package mowas

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	alerts []*Alert
	events *[]string
}

func (s *fakeSource) Type() string { return "fake" }
func (s *fakeSource) Name() string { return "src" }

func (s *fakeSource) Fetch(ctx context.Context) ([]*Alert, error) {
	*s.events = append(*s.events, "fetch")
	return s.alerts, nil
}

func (s *fakeSource) Purge(valid map[string]bool) error {
	*s.events = append(*s.events, "source-purge")
	return nil
}

type fakeTarget struct {
	events   *[]string
	received [][]*Alert
	panics   bool
}

func (t *fakeTarget) Type() string { return "fake" }
func (t *fakeTarget) Name() string { return "tgt" }

func (t *fakeTarget) Alert(alerts []*Alert) {
	*t.events = append(*t.events, "target")
	t.received = append(t.received, alerts)
	if t.panics {
		panic("boom")
	}
}

func (t *fakeTarget) Close() error { return nil }

func TestSupervisorCycle(t *testing.T) {
	now := time.Now().UTC()
	cache := NewCache(CacheConfig{
		Path:  filepath.Join(t.TempDir(), "cache.json"),
		Purge: Duration(31 * 24 * time.Hour),
	}, zerolog.Nop())

	var events []string
	src := &fakeSource{
		alerts: []*Alert{testAlert("A", now.Add(-time.Hour), "")},
		events: &events,
	}
	tgt := &fakeTarget{events: &events}

	sup := NewSupervisor(cache, []Source{src}, []Target{tgt}, zerolog.Nop())
	sup.cycle(context.Background())

	assert.Equal(t, []string{"fetch", "target", "source-purge"}, events)

	// The fetched alert went through cache admission, got its
	// persistent ID, and reached the target as a head alert.
	require.Len(t, tgt.received, 1)
	require.Len(t, tgt.received[0], 1)
	assert.Equal(t, "A", tgt.received[0][0].ID())
	assert.Equal(t, []int{1}, tgt.received[0][0].PIDs())

	// The cache was persisted at the end of the cycle.
	assert.FileExists(t, cache.path)
}

func TestSupervisorContainsPanic(t *testing.T) {
	cache := NewCache(CacheConfig{
		Path:  filepath.Join(t.TempDir(), "cache.json"),
		Purge: Duration(31 * 24 * time.Hour),
	}, zerolog.Nop())

	var events []string
	panicking := &fakeTarget{events: &events, panics: true}
	healthy := &fakeTarget{events: &events}

	sup := NewSupervisor(cache, nil, []Target{panicking, healthy}, zerolog.Nop())
	require.NotPanics(t, func() { sup.cycle(context.Background()) })

	// The healthy sink still ran.
	assert.Equal(t, []string{"target", "target"}, events)
}

func TestSupervisorRunStopsOnCancel(t *testing.T) {
	cache := NewCache(CacheConfig{
		Path:  filepath.Join(t.TempDir(), "cache.json"),
		Purge: Duration(31 * 24 * time.Hour),
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sup := NewSupervisor(cache, nil, nil, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on context cancellation")
	}
}
