package session

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/caloriesnap/internal/domain"
	"github.com/vbonduro/caloriesnap/internal/ingest"
	"github.com/vbonduro/caloriesnap/internal/pipeline"
)

// gatedRunner blocks every run until release is closed.
type gatedRunner struct {
	release chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, _ *domain.ImageAsset, _ func(domain.Stage)) (pipeline.Result, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}
	return pipeline.Result{Items: domain.FoodItemList{}}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T, ttl time.Duration, runner *gatedRunner) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(ttl, func(string) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(ingest.New(0), runner, slog.Default())
	}, slog.Default())
	r.now = clock.Now
	t.Cleanup(r.Close)
	return r, clock
}

func TestRegistryGet(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, &gatedRunner{release: make(chan struct{})})

	id, o := r.Get("")
	_, err := uuid.Parse(id)
	require.NoError(t, err, "a fresh session gets a UUID")
	require.NotNil(t, o)

	sameID, same := r.Get(id)
	assert.Equal(t, id, sameID)
	assert.Same(t, o, same)

	otherID, other := r.Get("not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", otherID)
	assert.NotSame(t, o, other)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryGetUnknownUUIDKeepsID(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, &gatedRunner{release: make(chan struct{})})

	id := uuid.NewString()
	got, _ := r.Get(id)
	assert.Equal(t, id, got)
}

func TestRegistrySweep(t *testing.T) {
	r, clock := newTestRegistry(t, time.Minute, &gatedRunner{release: make(chan struct{})})

	oldID, old := r.Get("")
	clock.Advance(45 * time.Second)
	freshID, _ := r.Get("")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())

	// The expired orchestrator is closed.
	assert.ErrorIs(t, old.Submit("image/jpeg", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF})), pipeline.ErrClosed)

	// Using a session refreshes it.
	_, fresh := r.Get(freshID)
	assert.NotNil(t, fresh)
	clock.Advance(45 * time.Second)
	assert.Zero(t, r.Sweep())

	// An expired id comes back as a new session under the same id.
	gotID, again := r.Get(oldID)
	assert.Equal(t, oldID, gotID)
	assert.NotSame(t, old, again)
}

func TestRegistrySweepKeepsProcessingSessions(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	r, clock := newTestRegistry(t, time.Minute, runner)

	_, o := r.Get("")
	require.NoError(t, o.Submit("image/jpeg", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xE0})))
	require.Equal(t, domain.StatusProcessing, o.State().Status)

	clock.Advance(time.Hour)
	assert.Zero(t, r.Sweep())

	close(runner.release)
	require.Eventually(t, func() bool { return o.State().Settled() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, r.Sweep())
	assert.Zero(t, r.Len())
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, &gatedRunner{release: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistryLookup(t *testing.T) {
	r, clock := newTestRegistry(t, time.Minute, &gatedRunner{release: make(chan struct{})})

	_, ok := r.Lookup(uuid.NewString())
	assert.False(t, ok)
	_, ok = r.Lookup("")
	assert.False(t, ok)
	assert.Zero(t, r.Len(), "lookup never creates a session")

	id, o := r.Get("")
	clock.Advance(45 * time.Second)
	found, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, o, found)

	// The lookup refreshed the session.
	clock.Advance(45 * time.Second)
	assert.Zero(t, r.Sweep())
}
