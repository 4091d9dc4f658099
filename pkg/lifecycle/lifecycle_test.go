package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/store/memory"
)

var manifest = []string{"/index.html", "/app.js"}

// stubFetcher serves the manifest from memory and can be told to fail.
type stubFetcher struct {
	failing bool
}

func (f *stubFetcher) fetch(_ context.Context, url string) (*cache.Entry, error) {
	if f.failing {
		return nil, errors.New("connection refused")
	}
	return &cache.Entry{
		Status:      200,
		ContentType: "text/plain",
		Body:        []byte("asset " + url),
	}, nil
}

func newTestController(s *memory.Store) (*Controller, *cache.Manager, *stubFetcher) {
	fetcher := &stubFetcher{}
	mgr := cache.NewManager(s, fetcher.fetch, "", "", nil)
	return NewController(s, mgr, manifest), mgr, fetcher
}

func TestEnsureActiveBootstrapsFreshDevice(t *testing.T) {
	s := memory.New()
	ctrl, mgr, _ := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.Load(ctx))
	require.NoError(t, ctrl.EnsureActive(ctx))

	state := ctrl.State()
	assert.NotEmpty(t, state.ActiveGeneration)
	assert.Empty(t, state.WaitingGeneration)

	// The manifest is served from the static tier.
	entry, err := mgr.Get(ctx, cache.Identity("GET", "/index.html"))
	require.NoError(t, err)
	assert.Equal(t, []byte("asset /index.html"), entry.Body)
}

func TestEnsureActiveIsIdempotent(t *testing.T) {
	s := memory.New()
	ctrl, _, _ := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.EnsureActive(ctx))
	first := ctrl.State().ActiveGeneration

	require.NoError(t, ctrl.EnsureActive(ctx))
	assert.Equal(t, first, ctrl.State().ActiveGeneration)
}

func TestInstallWaitsUntilActivate(t *testing.T) {
	s := memory.New()
	ctrl, mgr, _ := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.EnsureActive(ctx))
	active := ctrl.State().ActiveGeneration

	waiting, err := ctrl.Install(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, active, waiting)

	// The old generation keeps serving until activation.
	staticGen, _ := mgr.Generations()
	assert.Equal(t, active, staticGen)
	assert.Equal(t, waiting, ctrl.State().WaitingGeneration)

	require.NoError(t, ctrl.Activate(ctx))
	staticGen, dynamicGen := mgr.Generations()
	assert.Equal(t, waiting, staticGen)
	assert.Equal(t, waiting, dynamicGen)
	assert.Empty(t, ctrl.State().WaitingGeneration)
}

func TestActivateCollectsStaleTiers(t *testing.T) {
	s := memory.New()
	ctrl, mgr, _ := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.EnsureActive(ctx))
	old := ctrl.State().ActiveGeneration

	// Seed the old dynamic tier so there is something to collect.
	require.NoError(t, mgr.Put(ctx, cache.Identity("GET", "/cached"), &cache.Entry{
		Status: 200,
		Body:   []byte("old"),
	}))

	_, err := ctrl.Install(ctx)
	require.NoError(t, err)
	require.NoError(t, ctrl.Activate(ctx))

	keys, err := s.List(ctx, "tier/")
	require.NoError(t, err)
	for _, key := range keys {
		assert.NotContains(t, key, old, "stale tier survived activation: %s", key)
	}
}

func TestActivateWithoutInstall(t *testing.T) {
	ctrl, _, _ := newTestController(memory.New())
	err := ctrl.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoInstall)
}

func TestSkipWaiting(t *testing.T) {
	s := memory.New()
	ctrl, mgr, _ := newTestController(s)
	ctx := context.Background()

	// Without a waiting generation it is a no-op.
	require.NoError(t, ctrl.SkipWaiting(ctx))

	require.NoError(t, ctrl.EnsureActive(ctx))
	waiting, err := ctrl.Install(ctx)
	require.NoError(t, err)

	require.NoError(t, ctrl.SkipWaiting(ctx))
	staticGen, _ := mgr.Generations()
	assert.Equal(t, waiting, staticGen)
}

func TestFailedInstallKeepsServingGeneration(t *testing.T) {
	s := memory.New()
	ctrl, mgr, fetcher := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.EnsureActive(ctx))
	active := ctrl.State().ActiveGeneration

	fetcher.failing = true
	_, err := ctrl.Install(ctx)
	require.ErrorIs(t, err, cache.ErrAssetFetch)

	// No state change, no waiting generation, old tier still serves.
	state := ctrl.State()
	assert.Equal(t, active, state.ActiveGeneration)
	assert.Empty(t, state.WaitingGeneration)

	entry, err := mgr.Get(ctx, cache.Identity("GET", "/index.html"))
	require.NoError(t, err)
	assert.NotEmpty(t, entry.Body)
}

func TestStateSurvivesRestart(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ctrl, _, _ := newTestController(s)
	require.NoError(t, ctrl.EnsureActive(ctx))
	active := ctrl.State().ActiveGeneration

	// Same store, fresh controller and cache manager.
	restarted, mgr, _ := newTestController(s)
	require.NoError(t, restarted.Load(ctx))

	assert.Equal(t, active, restarted.State().ActiveGeneration)

	entry, err := mgr.Get(ctx, cache.Identity("GET", "/app.js"))
	require.NoError(t, err)
	assert.Equal(t, []byte("asset /app.js"), entry.Body)
}

func TestIdentityIsStable(t *testing.T) {
	s := memory.New()
	ctrl, _, _ := newTestController(s)
	ctx := context.Background()

	first, err := ctrl.Identity(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := ctrl.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// And across a restart.
	restarted, _, _ := newTestController(s)
	third, err := restarted.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestLoadFreshStore(t *testing.T) {
	ctrl, _, _ := newTestController(memory.New())
	require.NoError(t, ctrl.Load(context.Background()))
	assert.Empty(t, ctrl.State().ActiveGeneration)
}

func TestStatePersistenceFailureSurfaces(t *testing.T) {
	s := memory.New()
	ctrl, _, _ := newTestController(s)
	ctx := context.Background()

	require.NoError(t, ctrl.EnsureActive(ctx))
	_, err := ctrl.Install(ctx)
	require.NoError(t, err)

	s.FailWith(errors.New("disk detached"))

	err = ctrl.Activate(ctx)
	require.Error(t, err)

	s.FailWith(nil)
	// The waiting generation is still there for a retry.
	assert.NotEmpty(t, ctrl.State().WaitingGeneration)
	require.NoError(t, ctrl.Activate(ctx))
}
