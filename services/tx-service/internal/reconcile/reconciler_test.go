package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

type fakeBackend struct {
	mu       sync.Mutex
	pending  map[string]domain.PendingRequest
	trackHit map[string]int
	listHit  map[string]int
	ownedHit map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pending:  make(map[string]domain.PendingRequest),
		trackHit: make(map[string]int),
		listHit:  make(map[string]int),
		ownedHit: make(map[string]int),
	}
}

func (f *fakeBackend) setPending(trackID string, req domain.PendingRequest) {
	f.mu.Lock()
	f.pending[trackID] = req
	f.mu.Unlock()
}

func (f *fakeBackend) trackFetches(trackID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackHit[trackID]
}

func (f *fakeBackend) Track(ctx context.Context, trackID string) (*domain.TrackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackHit[trackID]++
	return &domain.TrackSnapshot{ID: trackID, PendingRequest: f.pending[trackID]}, nil
}

func (f *fakeBackend) ListingItem(ctx context.Context, trackID string) (*domain.ListingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHit[trackID]++
	return &domain.ListingSnapshot{TrackID: trackID}, nil
}

func (f *fakeBackend) OwnedTracks(ctx context.Context, account string) ([]domain.TrackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownedHit[account]++
	return nil, nil
}

func (f *fakeBackend) UpdateDefaultWallet(ctx context.Context, account string, kind domain.ProviderKind) error {
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	pending map[string]domain.PendingRequest
	cleared map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		pending: make(map[string]domain.PendingRequest),
		cleared: make(map[string]int),
	}
}

func (f *fakeCache) SetPending(ctx context.Context, trackID string, req domain.PendingRequest) error {
	f.mu.Lock()
	f.pending[trackID] = req
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) GetPending(ctx context.Context, trackID string) (domain.PendingRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.pending[trackID]
	return req, ok, nil
}

func (f *fakeCache) ClearPending(ctx context.Context, trackID string) error {
	f.mu.Lock()
	delete(f.pending, trackID)
	f.cleared[trackID]++
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) clearCount(trackID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared[trackID]
}

func testReconciler(backend *fakeBackend, cache *fakeCache, maxTicks int) *Reconciler {
	return NewReconciler(backend, cache, nil, Config{
		PollInterval: 10 * time.Millisecond,
		MaxTicks:     maxTicks,
		RefetchRPS:   1000,
	}, nil)
}

func TestReconciler_RefetchesWhilePending(t *testing.T) {
	backend := newFakeBackend()
	backend.setPending("track-1", domain.PendingBuy)
	cache := newFakeCache()

	r := testReconciler(backend, cache, 0)
	r.Watch("track-1", "0xacc7")
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return backend.trackFetches("track-1") >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, r.Watching("track-1"))
	assert.Equal(t, 0, cache.clearCount("track-1"))
}

func TestReconciler_UnwatchesAndClearsWhenSettled(t *testing.T) {
	backend := newFakeBackend()
	backend.setPending("track-1", domain.PendingList)
	cache := newFakeCache()
	require.NoError(t, cache.SetPending(context.Background(), "track-1", domain.PendingList))

	r := testReconciler(backend, cache, 0)
	r.Watch("track-1", "0xacc7")
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return backend.trackFetches("track-1") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	backend.setPending("track-1", domain.PendingNone)

	assert.Eventually(t, func() bool {
		return !r.Watching("track-1") && cache.clearCount("track-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, ok, err := cache.GetPending(context.Background(), "track-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReconciler_ForceRefreshServesSettledTrack(t *testing.T) {
	backend := newFakeBackend()
	cache := newFakeCache()

	r := testReconciler(backend, cache, 0)
	r.ForceRefresh("track-9")
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return backend.trackFetches("track-9") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// One forced pass; the settled track does not stay watched.
	assert.Eventually(t, func() bool {
		return !r.Watching("track-9")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconciler_StopHaltsPolling(t *testing.T) {
	backend := newFakeBackend()
	backend.setPending("track-1", domain.PendingMint)
	cache := newFakeCache()

	r := testReconciler(backend, cache, 0)
	r.Watch("track-1", "0xacc7")
	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return backend.trackFetches("track-1") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	fetched := backend.trackFetches("track-1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, fetched, backend.trackFetches("track-1"))
}

func TestReconciler_MaxTicksBoundsLoop(t *testing.T) {
	backend := newFakeBackend()
	backend.setPending("track-1", domain.PendingMint)
	cache := newFakeCache()

	r := testReconciler(backend, cache, 2)
	r.Watch("track-1", "0xacc7")
	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return backend.trackFetches("track-1") == 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, backend.trackFetches("track-1"))
}

func TestReconciler_DoubleStart(t *testing.T) {
	backend := newFakeBackend()
	r := testReconciler(backend, newFakeCache(), 0)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	err := r.Start(context.Background())
	require.Error(t, err)
}
