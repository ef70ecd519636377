package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
	"github.com/soundchain/marketplace-gateway/shared/metrics"
	"github.com/soundchain/marketplace-gateway/shared/resilience"
)

// Config tunes the reconciliation loop.
type Config struct {
	// PollInterval is the cadence of backend refetches.
	PollInterval time.Duration
	// MaxTicks bounds the loop for tests; zero leaves it unbounded.
	MaxTicks int
	// RefetchRPS caps backend queries issued per second across all
	// watched tracks.
	RefetchRPS float64
	// RefetchBurst is the limiter burst size.
	RefetchBurst int
}

type watchEntry struct {
	account string
	forced  bool
}

// Reconciler keeps the local pending-status view converged with the
// backend. While a watched track reports a pending request, the backend
// is refetched every poll interval; the watch is dropped and the cached
// marker cleared once the pending request returns to none.
type Reconciler struct {
	backend domain.BackendClient
	cache   domain.StatusCache
	poller  *resilience.Poller
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu      sync.Mutex
	watched map[string]*watchEntry
}

// NewReconciler builds a stopped reconciler; call Start to begin polling.
func NewReconciler(backend domain.BackendClient, cache domain.StatusCache, m *metrics.Metrics, cfg Config, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.RefetchRPS <= 0 {
		cfg.RefetchRPS = 10
	}
	if cfg.RefetchBurst <= 0 {
		cfg.RefetchBurst = int(cfg.RefetchRPS)
	}

	return &Reconciler{
		backend: backend,
		cache:   cache,
		poller:  resilience.NewPoller(cfg.PollInterval, cfg.MaxTicks),
		limiter: rate.NewLimiter(rate.Limit(cfg.RefetchRPS), cfg.RefetchBurst),
		metrics: m,
		logger:  logger,
		watched: make(map[string]*watchEntry),
	}
}

// Start launches the poll loop.
func (r *Reconciler) Start(ctx context.Context) error {
	return r.poller.Start(ctx, r.tick)
}

// Stop halts the poll loop and waits for the in-flight tick to finish.
func (r *Reconciler) Stop() {
	r.poller.Stop()
}

// Watch registers a track for reconciliation on behalf of an account.
// Watching an already-watched track refreshes its account binding.
func (r *Reconciler) Watch(trackID, account string) {
	r.mu.Lock()
	r.watched[trackID] = &watchEntry{account: account}
	r.mu.Unlock()
}

// Unwatch drops a track from reconciliation without touching the cache.
func (r *Reconciler) Unwatch(trackID string) {
	r.mu.Lock()
	delete(r.watched, trackID)
	r.mu.Unlock()
}

// ForceRefresh marks a track for refetch on the next tick even if its
// pending request already cleared. The flag drops once the refetch runs.
func (r *Reconciler) ForceRefresh(trackID string) {
	r.mu.Lock()
	if entry, ok := r.watched[trackID]; ok {
		entry.forced = true
	} else {
		r.watched[trackID] = &watchEntry{forced: true}
	}
	r.mu.Unlock()
}

// Watching reports whether a track is under reconciliation.
func (r *Reconciler) Watching(trackID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watched[trackID]
	return ok
}

func (r *Reconciler) snapshot() map[string]watchEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]watchEntry, len(r.watched))
	for id, entry := range r.watched {
		out[id] = *entry
		entry.forced = false
	}
	return out
}

func (r *Reconciler) tick(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.ReconcileTicks.Inc()
	}

	for trackID, entry := range r.snapshot() {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		r.refetch(ctx, trackID, entry)
	}
}

func (r *Reconciler) refetch(ctx context.Context, trackID string, entry watchEntry) {
	log := r.logger.WithContext(ctx).WithField("track_id", trackID)

	track, err := r.backend.Track(ctx, trackID)
	if err != nil {
		log.WithError(err).Warn("reconcile track refetch failed")
		return
	}
	r.countRefetch("track")

	if _, err := r.backend.ListingItem(ctx, trackID); err != nil {
		log.WithError(err).Debug("reconcile listing refetch failed")
	} else {
		r.countRefetch("listing_item")
	}

	if entry.account != "" {
		if _, err := r.backend.OwnedTracks(ctx, entry.account); err != nil {
			log.WithError(err).Debug("reconcile owned-tracks refetch failed")
		} else {
			r.countRefetch("owned_tracks")
		}
	}

	if track.PendingRequest != domain.PendingNone {
		return
	}

	// Settled. Drop the watch and clear the cached marker; a forced
	// refetch has already been served by this pass.
	r.Unwatch(trackID)
	if err := r.cache.ClearPending(ctx, trackID); err != nil {
		log.WithError(err).Warn("clear pending marker failed")
	}
	log.Info("track reconciled, pending request cleared")
}

func (r *Reconciler) countRefetch(query string) {
	if r.metrics != nil {
		r.metrics.BackendRefetches.WithLabelValues(query).Inc()
	}
}
