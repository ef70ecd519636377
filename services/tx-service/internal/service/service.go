package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
	"github.com/soundchain/marketplace-gateway/shared/metrics"
	"github.com/soundchain/marketplace-gateway/shared/recovery"
)

// WalletRegistry resolves the active signing wallet.
type WalletRegistry interface {
	ActiveProvider() (domain.Provider, error)
	Resolve() (domain.Wallet, error)
	Balances(ctx context.Context) (domain.Balances, error)
	SetPreferred(ctx context.Context, account string, kind domain.ProviderKind) error
	DisplayWallet() (domain.Wallet, error)
}

// Watcher registers tracks for backend reconciliation.
type Watcher interface {
	Watch(trackID, account string)
	ForceRefresh(trackID string)
}

// Authenticator is implemented by providers that require an explicit
// session check before signing.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) error
}

// SubmitInput describes one requested on-chain action.
type SubmitInput struct {
	Account string
	TrackID string
	Action  domain.ActionKind
	Params  command.Params
}

// GatewayService orchestrates transaction commands: wallet resolution,
// journaling, status caching, reconciliation and settlement events.
type GatewayService struct {
	registry   WalletRegistry
	repo       domain.ActionRepository
	cache      domain.StatusCache
	events     domain.EventPublisher
	backend    domain.BackendClient
	reconciler Watcher
	cmdDeps    command.Deps
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Deps bundles the service collaborators.
type Deps struct {
	Registry   WalletRegistry
	Repo       domain.ActionRepository
	Cache      domain.StatusCache
	Events     domain.EventPublisher
	Backend    domain.BackendClient
	Reconciler Watcher
	Command    command.Deps
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

func NewGatewayService(deps Deps) *GatewayService {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &GatewayService{
		registry:   deps.Registry,
		repo:       deps.Repo,
		cache:      deps.Cache,
		events:     deps.Events,
		backend:    deps.Backend,
		reconciler: deps.Reconciler,
		cmdDeps:    deps.Command,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		inFlight:   make(map[string]struct{}),
	}
}

func guardKey(account, trackID string) string {
	return account + "|" + trackID
}

func (s *GatewayService) acquire(account, trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := guardKey(account, trackID)
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *GatewayService) release(account, trackID string) {
	s.mu.Lock()
	delete(s.inFlight, guardKey(account, trackID))
	s.mu.Unlock()
}

// Submit journals and launches one on-chain action. It returns as soon
// as the action is journaled; the command executes in the background and
// settlement is reported through the journal, the status cache and the
// event stream.
func (s *GatewayService) Submit(ctx context.Context, in SubmitInput) (*domain.PendingAction, error) {
	provider, err := s.registry.ActiveProvider()
	if err != nil {
		return nil, err
	}

	if auth, ok := provider.(Authenticator); ok {
		if err := auth.EnsureAuthenticated(ctx); err != nil {
			return nil, err
		}
	}

	cmd, err := command.New(in.Action, in.Params, s.cmdDeps)
	if err != nil {
		return nil, err
	}

	if !s.acquire(in.Account, in.TrackID) {
		return nil, domain.ErrActionInFlight
	}

	now := time.Now()
	action := &domain.PendingAction{
		ID:        cmd.ID(),
		Account:   in.Account,
		TrackID:   in.TrackID,
		Action:    in.Action,
		Request:   cmd.Spec().Request(),
		Wallet:    provider.Kind(),
		Status:    domain.ActionSubmitted,
		GasPrice:  "0",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, action); err != nil {
		s.release(in.Account, in.TrackID)
		return nil, err
	}

	if action.Request != domain.PendingNone {
		if err := s.cache.SetPending(ctx, in.TrackID, action.Request); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("prime pending marker failed")
		}
		s.reconciler.Watch(in.TrackID, in.Account)
	}

	s.attachHooks(cmd, action)

	if s.metrics != nil {
		s.metrics.CommandsInFlight.Inc()
	}

	execCtx := context.WithoutCancel(ctx)
	recovery.SafeGoWithContext(execCtx, func(ctx context.Context) {
		if err := cmd.Execute(ctx, provider); err != nil {
			s.logger.WithContext(ctx).
				WithError(err).
				WithField("command_id", cmd.ID()).
				Error("command execution rejected")
		}
	})

	return action, nil
}

func (s *GatewayService) attachHooks(cmd *command.Command, action *domain.PendingAction) {
	ctx := context.Background()
	log := s.logger.
		WithField("command_id", action.ID).
		WithField("track_id", action.TrackID).
		WithField("action", string(action.Action))
	started := time.Now()

	cmd.OnSubmitted(func(txHash common.Hash, gasPrice *big.Int) {
		hash := txHash.Hex()
		action.TxHash = &hash
		action.GasPrice = gasPrice.String()
		if err := s.repo.UpdateTxHash(ctx, action.ID, hash, action.GasPrice); err != nil {
			log.WithError(err).Warn("journal tx hash update failed")
		}
		log.WithField("tx_hash", hash).Info("transaction submitted")
	})

	cmd.OnReceipt(func(receipt *types.Receipt) {
		if err := s.repo.UpdateStatus(ctx, action.ID, domain.ActionMined, nil); err != nil {
			log.WithError(err).Warn("journal status update failed")
		}
		if err := s.events.PublishSettled(ctx, action, receipt); err != nil {
			log.WithError(err).Warn("settled event publish failed")
		}
		s.reconciler.ForceRefresh(action.TrackID)
		s.recordCommand(action, "mined", started)
		log.Info("transaction mined")
	})

	cmd.OnError(func(err error) {
		status := domain.ActionFailed
		if domain.IsRevert(err) {
			status = domain.ActionReverted
		}
		reason := err.Error()
		if dbErr := s.repo.UpdateStatus(ctx, action.ID, status, &reason); dbErr != nil {
			log.WithError(dbErr).Warn("journal status update failed")
		}
		if pubErr := s.events.PublishFailed(ctx, action, reason); pubErr != nil {
			log.WithError(pubErr).Warn("failed event publish failed")
		}
		s.reconciler.ForceRefresh(action.TrackID)
		s.recordCommand(action, string(status), started)
		log.WithError(err).Warn("transaction command failed")
	})

	cmd.Finally(func() {
		s.release(action.Account, action.TrackID)
		if s.metrics != nil {
			s.metrics.CommandsInFlight.Dec()
		}
	})
}

func (s *GatewayService) recordCommand(action *domain.PendingAction, status string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCommand(string(action.Action), status, time.Since(started))
	}
}

// GetPendingStatus returns a track's in-flight marker, serving from the
// cache and falling back to the backend on a miss. A backend answer that
// is still pending re-primes the cache.
func (s *GatewayService) GetPendingStatus(ctx context.Context, trackID string) (domain.PendingRequest, error) {
	req, ok, err := s.cache.GetPending(ctx, trackID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("pending marker read failed")
	} else if ok {
		return req, nil
	}

	track, err := s.backend.Track(ctx, trackID)
	if err != nil {
		return domain.PendingNone, fmt.Errorf("fetch track status: %w", err)
	}

	if track.PendingRequest != domain.PendingNone {
		if err := s.cache.SetPending(ctx, trackID, track.PendingRequest); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("re-prime pending marker failed")
		}
	}
	return track.PendingRequest, nil
}

// InFlightActions lists an account's journaled actions still awaiting a
// receipt.
func (s *GatewayService) InFlightActions(ctx context.Context, account string) ([]*domain.PendingAction, error) {
	return s.repo.ListInFlight(ctx, account)
}

// ActiveWallet returns the current signing wallet.
func (s *GatewayService) ActiveWallet() (domain.Wallet, error) {
	return s.registry.Resolve()
}

// DisplayWallet returns the wallet shown on profile surfaces.
func (s *GatewayService) DisplayWallet() (domain.Wallet, error) {
	return s.registry.DisplayWallet()
}

// Balances returns the active wallet's native and token balances.
func (s *GatewayService) Balances(ctx context.Context) (domain.Balances, error) {
	return s.registry.Balances(ctx)
}

// SetPreferredWallet persists an account's display wallet preference.
func (s *GatewayService) SetPreferredWallet(ctx context.Context, account string, kind domain.ProviderKind) error {
	return s.registry.SetPreferred(ctx, account, kind)
}
