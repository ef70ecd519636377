package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

type fakeProvider struct {
	kind    domain.ProviderKind
	address string
	authErr error
	sendErr error
}

func (f *fakeProvider) Kind() domain.ProviderKind { return f.kind }
func (f *fakeProvider) Address() string           { return f.address }
func (f *fakeProvider) Connected() bool           { return true }
func (f *fakeProvider) Close() error              { return nil }

func (f *fakeProvider) SignAndSend(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0x33"), nil
}

func (f *fakeProvider) Balances(ctx context.Context) (domain.Balances, error) {
	return domain.Balances{Native: big.NewInt(0), Token: big.NewInt(0)}, nil
}

func (f *fakeProvider) EnsureAuthenticated(ctx context.Context) error {
	return f.authErr
}

type fakeRegistry struct {
	provider *fakeProvider
	err      error
}

func (f *fakeRegistry) ActiveProvider() (domain.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

func (f *fakeRegistry) Resolve() (domain.Wallet, error) {
	if f.err != nil {
		return domain.Wallet{}, f.err
	}
	return domain.Wallet{Address: f.provider.address, Kind: f.provider.kind}, nil
}

func (f *fakeRegistry) Balances(ctx context.Context) (domain.Balances, error) {
	return f.provider.Balances(ctx)
}

func (f *fakeRegistry) SetPreferred(ctx context.Context, account string, kind domain.ProviderKind) error {
	return nil
}

func (f *fakeRegistry) DisplayWallet() (domain.Wallet, error) { return f.Resolve() }

type fakeRepo struct {
	mu      sync.Mutex
	actions map[string]*domain.PendingAction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{actions: make(map[string]*domain.PendingAction)}
}

func (f *fakeRepo) Create(ctx context.Context, action *domain.PendingAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *action
	f.actions[action.ID] = &copied
	return nil
}

func (f *fakeRepo) UpdateTxHash(ctx context.Context, id, txHash, gasPrice string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok {
		a.TxHash = &txHash
		a.GasPrice = gasPrice
	}
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id string, status domain.ActionStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok {
		a.Status = status
		a.Error = errMsg
	}
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*domain.PendingAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeRepo) ListInFlight(ctx context.Context, account string) ([]*domain.PendingAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.PendingAction
	for _, a := range f.actions {
		if a.Account == account && a.Status == domain.ActionSubmitted {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRepo) status(id string) domain.ActionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok {
		return a.Status
	}
	return ""
}

type fakeCache struct {
	mu      sync.Mutex
	pending map[string]domain.PendingRequest
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{pending: make(map[string]domain.PendingRequest)}
}

func (f *fakeCache) SetPending(ctx context.Context, trackID string, req domain.PendingRequest) error {
	f.mu.Lock()
	f.pending[trackID] = req
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) GetPending(ctx context.Context, trackID string) (domain.PendingRequest, bool, error) {
	if f.getErr != nil {
		return domain.PendingNone, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.pending[trackID]
	return req, ok, nil
}

func (f *fakeCache) ClearPending(ctx context.Context, trackID string) error {
	f.mu.Lock()
	delete(f.pending, trackID)
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) get(trackID string) (domain.PendingRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.pending[trackID]
	return req, ok
}

type fakeEvents struct {
	mu      sync.Mutex
	settled []string
	failed  []string
	reasons []string
}

func (f *fakeEvents) PublishSettled(ctx context.Context, action *domain.PendingAction, receipt *types.Receipt) error {
	f.mu.Lock()
	f.settled = append(f.settled, action.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvents) PublishFailed(ctx context.Context, action *domain.PendingAction, reason string) error {
	f.mu.Lock()
	f.failed = append(f.failed, action.ID)
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	return nil
}

func (f *fakeEvents) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settled), len(f.failed)
}

func (f *fakeEvents) lastReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reasons) == 0 {
		return ""
	}
	return f.reasons[len(f.reasons)-1]
}

type fakeBackend struct {
	pending domain.PendingRequest
}

func (f *fakeBackend) Track(ctx context.Context, trackID string) (*domain.TrackSnapshot, error) {
	return &domain.TrackSnapshot{ID: trackID, PendingRequest: f.pending}, nil
}

func (f *fakeBackend) ListingItem(ctx context.Context, trackID string) (*domain.ListingSnapshot, error) {
	return &domain.ListingSnapshot{TrackID: trackID}, nil
}

func (f *fakeBackend) OwnedTracks(ctx context.Context, account string) ([]domain.TrackSnapshot, error) {
	return nil, nil
}

func (f *fakeBackend) UpdateDefaultWallet(ctx context.Context, account string, kind domain.ProviderKind) error {
	return nil
}

type fakeWatcher struct {
	mu        sync.Mutex
	watched   []string
	refreshed []string
}

func (f *fakeWatcher) Watch(trackID, account string) {
	f.mu.Lock()
	f.watched = append(f.watched, trackID)
	f.mu.Unlock()
}

func (f *fakeWatcher) ForceRefresh(trackID string) {
	f.mu.Lock()
	f.refreshed = append(f.refreshed, trackID)
	f.mu.Unlock()
}

func (f *fakeWatcher) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshed)
}

type fakeEncoder struct{}

func (fakeEncoder) Pack(target command.Target, method string, args ...interface{}) ([]byte, error) {
	return []byte{0x01}, nil
}

func (fakeEncoder) Address(target command.Target) (common.Address, error) {
	return common.HexToAddress("0x1000000000000000000000000000000000000001"), nil
}

type fakeOracle struct{}

func (fakeOracle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000_000), nil
}

type fakeWaiter struct {
	mu      sync.Mutex
	status  uint64
	release chan struct{}
}

func (f *fakeWaiter) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Receipt{Status: f.status, TxHash: txHash, BlockNumber: big.NewInt(10)}, nil
}

type fixture struct {
	svc     *GatewayService
	repo    *fakeRepo
	cache   *fakeCache
	events  *fakeEvents
	watcher *fakeWatcher
	waiter  *fakeWaiter
}

func newFixture(provider *fakeProvider) *fixture {
	f := &fixture{
		repo:    newFakeRepo(),
		cache:   newFakeCache(),
		events:  &fakeEvents{},
		watcher: &fakeWatcher{},
		waiter:  &fakeWaiter{status: types.ReceiptStatusSuccessful},
	}
	f.svc = NewGatewayService(Deps{
		Registry:   &fakeRegistry{provider: provider},
		Repo:       f.repo,
		Cache:      f.cache,
		Events:     f.events,
		Backend:    &fakeBackend{},
		Reconciler: f.watcher,
		Command: command.Deps{
			Encoder: fakeEncoder{},
			Oracle:  fakeOracle{},
			Waiter:  f.waiter,
			Gas: command.GasConfig{
				Limit:         1200000,
				Multiplier:    1.5,
				FallbackPrice: big.NewInt(300_000_000_000),
			},
		},
	})
	return f
}

func buyInput() SubmitInput {
	return SubmitInput{
		Account: "0xacc7",
		TrackID: "track-1",
		Action:  domain.ActionBuyItem,
		Params: command.Params{
			TokenID: big.NewInt(1),
			Amount:  big.NewInt(1_000_000_000_000_000_000),
		},
	}
}

func TestSubmit_HappyPath(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})

	action, err := f.svc.Submit(context.Background(), buyInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSubmitted, action.Status)
	assert.Equal(t, domain.PendingBuy, action.Request)
	assert.Equal(t, domain.ProviderWalletConnect, action.Wallet)

	req, ok := f.cache.get("track-1")
	require.True(t, ok)
	assert.Equal(t, domain.PendingBuy, req)
	assert.Contains(t, f.watcher.watched, "track-1")

	assert.Eventually(t, func() bool {
		return f.repo.status(action.ID) == domain.ActionMined
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		settled, failed := f.events.counts()
		return settled == 1 && failed == 0
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.watcher.refreshCount() == 1
	}, time.Second, 10*time.Millisecond)

	stored, err := f.repo.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, "150000000000", stored.GasPrice)
}

func TestSubmit_NoWallet(t *testing.T) {
	f := newFixture(nil)
	f.svc.registry = &fakeRegistry{err: domain.ErrNoWallet}

	_, err := f.svc.Submit(context.Background(), buyInput())
	require.ErrorIs(t, err, domain.ErrNoWallet)
}

func TestSubmit_CustodialRequiresAuthentication(t *testing.T) {
	f := newFixture(&fakeProvider{
		kind:    domain.ProviderCustodial,
		address: "0xc0ffee",
		authErr: domain.ErrAuthenticationRequired,
	})

	_, err := f.svc.Submit(context.Background(), buyInput())
	require.ErrorIs(t, err, domain.ErrAuthenticationRequired)
	assert.Empty(t, f.repo.actions)
}

func TestSubmit_DuplicateInFlight(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})
	f.waiter.release = make(chan struct{})

	_, err := f.svc.Submit(context.Background(), buyInput())
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), buyInput())
	require.ErrorIs(t, err, domain.ErrActionInFlight)

	close(f.waiter.release)

	// The guard lifts once the first command finalizes.
	assert.Eventually(t, func() bool {
		_, err := f.svc.Submit(context.Background(), buyInput())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmit_RevertedReceipt(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})
	f.waiter.status = types.ReceiptStatusFailed

	action, err := f.svc.Submit(context.Background(), buyInput())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.repo.status(action.ID) == domain.ActionReverted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		settled, failed := f.events.counts()
		return settled == 0 && failed == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.RevertMessage, f.events.lastReason())
}

func TestSubmit_SubmitErrorIdentityPreserved(t *testing.T) {
	sendErr := errors.New("nonce too low")
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11", sendErr: sendErr})

	action, err := f.svc.Submit(context.Background(), buyInput())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.repo.status(action.ID) == domain.ActionFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.events.lastReason() == "nonce too low"
	}, time.Second, 10*time.Millisecond)
}

func TestGetPendingStatus_CacheHit(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})
	require.NoError(t, f.cache.SetPending(context.Background(), "track-1", domain.PendingList))

	req, err := f.svc.GetPendingStatus(context.Background(), "track-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingList, req)
}

func TestGetPendingStatus_MissFallsBackAndReprimes(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})
	f.svc.backend = &fakeBackend{pending: domain.PendingMint}

	req, err := f.svc.GetPendingStatus(context.Background(), "track-2")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingMint, req)

	cached, ok := f.cache.get("track-2")
	require.True(t, ok)
	assert.Equal(t, domain.PendingMint, cached)
}

func TestGetPendingStatus_CacheErrorFallsBack(t *testing.T) {
	f := newFixture(&fakeProvider{kind: domain.ProviderWalletConnect, address: "0x3c11"})
	f.cache.getErr = errors.New("redis down")
	f.svc.backend = &fakeBackend{pending: domain.PendingNone}

	req, err := f.svc.GetPendingStatus(context.Background(), "track-3")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingNone, req)
}
