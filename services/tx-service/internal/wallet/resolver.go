package wallet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	siwe "github.com/spruceid/siwe-go"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// SameAddress is the single address-equality helper. Chain addresses are
// hex strings whose letter casing carries no identity, so every
// comparison in the gateway goes through here.
func SameAddress(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// Registry tracks connected providers and resolves the active signing
// wallet by fixed priority: walletconnect, extension, custodial. The
// preferred kind is a display override persisted as a user preference;
// it never changes signing priority.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.ProviderKind]domain.Provider
	preferred domain.ProviderKind

	backend domain.BackendClient
	logger  *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(backend domain.BackendClient, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		providers: make(map[domain.ProviderKind]domain.Provider),
		backend:   backend,
		logger:    logger,
	}
}

// Connect registers a provider. Browser-extension wallets must prove
// address ownership with a signed sign-in message before registration.
func (r *Registry) Connect(ctx context.Context, p domain.Provider) error {
	if p.Address() == "" {
		return domain.ErrInvalidAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Kind()] = p
	r.logger.WithContext(ctx).
		WithField("kind", string(p.Kind())).
		WithField("address", p.Address()).
		Info("wallet provider connected")
	return nil
}

// ConnectExtension verifies a SIWE message/signature pair and registers
// the extension provider on success.
func (r *Registry) ConnectExtension(ctx context.Context, p domain.Provider, message, signature string) error {
	if p.Kind() != domain.ProviderExtension {
		return fmt.Errorf("provider kind %s is not an extension wallet", p.Kind())
	}

	parsed, err := siwe.ParseMessage(message)
	if err != nil {
		return fmt.Errorf("parse sign-in message: %w", err)
	}
	if _, err := parsed.Verify(signature, nil, nil, nil); err != nil {
		return fmt.Errorf("verify sign-in message: %w", err)
	}
	if !SameAddress(parsed.GetAddress().Hex(), p.Address()) {
		return domain.ErrInvalidAddress
	}

	return r.Connect(ctx, p)
}

// Disconnect removes a provider by kind and closes it.
func (r *Registry) Disconnect(kind domain.ProviderKind) error {
	r.mu.Lock()
	p, ok := r.providers[kind]
	delete(r.providers, kind)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return p.Close()
}

// Resolve returns the active signing wallet. Priority is fixed
// regardless of any display preference.
func (r *Registry) Resolve() (domain.Wallet, error) {
	p, err := r.ActiveProvider()
	if err != nil {
		return domain.Wallet{}, err
	}
	return domain.Wallet{Address: p.Address(), Kind: p.Kind()}, nil
}

// ActiveProvider returns the highest-priority connected provider.
func (r *Registry) ActiveProvider() (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Connected() {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoWallet
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Kind().Priority() < candidates[j].Kind().Priority()
	})
	return candidates[0], nil
}

// Balances returns the balances of the active wallet only. Inactive
// providers stay dark until they win resolution.
func (r *Registry) Balances(ctx context.Context) (domain.Balances, error) {
	p, err := r.ActiveProvider()
	if err != nil {
		return domain.Balances{}, err
	}
	return p.Balances(ctx)
}

// SetPreferred persists the account's display wallet preference through
// the backend. Signing priority is unaffected.
func (r *Registry) SetPreferred(ctx context.Context, account string, kind domain.ProviderKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown provider kind: %s", kind)
	}

	if err := r.backend.UpdateDefaultWallet(ctx, account, kind); err != nil {
		return fmt.Errorf("persist wallet preference: %w", err)
	}

	r.mu.Lock()
	r.preferred = kind
	r.mu.Unlock()
	return nil
}

// Preferred returns the display-preference kind, falling back to the
// active wallet's kind when no preference is set.
func (r *Registry) Preferred() domain.ProviderKind {
	r.mu.RLock()
	preferred := r.preferred
	r.mu.RUnlock()

	if preferred != "" {
		return preferred
	}
	if w, err := r.Resolve(); err == nil {
		return w.Kind
	}
	return ""
}

// DisplayWallet returns the wallet to show in profile surfaces: the
// preferred provider when connected, otherwise the active wallet.
func (r *Registry) DisplayWallet() (domain.Wallet, error) {
	r.mu.RLock()
	preferred := r.preferred
	p, ok := r.providers[preferred]
	r.mu.RUnlock()

	if ok && p.Connected() {
		return domain.Wallet{Address: p.Address(), Kind: p.Kind()}, nil
	}
	return r.Resolve()
}
