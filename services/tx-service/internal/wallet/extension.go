package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

// SignerFunc submits a prepared call through an external signer, such as
// a browser-extension bridge session.
type SignerFunc func(ctx context.Context, req domain.CallRequest) (common.Hash, error)

// BalanceFunc reads the native and token balances of an address.
type BalanceFunc func(ctx context.Context, address string) (domain.Balances, error)

// ExtensionWallet adapts a browser-extension signing bridge to the
// Provider interface. The private key never leaves the extension; the
// gateway only forwards prepared calls and reads balances on-chain.
type ExtensionWallet struct {
	address  string
	signer   SignerFunc
	balances BalanceFunc

	mu        sync.Mutex
	connected bool
}

// NewExtensionWallet wraps an extension bridge session.
func NewExtensionWallet(address string, signer SignerFunc, balances BalanceFunc) *ExtensionWallet {
	return &ExtensionWallet{
		address:   address,
		signer:    signer,
		balances:  balances,
		connected: true,
	}
}

func (w *ExtensionWallet) Kind() domain.ProviderKind { return domain.ProviderExtension }
func (w *ExtensionWallet) Address() string           { return w.address }

func (w *ExtensionWallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *ExtensionWallet) SignAndSend(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	if !w.Connected() {
		return common.Hash{}, domain.ErrProviderDisconnected
	}
	return w.signer(ctx, req)
}

func (w *ExtensionWallet) Balances(ctx context.Context) (domain.Balances, error) {
	return w.balances(ctx, w.address)
}

func (w *ExtensionWallet) Close() error {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	return nil
}
