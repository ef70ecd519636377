package command

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

type fakeEncoder struct {
	packed []byte
	err    error
}

func (f *fakeEncoder) Pack(target Target, method string, args ...interface{}) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.packed != nil {
		return f.packed, nil
	}
	return []byte(fmt.Sprintf("%s.%s/%d", target, method, len(args))), nil
}

func (f *fakeEncoder) Address(target Target) (common.Address, error) {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa"), nil
}

type fakeOracle struct {
	price *big.Int
	err   error
	calls int
}

func (f *fakeOracle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.calls++
	return f.price, f.err
}

type fakeWaiter struct {
	receipt *types.Receipt
	err     error
}

func (f *fakeWaiter) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

type fakeProvider struct {
	lastReq domain.CallRequest
	hash    common.Hash
	err     error
	calls   int
}

func (f *fakeProvider) Kind() domain.ProviderKind { return domain.ProviderExtension }
func (f *fakeProvider) Address() string           { return "0xFEED" }
func (f *fakeProvider) Connected() bool           { return true }
func (f *fakeProvider) Close() error              { return nil }

func (f *fakeProvider) Balances(ctx context.Context) (domain.Balances, error) {
	return domain.Balances{}, nil
}

func (f *fakeProvider) SignAndSend(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return f.hash, nil
}

type receiptedErr struct {
	hash string
}

func (e *receiptedErr) Error() string         { return "execution reverted" }
func (e *receiptedErr) ReceiptTxHash() string { return e.hash }

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func testDeps(oracle *fakeOracle, waiter *fakeWaiter) Deps {
	return Deps{
		Encoder: &fakeEncoder{},
		Oracle:  oracle,
		Waiter:  waiter,
		Book: AddressBook{
			Marketplace: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Auction:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		},
		Gas: GasConfig{
			Limit:         1200000,
			Multiplier:    1.5,
			FallbackPrice: gwei(300),
		},
	}
}

func minedReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0xbeef")}
}

func TestExecute_BidInTokenOmitsNativeValue(t *testing.T) {
	oracle := &fakeOracle{price: gwei(100)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

	cmd, err := New(domain.ActionPlaceBid, Params{
		TokenID:        big.NewInt(7),
		TokenAmount:    big.NewInt(5000),
		PaymentInToken: true,
	}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var gotReceipt *types.Receipt
	require.NoError(t, cmd.
		OnReceipt(func(r *types.Receipt) { gotReceipt = r }).
		OnError(func(err error) { t.Fatalf("unexpected error hook: %v", err) }).
		Execute(context.Background(), provider))

	require.NotNil(t, gotReceipt)
	assert.Nil(t, provider.lastReq.Value, "token-denominated bid must not attach native value")
	assert.Equal(t, uint64(1200000), provider.lastReq.GasLimit)
	assert.Equal(t, gwei(150), provider.lastReq.GasPrice, "oracle price scaled by 1.5")
}

func TestExecute_NativePaymentAttachesValue(t *testing.T) {
	oracle := &fakeOracle{price: gwei(100)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

	price := big.NewInt(123456789)
	cmd, err := New(domain.ActionBuyItem, Params{
		TokenID: big.NewInt(7),
		Amount:  price,
	}, testDeps(oracle, waiter))
	require.NoError(t, err)

	require.NoError(t, cmd.
		OnError(func(err error) { t.Fatalf("unexpected error hook: %v", err) }).
		Execute(context.Background(), provider))

	assert.Equal(t, price, provider.lastReq.Value)
}

func TestExecute_GasOracleFailureUsesFallback(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("rpc timeout")}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var hookErr error
	require.NoError(t, cmd.
		OnError(func(err error) { hookErr = err }).
		Execute(context.Background(), provider))

	assert.NoError(t, hookErr, "oracle failures must never surface")
	assert.Equal(t, gwei(300), provider.lastReq.GasPrice, "fallback price used verbatim, unscaled")
}

func TestExecute_RevertedReceiptRewrapped(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}
	provider := &fakeProvider{hash: common.HexToHash("0xdead")}

	cmd, err := New(domain.ActionCancelListing, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var hookErr error
	receiptFired := false
	require.NoError(t, cmd.
		OnReceipt(func(*types.Receipt) { receiptFired = true }).
		OnError(func(err error) { hookErr = err }).
		Execute(context.Background(), provider))

	assert.False(t, receiptFired)
	require.True(t, domain.IsRevert(hookErr))
	assert.Equal(t, domain.RevertMessage, hookErr.Error())
}

func TestExecute_SubmitErrorWithReceiptMetadataRewrapped(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{err: &receiptedErr{hash: "0xdead"}}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var hookErr error
	require.NoError(t, cmd.
		OnError(func(err error) { hookErr = err }).
		Execute(context.Background(), provider))

	require.True(t, domain.IsRevert(hookErr))
	assert.Equal(t, domain.RevertMessage, hookErr.Error())

	var re *domain.RevertError
	require.ErrorAs(t, hookErr, &re)
	assert.Equal(t, "0xdead", re.TxHash)
}

func TestExecute_PlainSubmitErrorPassedThroughUnchanged(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	submitErr := errors.New("insufficient funds for gas")
	provider := &fakeProvider{err: submitErr}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var hookErr error
	require.NoError(t, cmd.
		OnError(func(err error) { hookErr = err }).
		Execute(context.Background(), provider))

	assert.Same(t, submitErr, hookErr, "non-receipt errors keep their identity")
	assert.False(t, domain.IsRevert(hookErr))
}

func TestExecute_FinallyRunsExactlyOnceAfterHooks(t *testing.T) {
	cases := []struct {
		name      string
		waiter    *fakeWaiter
		wantError bool
	}{
		{"after receipt", &fakeWaiter{receipt: minedReceipt()}, false},
		{"after error", &fakeWaiter{err: errors.New("receipt timeout")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := &fakeOracle{price: gwei(10)}
			provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

			cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, tc.waiter))
			require.NoError(t, err)

			var order []string
			require.NoError(t, cmd.
				OnReceipt(func(*types.Receipt) { order = append(order, "receipt") }).
				OnError(func(error) { order = append(order, "error") }).
				Finally(func() { order = append(order, "finally") }).
				Execute(context.Background(), provider))

			if tc.wantError {
				assert.Equal(t, []string{"error", "finally"}, order)
			} else {
				assert.Equal(t, []string{"receipt", "finally"}, order)
			}
		})
	}
}

func TestExecute_ConsumedCommandRejectsReuse(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	finallyCount := 0
	cmd.Finally(func() { finallyCount++ })

	require.NoError(t, cmd.Execute(context.Background(), provider))
	require.ErrorIs(t, cmd.Execute(context.Background(), provider), domain.ErrCommandConsumed)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, 1, finallyCount, "finally must not rerun on a consumed command")
}

func TestExecute_FailedCommandNotReusable(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{err: errors.New("nonce too low")}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	require.NoError(t, cmd.OnError(func(error) {}).Execute(context.Background(), provider))
	require.ErrorIs(t, cmd.Execute(context.Background(), provider), domain.ErrCommandConsumed)
}

func TestExecute_MissingErrorHookDoesNotPanic(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{err: errors.New("boom")}

	cmd, err := New(domain.ActionBuyItem, Params{TokenID: big.NewInt(1)}, testDeps(oracle, waiter))
	require.NoError(t, err)

	finallyFired := false
	require.NoError(t, cmd.Finally(func() { finallyFired = true }).Execute(context.Background(), provider))
	assert.True(t, finallyFired)
}

func TestExecute_InvalidParamsReachErrorHook(t *testing.T) {
	oracle := &fakeOracle{price: gwei(10)}
	waiter := &fakeWaiter{receipt: minedReceipt()}
	provider := &fakeProvider{hash: common.HexToHash("0xbeef")}

	cmd, err := New(domain.ActionPlaceBid, Params{}, testDeps(oracle, waiter))
	require.NoError(t, err)

	var hookErr error
	require.NoError(t, cmd.
		OnError(func(err error) { hookErr = err }).
		Execute(context.Background(), provider))

	require.Error(t, hookErr)
	assert.Contains(t, hookErr.Error(), "tokenId")
	assert.Equal(t, 0, provider.calls, "nothing submitted on invalid params")
}

func TestLookup_UnknownAction(t *testing.T) {
	_, err := Lookup(domain.ActionKind("jazz_hands"))
	require.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestSpecs_ValueBearingActions(t *testing.T) {
	valueBearing := map[domain.ActionKind]bool{
		domain.ActionPlaceBid:      true,
		domain.ActionBuyItem:       true,
		domain.ActionMintTrack:     true,
		domain.ActionMintToEdition: true,
		domain.ActionSendNative:    true,
	}

	for _, kind := range Actions() {
		spec, err := Lookup(kind)
		require.NoError(t, err)
		assert.Equal(t, valueBearing[kind], spec.UsesNativeValue, "action %s", kind)
	}
}

func TestSpecs_SendNativeHasNoCalldata(t *testing.T) {
	spec, err := Lookup(domain.ActionSendNative)
	require.NoError(t, err)
	assert.Equal(t, TargetNative, spec.Target)
	assert.Empty(t, spec.Method)
}
