package command

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// Encoder packs contract calldata and resolves contract addresses.
type Encoder interface {
	Pack(target Target, method string, args ...interface{}) ([]byte, error)
	Address(target Target) (common.Address, error)
}

// GasConfig is injected into every command. FallbackPrice is used verbatim
// when the oracle fails; oracle prices are scaled by Multiplier.
type GasConfig struct {
	Limit         uint64
	Multiplier    float64
	FallbackPrice *big.Int
}

// Deps bundles the collaborators a command needs to execute.
type Deps struct {
	Encoder Encoder
	Oracle  domain.GasOracle
	Waiter  domain.ReceiptWaiter
	Book    AddressBook
	Gas     GasConfig
	Logger  *logging.Logger

	// OnGasFallback, if set, is called whenever the oracle fails and the
	// fallback price is used.
	OnGasFallback func()
}

// Command executes one on-chain action through a fixed lifecycle:
// resolve gas, build calldata, submit, await receipt, dispatch hooks.
// A command is single-use; a second Execute returns ErrCommandConsumed.
//
// Expected failures never surface through Execute's return value. They
// are delivered to the on-error hook, and the finally hook runs exactly
// once after either outcome hook.
type Command struct {
	id     string
	spec   Spec
	params Params
	deps   Deps

	onSubmitted func(txHash common.Hash, gasPrice *big.Int)
	onReceipt   func(receipt *types.Receipt)
	onError     func(err error)
	finally     func()

	mu       sync.Mutex
	consumed bool
}

// New builds a command for the given action kind.
func New(kind domain.ActionKind, params Params, deps Deps) (*Command, error) {
	spec, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Command{
		id:     uuid.NewString(),
		spec:   spec,
		params: params,
		deps:   deps,
	}, nil
}

// ID returns the command's journal identifier.
func (c *Command) ID() string {
	return c.id
}

// Spec returns the action descriptor the command was built from.
func (c *Command) Spec() Spec {
	return c.spec
}

// OnSubmitted registers a hook fired once the transaction is accepted by
// the node, before the receipt arrives.
func (c *Command) OnSubmitted(fn func(txHash common.Hash, gasPrice *big.Int)) *Command {
	c.onSubmitted = fn
	return c
}

// OnReceipt registers the success hook.
func (c *Command) OnReceipt(fn func(receipt *types.Receipt)) *Command {
	c.onReceipt = fn
	return c
}

// OnError registers the failure hook. Without one, failures are logged
// at warn level; they are never silently dropped.
func (c *Command) OnError(fn func(err error)) *Command {
	c.onError = fn
	return c
}

// Finally registers a hook that runs exactly once after the receipt or
// error hook, whichever fires.
func (c *Command) Finally(fn func()) *Command {
	c.finally = fn
	return c
}

// Execute runs the command against the given provider. The returned
// error is non-nil only for programmer errors (reusing a consumed
// command); all expected failures flow through the on-error hook.
func (c *Command) Execute(ctx context.Context, provider domain.Provider) error {
	c.mu.Lock()
	if c.consumed {
		c.mu.Unlock()
		return domain.ErrCommandConsumed
	}
	c.consumed = true
	c.mu.Unlock()

	defer func() {
		if c.finally != nil {
			c.finally()
		}
	}()

	gasPrice := c.resolveGasPrice(ctx)

	args, err := c.spec.Args(c.params, c.deps.Book)
	if err != nil {
		c.fail(err)
		return nil
	}

	var to common.Address
	var data []byte
	if c.spec.Target == TargetNative {
		to = c.params.Recipient
	} else {
		to, err = c.deps.Encoder.Address(c.spec.Target)
		if err != nil {
			c.fail(err)
			return nil
		}
		data, err = c.deps.Encoder.Pack(c.spec.Target, c.spec.Method, args...)
		if err != nil {
			c.fail(err)
			return nil
		}
	}

	// Native value is attached only when the action uses it AND the
	// payment does not settle in OGUN. The two are mutually exclusive.
	var value *big.Int
	if c.spec.UsesNativeValue && !c.params.PaymentInToken {
		value = c.params.Amount
	}

	txHash, err := provider.SignAndSend(ctx, domain.CallRequest{
		To:       to,
		Data:     data,
		Value:    value,
		GasLimit: c.deps.Gas.Limit,
		GasPrice: gasPrice,
	})
	if err != nil {
		c.fail(domain.ClassifySubmitError(err))
		return nil
	}

	if c.onSubmitted != nil {
		c.onSubmitted(txHash, gasPrice)
	}

	receipt, err := c.deps.Waiter.WaitForReceipt(ctx, txHash)
	if err != nil {
		c.fail(domain.ClassifySubmitError(err))
		return nil
	}

	if receipt.Status == types.ReceiptStatusFailed {
		c.fail(domain.NewRevertError(txHash.Hex(), nil))
		return nil
	}

	if c.onReceipt != nil {
		c.onReceipt(receipt)
	}
	return nil
}

// resolveGasPrice asks the oracle and scales the answer by the configured
// multiplier. Oracle failures fall back to the injected constant and are
// never surfaced to the caller.
func (c *Command) resolveGasPrice(ctx context.Context) *big.Int {
	suggested, err := c.deps.Oracle.SuggestGasPrice(ctx)
	if err != nil || suggested == nil {
		c.deps.Logger.WithError(err).
			WithField("action", string(c.spec.Action)).
			Debug("gas oracle unavailable, using fallback price")
		if c.deps.OnGasFallback != nil {
			c.deps.OnGasFallback()
		}
		return new(big.Int).Set(c.deps.Gas.FallbackPrice)
	}

	scaled, _ := new(big.Float).Mul(
		new(big.Float).SetInt(suggested),
		big.NewFloat(c.deps.Gas.Multiplier),
	).Int(nil)
	return scaled
}

func (c *Command) fail(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.deps.Logger.WithError(err).
		WithField("action", string(c.spec.Action)).
		WithField("command_id", c.id).
		Warn("transaction command failed with no error hook registered")
}
