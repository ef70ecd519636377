package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// receiptPollInterval is how often WaitForReceipt re-checks the node for
// a transaction that is not yet mined.
const receiptPollInterval = 2 * time.Second

// ErrReceiptTimeout is returned when a transaction stays unmined past the
// configured deadline.
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// ClientConfig carries the node connection settings.
type ClientConfig struct {
	RPCURL         string
	RPCTimeout     time.Duration
	ReceiptTimeout time.Duration
	TokenAddress   common.Address
}

// Client wraps an Ethereum JSON-RPC connection. It serves as the gas
// oracle, the receipt waiter and the balance reader for the gateway.
type Client struct {
	eth      *ethclient.Client
	cfg      ClientConfig
	tokenABI abi.ABI
	logger   *logging.Logger
}

// NewClient dials the configured node.
func NewClient(ctx context.Context, cfg ClientConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc node: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse token abi: %w", err)
	}

	return &Client{eth: eth, cfg: cfg, tokenABI: parsed, logger: logger}, nil
}

// SuggestGasPrice returns the node's current gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()
	return c.eth.SuggestGasPrice(ctx)
}

// WaitForReceipt polls the node until the transaction is mined, the
// context is cancelled, or the receipt timeout elapses.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet, keep polling.
		default:
			c.logger.WithError(err).
				WithField("tx_hash", txHash.Hex()).
				Debug("transient receipt lookup failure")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NativeBalance reads the POL balance of an address at the latest block.
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()
	return c.eth.BalanceAt(ctx, address, nil)
}

// TokenBalance reads the OGUN balance of an address via balanceOf.
func (c *Client) TokenBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	data, err := c.tokenABI.Pack("balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.cfg.TokenAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	out, err := c.tokenABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return balance, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()
	return c.eth.SendTransaction(ctx, tx)
}

// PendingNonce returns the next nonce for an address including queued
// transactions.
func (c *Client) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()
	return c.eth.PendingNonceAt(ctx, address)
}

// ChainID returns the connected network's chain identifier.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()
	return c.eth.ChainID(ctx)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
