package events

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

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

type fakeBroker struct {
	mu       sync.Mutex
	failures int
	calls    int
	lastKey  string
	lastData interface{}
}

func (f *fakeBroker) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("channel closed")
	}
	f.lastKey = routingKey
	f.lastData = data
	return nil
}

func (f *fakeBroker) GetExchange() string { return "soundchain.transactions" }

func sampleAction() *domain.PendingAction {
	return &domain.PendingAction{
		ID:      "cmd-1",
		Account: "0xabc",
		TrackID: "track-1",
		Action:  domain.ActionBuyItem,
	}
}

func sampleReceipt() *types.Receipt {
	return &types.Receipt{
		TxHash:      common.HexToHash("0x11"),
		BlockNumber: big.NewInt(42),
		GasUsed:     90000,
	}
}

func TestPublishSettled(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, Config{RetryAttempts: 3, RetryDelay: time.Millisecond}, nil, nil)

	require.NoError(t, p.PublishSettled(context.Background(), sampleAction(), sampleReceipt()))

	assert.Equal(t, RoutingKeySettled, broker.lastKey)
	event, ok := broker.lastData.(SettledEvent)
	require.True(t, ok)
	assert.Equal(t, "cmd-1", event.ActionID)
	assert.Equal(t, uint64(42), event.BlockNumber)
	assert.Equal(t, uint64(90000), event.GasUsed)
}

func TestPublishSettled_RetriesBrokerHiccups(t *testing.T) {
	broker := &fakeBroker{failures: 2}
	p := NewPublisher(broker, Config{RetryAttempts: 3, RetryDelay: time.Millisecond}, nil, nil)

	require.NoError(t, p.PublishSettled(context.Background(), sampleAction(), sampleReceipt()))
	assert.Equal(t, 3, broker.calls)
}

func TestPublishFailed_SurfacesExhaustedRetries(t *testing.T) {
	broker := &fakeBroker{failures: 10}
	p := NewPublisher(broker, Config{RetryAttempts: 2, RetryDelay: time.Millisecond}, nil, nil)

	err := p.PublishFailed(context.Background(), sampleAction(), "nonce too low")
	require.Error(t, err)
	assert.Equal(t, 2, broker.calls)
}

func TestPublishFailed(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, Config{RetryAttempts: 1, RetryDelay: time.Millisecond}, nil, nil)

	require.NoError(t, p.PublishFailed(context.Background(), sampleAction(), "nonce too low"))

	assert.Equal(t, RoutingKeyFailed, broker.lastKey)
	event, ok := broker.lastData.(FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "nonce too low", event.Reason)
}
