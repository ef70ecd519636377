package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
	"github.com/soundchain/marketplace-gateway/shared/metrics"
	"github.com/soundchain/marketplace-gateway/shared/resilience"
)

const (
	RoutingKeySettled = "transaction.settled"
	RoutingKeyFailed  = "transaction.failed"
)

// Broker is the subset of the messaging client the publisher needs.
type Broker interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error
	GetExchange() string
}

// SettledEvent is emitted when a command's transaction is mined
// successfully.
type SettledEvent struct {
	ActionID    string    `json:"actionId"`
	Account     string    `json:"account"`
	TrackID     string    `json:"trackId"`
	Action      string    `json:"action"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	GasUsed     uint64    `json:"gasUsed"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// FailedEvent is emitted when a command fails or its transaction reverts.
type FailedEvent struct {
	ActionID   string    `json:"actionId"`
	Account    string    `json:"account"`
	TrackID    string    `json:"trackId"`
	Action     string    `json:"action"`
	TxHash     *string   `json:"txHash,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Config tunes publish retries. Broker hiccups are retried with
// exponential backoff before the failure is surfaced to the hooks.
type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

// Publisher emits settlement events to the transactions exchange.
type Publisher struct {
	broker  Broker
	cfg     Config
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func NewPublisher(broker Broker, cfg Config, m *metrics.Metrics, logger *logging.Logger) domain.EventPublisher {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{broker: broker, cfg: cfg, metrics: m, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event interface{}) error {
	return resilience.RetryWithExponentialBackoff(ctx, p.cfg.RetryAttempts, p.cfg.RetryDelay,
		func(ctx context.Context) error {
			return p.broker.PublishJSON(ctx, p.broker.GetExchange(), routingKey, event)
		})
}

func (p *Publisher) PublishSettled(ctx context.Context, action *domain.PendingAction, receipt *types.Receipt) error {
	event := SettledEvent{
		ActionID:   action.ID,
		Account:    action.Account,
		TrackID:    action.TrackID,
		Action:     string(action.Action),
		TxHash:     receipt.TxHash.Hex(),
		GasUsed:    receipt.GasUsed,
		OccurredAt: time.Now().UTC(),
	}
	if receipt.BlockNumber != nil {
		event.BlockNumber = receipt.BlockNumber.Uint64()
	}

	if err := p.publish(ctx, RoutingKeySettled, event); err != nil {
		return fmt.Errorf("publish settled event: %w", err)
	}
	p.count(RoutingKeySettled)
	return nil
}

func (p *Publisher) PublishFailed(ctx context.Context, action *domain.PendingAction, reason string) error {
	event := FailedEvent{
		ActionID:   action.ID,
		Account:    action.Account,
		TrackID:    action.TrackID,
		Action:     string(action.Action),
		TxHash:     action.TxHash,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}

	if err := p.publish(ctx, RoutingKeyFailed, event); err != nil {
		return fmt.Errorf("publish failed event: %w", err)
	}
	p.count(RoutingKeyFailed)
	return nil
}

func (p *Publisher) count(routingKey string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(routingKey).Inc()
	}
}
