package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
	"github.com/soundchain/marketplace-gateway/shared/resilience"
)

// Config carries the backend GraphQL endpoint settings.
type Config struct {
	GraphQLURL     string
	APIKey         string
	RequestTimeout time.Duration
}

// Client talks to the marketplace backend over its GraphQL endpoint. A
// circuit breaker sheds queries while the backend is down so reconciler
// refetches do not pile up against a dead endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
	logger  *logging.Logger
}

func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
	c.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		OnStateChange: func(from, to resilience.BreakerState) {
			logger.
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("backend circuit state changed")
		},
	})
	return c
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, query, variables, out)
	})
}

func (c *Client) post(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GraphQLURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read graphql response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql request failed with status %d", resp.StatusCode)
	}

	var envelope gqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode graphql envelope: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

const trackQuery = `
	query Track($id: ID!) {
		track(id: $id) {
			id
			title
			tokenId
			owner
			pendingRequest
		}
	}
`

type trackPayload struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	TokenID        *int64 `json:"tokenId"`
	Owner          string `json:"owner"`
	PendingRequest string `json:"pendingRequest"`
}

func (c *Client) Track(ctx context.Context, trackID string) (*domain.TrackSnapshot, error) {
	var data struct {
		Track *trackPayload `json:"track"`
	}
	if err := c.do(ctx, trackQuery, map[string]interface{}{"id": trackID}, &data); err != nil {
		return nil, err
	}
	if data.Track == nil {
		return nil, domain.ErrTrackNotFound
	}

	return &domain.TrackSnapshot{
		ID:             data.Track.ID,
		Title:          data.Track.Title,
		TokenID:        data.Track.TokenID,
		Owner:          data.Track.Owner,
		PendingRequest: domain.ParsePendingRequest(data.Track.PendingRequest),
	}, nil
}

const listingItemQuery = `
	query ListingItem($trackId: ID!) {
		listingItem(trackId: $trackId) {
			trackId
			price
			priceToken
			acceptsNative
			acceptsToken
			seller
			active
		}
	}
`

func (c *Client) ListingItem(ctx context.Context, trackID string) (*domain.ListingSnapshot, error) {
	var data struct {
		ListingItem *domain.ListingSnapshot `json:"listingItem"`
	}
	if err := c.do(ctx, listingItemQuery, map[string]interface{}{"trackId": trackID}, &data); err != nil {
		return nil, err
	}
	if data.ListingItem == nil {
		return nil, domain.ErrListingNotFound
	}
	return data.ListingItem, nil
}

const ownedTracksQuery = `
	query OwnedTracks($owner: String!) {
		ownedTracks(owner: $owner) {
			id
			title
			tokenId
			owner
			pendingRequest
		}
	}
`

func (c *Client) OwnedTracks(ctx context.Context, account string) ([]domain.TrackSnapshot, error) {
	var data struct {
		OwnedTracks []trackPayload `json:"ownedTracks"`
	}
	if err := c.do(ctx, ownedTracksQuery, map[string]interface{}{"owner": account}, &data); err != nil {
		return nil, err
	}

	tracks := make([]domain.TrackSnapshot, 0, len(data.OwnedTracks))
	for _, t := range data.OwnedTracks {
		tracks = append(tracks, domain.TrackSnapshot{
			ID:             t.ID,
			Title:          t.Title,
			TokenID:        t.TokenID,
			Owner:          t.Owner,
			PendingRequest: domain.ParsePendingRequest(t.PendingRequest),
		})
	}
	return tracks, nil
}

const updateDefaultWalletMutation = `
	mutation UpdateDefaultWallet($account: String!, $wallet: String!) {
		updateDefaultWallet(account: $account, wallet: $wallet) {
			account
		}
	}
`

func (c *Client) UpdateDefaultWallet(ctx context.Context, account string, kind domain.ProviderKind) error {
	var data struct {
		UpdateDefaultWallet *struct {
			Account string `json:"account"`
		} `json:"updateDefaultWallet"`
	}
	return c.do(ctx, updateDefaultWalletMutation, map[string]interface{}{
		"account": account,
		"wallet":  string(kind),
	}, &data)
}
