package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

func stubBackend(t *testing.T, data string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"data":` + data + `}`))
	}))
	t.Cleanup(srv.Close)

	return NewClient(Config{GraphQLURL: srv.URL, RequestTimeout: 5 * time.Second}, nil), srv
}

func TestTrack(t *testing.T) {
	tokenID := int64(42)
	c, _ := stubBackend(t, `{"track":{"id":"track-1","title":"Night Drive","tokenId":42,"owner":"0xacc7","pendingRequest":"BUY"}}`)

	track, err := c.Track(context.Background(), "track-1")
	require.NoError(t, err)
	assert.Equal(t, "track-1", track.ID)
	assert.Equal(t, "Night Drive", track.Title)
	require.NotNil(t, track.TokenID)
	assert.Equal(t, tokenID, *track.TokenID)
	assert.Equal(t, domain.PendingBuy, track.PendingRequest)
}

func TestTrack_NotFound(t *testing.T) {
	c, _ := stubBackend(t, `{"track":null}`)

	_, err := c.Track(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestTrack_UnknownPendingRequestMapsToNone(t *testing.T) {
	c, _ := stubBackend(t, `{"track":{"id":"track-1","title":"t","owner":"0xacc7","pendingRequest":"SOMETHING_NEW"}}`)

	track, err := c.Track(context.Background(), "track-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingNone, track.PendingRequest)
}

func TestListingItem(t *testing.T) {
	c, _ := stubBackend(t, `{"listingItem":{"trackId":"track-1","price":"1000000000000000000","priceToken":"0","acceptsNative":true,"acceptsToken":false,"seller":"0xacc7","active":true}}`)

	listing, err := c.ListingItem(context.Background(), "track-1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", listing.Price)
	assert.True(t, listing.AcceptsNative)
	assert.False(t, listing.AcceptsToken)
}

func TestListingItem_NotFound(t *testing.T) {
	c, _ := stubBackend(t, `{"listingItem":null}`)

	_, err := c.ListingItem(context.Background(), "track-1")
	require.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestOwnedTracks(t *testing.T) {
	c, _ := stubBackend(t, `{"ownedTracks":[{"id":"t1","title":"a","owner":"0xacc7","pendingRequest":"NONE"},{"id":"t2","title":"b","owner":"0xacc7","pendingRequest":"MINT"}]}`)

	tracks, err := c.OwnedTracks(context.Background(), "0xacc7")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, domain.PendingNone, tracks[0].PendingRequest)
	assert.Equal(t, domain.PendingMint, tracks[1].PendingRequest)
}

func TestUpdateDefaultWallet(t *testing.T) {
	var got gqlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"data":{"updateDefaultWallet":{"account":"0xacc7"}}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{GraphQLURL: srv.URL, RequestTimeout: 5 * time.Second}, nil)
	require.NoError(t, c.UpdateDefaultWallet(context.Background(), "0xacc7", domain.ProviderCustodial))

	assert.Equal(t, "0xacc7", got.Variables["account"])
	assert.Equal(t, "custodial", got.Variables["wallet"])
}

func TestGraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"backend unavailable"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{GraphQLURL: srv.URL, RequestTimeout: 5 * time.Second}, nil)
	_, err := c.Track(context.Background(), "track-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}
