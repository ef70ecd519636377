package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProviderKind identifies a wallet provider. Resolution priority is fixed:
// walletconnect, then browser extension, then custodial.
type ProviderKind string

const (
	ProviderWalletConnect ProviderKind = "walletconnect"
	ProviderExtension     ProviderKind = "extension"
	ProviderCustodial     ProviderKind = "custodial"
)

// Priority returns the resolution rank of the provider kind; lower wins.
func (k ProviderKind) Priority() int {
	switch k {
	case ProviderWalletConnect:
		return 0
	case ProviderExtension:
		return 1
	case ProviderCustodial:
		return 2
	default:
		return 99
	}
}

// Valid reports whether the kind is one of the known providers.
func (k ProviderKind) Valid() bool {
	return k == ProviderWalletConnect || k == ProviderExtension || k == ProviderCustodial
}

// Wallet is the signing identity resolved for a transaction.
type Wallet struct {
	Address string       `json:"address"`
	Kind    ProviderKind `json:"kind"`
}

// Balances holds the native (POL) and OGUN token balances of a wallet.
type Balances struct {
	Native *big.Int `json:"native"`
	Token  *big.Int `json:"token"`
}

// ActionKind discriminates on-chain marketplace actions.
type ActionKind string

const (
	ActionPlaceBid             ActionKind = "place_bid"
	ActionBuyItem              ActionKind = "buy_item"
	ActionListItem             ActionKind = "list_item"
	ActionUpdateListing        ActionKind = "update_listing"
	ActionCancelListing        ActionKind = "cancel_listing"
	ActionCreateAuction        ActionKind = "create_auction"
	ActionUpdateAuction        ActionKind = "update_auction"
	ActionCancelAuction        ActionKind = "cancel_auction"
	ActionResultAuction        ActionKind = "result_auction"
	ActionMintTrack            ActionKind = "mint_track"
	ActionMintToEdition        ActionKind = "mint_to_edition"
	ActionCreateEdition        ActionKind = "create_edition"
	ActionListEdition          ActionKind = "list_edition"
	ActionCancelEditionListing ActionKind = "cancel_edition_listing"
	ActionListBatch            ActionKind = "list_batch"
	ActionCancelListingBatch   ActionKind = "cancel_listing_batch"
	ActionBurnTrack            ActionKind = "burn_track"
	ActionTransferTrack        ActionKind = "transfer_track"
	ActionClaimAirdrop         ActionKind = "claim_airdrop"
	ActionApproveMarketplace   ActionKind = "approve_marketplace"
	ActionApproveAuction       ActionKind = "approve_auction"
	ActionSendNative           ActionKind = "send_native"
	ActionSendToken            ActionKind = "send_token"
)

// PendingRequest is the server-side in-flight marker for a track. The
// reconciler keeps refetching while it is not PendingNone.
type PendingRequest int

const (
	PendingNone PendingRequest = iota
	PendingMint
	PendingBuy
	PendingList
	PendingUpdateListing
	PendingCancelListing
	PendingPlaceBid
	PendingCompleteAuction
	PendingCancelAuction
)

var pendingNames = map[PendingRequest]string{
	PendingNone:            "NONE",
	PendingMint:            "MINT",
	PendingBuy:             "BUY",
	PendingList:            "LIST",
	PendingUpdateListing:   "UPDATE_LISTING",
	PendingCancelListing:   "CANCEL_LISTING",
	PendingPlaceBid:        "PLACE_BID",
	PendingCompleteAuction: "COMPLETE_AUCTION",
	PendingCancelAuction:   "CANCEL_AUCTION",
}

var pendingLabels = map[PendingRequest]string{
	PendingNone:            "",
	PendingMint:            "Minting",
	PendingBuy:             "Purchasing",
	PendingList:            "Listing",
	PendingUpdateListing:   "Updating listing",
	PendingCancelListing:   "Cancelling listing",
	PendingPlaceBid:        "Placing bid",
	PendingCompleteAuction: "Completing auction",
	PendingCancelAuction:   "Cancelling auction",
}

func (p PendingRequest) String() string {
	if name, ok := pendingNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Label returns the human-readable progress label shown while the request
// is in flight. PendingNone has no label.
func (p PendingRequest) Label() string {
	return pendingLabels[p]
}

// ParsePendingRequest maps a wire name back to a PendingRequest.
// Unknown names map to PendingNone.
func ParsePendingRequest(name string) PendingRequest {
	for req, n := range pendingNames {
		if n == name {
			return req
		}
	}
	return PendingNone
}

// pendingByAction links each lifecycle-tracked action to its marker.
// Actions absent here (approvals, transfers, reads) do not flip the flag.
var pendingByAction = map[ActionKind]PendingRequest{
	ActionMintTrack:            PendingMint,
	ActionMintToEdition:        PendingMint,
	ActionBuyItem:              PendingBuy,
	ActionListItem:             PendingList,
	ActionListEdition:          PendingList,
	ActionListBatch:            PendingList,
	ActionUpdateListing:        PendingUpdateListing,
	ActionCancelListing:        PendingCancelListing,
	ActionCancelEditionListing: PendingCancelListing,
	ActionCancelListingBatch:   PendingCancelListing,
	ActionPlaceBid:             PendingPlaceBid,
	ActionResultAuction:        PendingCompleteAuction,
	ActionCancelAuction:        PendingCancelAuction,
}

// PendingForAction returns the request marker raised by an action.
func PendingForAction(kind ActionKind) PendingRequest {
	return pendingByAction[kind]
}

// ActionStatus tracks a journaled action through its lifecycle.
type ActionStatus string

const (
	ActionSubmitted ActionStatus = "submitted"
	ActionMined     ActionStatus = "mined"
	ActionReverted  ActionStatus = "reverted"
	ActionFailed    ActionStatus = "failed"
)

// PendingAction is the journal record of a submitted command.
type PendingAction struct {
	ID        string         `json:"id"`
	Account   string         `json:"account"`
	TrackID   string         `json:"trackId"`
	Action    ActionKind     `json:"action"`
	Request   PendingRequest `json:"request"`
	Wallet    ProviderKind   `json:"wallet"`
	TxHash    *string        `json:"txHash,omitempty"`
	Status    ActionStatus   `json:"status"`
	GasPrice  string         `json:"gasPrice"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TrackSnapshot is the backend's view of a track.
type TrackSnapshot struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	TokenID        *int64         `json:"tokenId,omitempty"`
	Owner          string         `json:"owner"`
	PendingRequest PendingRequest `json:"pendingRequest"`
}

// ListingSnapshot is the backend's view of a track's marketplace listing.
type ListingSnapshot struct {
	TrackID       string `json:"trackId"`
	Price         string `json:"price"`      // native, wei as decimal string
	PriceToken    string `json:"priceToken"` // OGUN, wei as decimal string
	AcceptsNative bool   `json:"acceptsNative"`
	AcceptsToken  bool   `json:"acceptsToken"`
	Seller        string `json:"seller"`
	Active        bool   `json:"active"`
}

// CallRequest is a prepared contract call handed to a provider for
// signing and submission. Value is nil for token-denominated payments.
type CallRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Provider is a connected wallet capable of signing and submitting
// transactions on behalf of its address.
type Provider interface {
	Kind() ProviderKind
	Address() string
	Connected() bool
	SignAndSend(ctx context.Context, req CallRequest) (common.Hash, error)
	Balances(ctx context.Context) (Balances, error)
	Close() error
}

// GasOracle supplies the current network gas price.
type GasOracle interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// ReceiptWaiter blocks until a submitted transaction is mined.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// BackendClient issues catalog queries and mutations against the
// marketplace backend.
type BackendClient interface {
	Track(ctx context.Context, trackID string) (*TrackSnapshot, error)
	ListingItem(ctx context.Context, trackID string) (*ListingSnapshot, error)
	OwnedTracks(ctx context.Context, account string) ([]TrackSnapshot, error)
	UpdateDefaultWallet(ctx context.Context, account string, kind ProviderKind) error
}

// ActionRepository journals pending actions.
type ActionRepository interface {
	Create(ctx context.Context, action *PendingAction) error
	UpdateTxHash(ctx context.Context, id string, txHash string, gasPrice string) error
	UpdateStatus(ctx context.Context, id string, status ActionStatus, errMsg *string) error
	GetByID(ctx context.Context, id string) (*PendingAction, error)
	ListInFlight(ctx context.Context, account string) ([]*PendingAction, error)
}

// StatusCache mirrors per-track pending markers for fast reads.
type StatusCache interface {
	SetPending(ctx context.Context, trackID string, req PendingRequest) error
	GetPending(ctx context.Context, trackID string) (PendingRequest, bool, error)
	ClearPending(ctx context.Context, trackID string) error
}

// EventPublisher emits settlement events after a command finalizes.
type EventPublisher interface {
	PublishSettled(ctx context.Context, action *PendingAction, receipt *types.Receipt) error
	PublishFailed(ctx context.Context, action *PendingAction, reason string) error
}
