package command

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
)

// Target names the contract a command calls into.
type Target string

const (
	TargetMarketplace Target = "marketplace"
	TargetAuction     Target = "auction"
	TargetEditions    Target = "editions"
	TargetToken       Target = "token"
	TargetMerkleDrop  Target = "merkledrop"
	// TargetNative is a plain value transfer with no calldata.
	TargetNative Target = "native"
)

// AddressBook holds the deployed contract addresses commands target.
type AddressBook struct {
	Marketplace common.Address
	Auction     common.Address
	Editions    common.Address
	Token       common.Address
	MerkleDrop  common.Address
}

// Params carries the per-action arguments supplied by the caller.
// Only the fields an action's builder reads need to be set.
type Params struct {
	From           common.Address
	Recipient      common.Address
	TokenID        *big.Int
	TokenIDs       []*big.Int
	EditionID      *big.Int
	Quantity       *big.Int
	Amount         *big.Int // native price, bid or transfer value in wei
	TokenAmount    *big.Int // OGUN-denominated price or transfer value
	PaymentInToken bool     // payment settles in OGUN, no native value attached
	AcceptsNative  bool
	AcceptsToken   bool
	URI            string
	RoyaltyBPS     *big.Int
	StartTime      *big.Int
	EndTime        *big.Int
	ClaimIndex     *big.Int
	ClaimProof     [][32]byte
}

// ArgsFunc builds the contract call arguments for an action.
type ArgsFunc func(p Params, book AddressBook) ([]interface{}, error)

// Spec is the data-driven descriptor of one on-chain action: which
// contract it calls, which method, how to build the arguments, and
// whether the call may attach native value.
type Spec struct {
	Action          domain.ActionKind
	Target          Target
	Method          string
	UsesNativeValue bool
	Args            ArgsFunc
}

// Request returns the pending-request marker this action raises.
func (s Spec) Request() domain.PendingRequest {
	return domain.PendingForAction(s.Action)
}

func requireBig(name string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

var specs = map[domain.ActionKind]Spec{
	domain.ActionPlaceBid: {
		Action:          domain.ActionPlaceBid,
		Target:          TargetAuction,
		Method:          "placeBid",
		UsesNativeValue: true,
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID, orZero(p.TokenAmount)}, nil
		},
	},
	domain.ActionBuyItem: {
		Action:          domain.ActionBuyItem,
		Target:          TargetMarketplace,
		Method:          "buyItem",
		UsesNativeValue: true,
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID}, nil
		},
	},
	domain.ActionListItem: {
		Action: domain.ActionListItem,
		Target: TargetMarketplace,
		Method: "listItem",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			if !p.AcceptsNative && !p.AcceptsToken {
				return nil, fmt.Errorf("listing must accept at least one currency")
			}
			return []interface{}{
				tokenID,
				orZero(p.Amount),
				orZero(p.TokenAmount),
				p.AcceptsNative,
				p.AcceptsToken,
			}, nil
		},
	},
	domain.ActionUpdateListing: {
		Action: domain.ActionUpdateListing,
		Target: TargetMarketplace,
		Method: "updateListing",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID, orZero(p.Amount), orZero(p.TokenAmount)}, nil
		},
	},
	domain.ActionCancelListing: {
		Action: domain.ActionCancelListing,
		Target: TargetMarketplace,
		Method: "cancelListing",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID}, nil
		},
	},
	domain.ActionCreateAuction: {
		Action: domain.ActionCreateAuction,
		Target: TargetAuction,
		Method: "createAuction",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			start, err := requireBig("startTime", p.StartTime)
			if err != nil {
				return nil, err
			}
			end, err := requireBig("endTime", p.EndTime)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID, orZero(p.Amount), start, end, p.PaymentInToken}, nil
		},
	},
	domain.ActionUpdateAuction: {
		Action: domain.ActionUpdateAuction,
		Target: TargetAuction,
		Method: "updateAuction",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			end, err := requireBig("endTime", p.EndTime)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID, orZero(p.Amount), end}, nil
		},
	},
	domain.ActionCancelAuction: {
		Action: domain.ActionCancelAuction,
		Target: TargetAuction,
		Method: "cancelAuction",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID}, nil
		},
	},
	domain.ActionResultAuction: {
		Action: domain.ActionResultAuction,
		Target: TargetAuction,
		Method: "resultAuction",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID}, nil
		},
	},
	domain.ActionMintTrack: {
		Action:          domain.ActionMintTrack,
		Target:          TargetEditions,
		Method:          "mintTrack",
		UsesNativeValue: true,
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			if p.URI == "" {
				return nil, fmt.Errorf("token URI is required")
			}
			return []interface{}{p.From, p.URI}, nil
		},
	},
	domain.ActionMintToEdition: {
		Action:          domain.ActionMintToEdition,
		Target:          TargetEditions,
		Method:          "mintToEdition",
		UsesNativeValue: true,
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			editionID, err := requireBig("editionId", p.EditionID)
			if err != nil {
				return nil, err
			}
			quantity, err := requireBig("quantity", p.Quantity)
			if err != nil {
				return nil, err
			}
			return []interface{}{editionID, p.From, quantity}, nil
		},
	},
	domain.ActionCreateEdition: {
		Action: domain.ActionCreateEdition,
		Target: TargetEditions,
		Method: "createEdition",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			quantity, err := requireBig("quantity", p.Quantity)
			if err != nil {
				return nil, err
			}
			if p.URI == "" {
				return nil, fmt.Errorf("token URI is required")
			}
			return []interface{}{quantity, p.URI, orZero(p.RoyaltyBPS)}, nil
		},
	},
	domain.ActionListEdition: {
		Action: domain.ActionListEdition,
		Target: TargetMarketplace,
		Method: "listEdition",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			editionID, err := requireBig("editionId", p.EditionID)
			if err != nil {
				return nil, err
			}
			return []interface{}{editionID, orZero(p.Amount), orZero(p.TokenAmount)}, nil
		},
	},
	domain.ActionCancelEditionListing: {
		Action: domain.ActionCancelEditionListing,
		Target: TargetMarketplace,
		Method: "cancelEditionListing",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			editionID, err := requireBig("editionId", p.EditionID)
			if err != nil {
				return nil, err
			}
			return []interface{}{editionID}, nil
		},
	},
	domain.ActionListBatch: {
		Action: domain.ActionListBatch,
		Target: TargetMarketplace,
		Method: "listBatch",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			if len(p.TokenIDs) == 0 {
				return nil, fmt.Errorf("tokenIds are required")
			}
			return []interface{}{p.TokenIDs, orZero(p.Amount), orZero(p.TokenAmount)}, nil
		},
	},
	domain.ActionCancelListingBatch: {
		Action: domain.ActionCancelListingBatch,
		Target: TargetMarketplace,
		Method: "cancelListingBatch",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			if len(p.TokenIDs) == 0 {
				return nil, fmt.Errorf("tokenIds are required")
			}
			return []interface{}{p.TokenIDs}, nil
		},
	},
	domain.ActionBurnTrack: {
		Action: domain.ActionBurnTrack,
		Target: TargetEditions,
		Method: "burn",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			return []interface{}{tokenID}, nil
		},
	},
	domain.ActionTransferTrack: {
		Action: domain.ActionTransferTrack,
		Target: TargetEditions,
		Method: "safeTransferFrom",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			tokenID, err := requireBig("tokenId", p.TokenID)
			if err != nil {
				return nil, err
			}
			if p.Recipient == (common.Address{}) {
				return nil, fmt.Errorf("recipient is required")
			}
			return []interface{}{p.From, p.Recipient, tokenID}, nil
		},
	},
	domain.ActionClaimAirdrop: {
		Action: domain.ActionClaimAirdrop,
		Target: TargetMerkleDrop,
		Method: "claim",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			index, err := requireBig("claimIndex", p.ClaimIndex)
			if err != nil {
				return nil, err
			}
			amount, err := requireBig("tokenAmount", p.TokenAmount)
			if err != nil {
				return nil, err
			}
			if len(p.ClaimProof) == 0 {
				return nil, fmt.Errorf("claim proof is required")
			}
			return []interface{}{index, p.From, amount, p.ClaimProof}, nil
		},
	},
	domain.ActionApproveMarketplace: {
		Action: domain.ActionApproveMarketplace,
		Target: TargetEditions,
		Method: "setApprovalForAll",
		Args: func(p Params, book AddressBook) ([]interface{}, error) {
			return []interface{}{book.Marketplace, true}, nil
		},
	},
	domain.ActionApproveAuction: {
		Action: domain.ActionApproveAuction,
		Target: TargetEditions,
		Method: "setApprovalForAll",
		Args: func(p Params, book AddressBook) ([]interface{}, error) {
			return []interface{}{book.Auction, true}, nil
		},
	},
	domain.ActionSendNative: {
		Action:          domain.ActionSendNative,
		Target:          TargetNative,
		UsesNativeValue: true,
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			if p.Recipient == (common.Address{}) {
				return nil, fmt.Errorf("recipient is required")
			}
			if _, err := requireBig("amount", p.Amount); err != nil {
				return nil, err
			}
			return nil, nil
		},
	},
	domain.ActionSendToken: {
		Action: domain.ActionSendToken,
		Target: TargetToken,
		Method: "transfer",
		Args: func(p Params, _ AddressBook) ([]interface{}, error) {
			if p.Recipient == (common.Address{}) {
				return nil, fmt.Errorf("recipient is required")
			}
			amount, err := requireBig("tokenAmount", p.TokenAmount)
			if err != nil {
				return nil, err
			}
			return []interface{}{p.Recipient, amount}, nil
		},
	},
}

// Lookup returns the descriptor for an action kind.
func Lookup(kind domain.ActionKind) (Spec, error) {
	spec, ok := specs[kind]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", domain.ErrUnknownAction, kind)
	}
	return spec, nil
}

// Actions returns every registered action kind.
func Actions() []domain.ActionKind {
	kinds := make([]domain.ActionKind, 0, len(specs))
	for kind := range specs {
		kinds = append(kinds, kind)
	}
	return kinds
}
