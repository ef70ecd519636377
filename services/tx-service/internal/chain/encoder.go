package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
)

// Encoder packs calldata against the deployed contract ABIs and resolves
// contract addresses from the configured address book.
type Encoder struct {
	abis map[command.Target]abi.ABI
	book command.AddressBook
}

// NewEncoder parses the contract ABIs once and binds them to the address
// book loaded from configuration.
func NewEncoder(book command.AddressBook) (*Encoder, error) {
	sources := map[command.Target]string{
		command.TargetMarketplace: marketplaceABI,
		command.TargetAuction:     auctionABI,
		command.TargetEditions:    editionsABI,
		command.TargetToken:       tokenABI,
		command.TargetMerkleDrop:  merkleDropABI,
	}

	abis := make(map[command.Target]abi.ABI, len(sources))
	for target, src := range sources {
		parsed, err := abi.JSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", target, err)
		}
		abis[target] = parsed
	}

	return &Encoder{abis: abis, book: book}, nil
}

// Pack encodes a method call against the target contract's ABI.
func (e *Encoder) Pack(target command.Target, method string, args ...interface{}) ([]byte, error) {
	parsed, ok := e.abis[target]
	if !ok {
		return nil, fmt.Errorf("no abi registered for target %s", target)
	}
	if _, exists := parsed.Methods[method]; !exists {
		return nil, fmt.Errorf("method %s not found in %s abi", method, target)
	}

	packed, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s calldata: %w", target, method, err)
	}
	return packed, nil
}

// Address resolves the deployed address of a target contract.
func (e *Encoder) Address(target command.Target) (common.Address, error) {
	var addr common.Address
	switch target {
	case command.TargetMarketplace:
		addr = e.book.Marketplace
	case command.TargetAuction:
		addr = e.book.Auction
	case command.TargetEditions:
		addr = e.book.Editions
	case command.TargetToken:
		addr = e.book.Token
	case command.TargetMerkleDrop:
		addr = e.book.MerkleDrop
	default:
		return common.Address{}, fmt.Errorf("no address registered for target %s", target)
	}

	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("target %s has no configured address", target)
	}
	return addr, nil
}
