package domain

import (
	"errors"
)

var (
	ErrNoWallet               = errors.New("no_wallet_connected")
	ErrAuthenticationRequired = errors.New("authentication_required")
	ErrActionInFlight         = errors.New("action_already_in_flight")
	ErrInvalidAddress         = errors.New("invalid_address")
	ErrUnknownAction          = errors.New("unknown_action")
	ErrTrackNotFound          = errors.New("track_not_found")
	ErrActionNotFound         = errors.New("action_not_found")
	ErrListingNotFound        = errors.New("listing_not_found")
	ErrProviderDisconnected   = errors.New("provider_disconnected")
)

// RevertMessage is surfaced when the chain rejects a mined transaction.
// The underlying revert reason is not trustworthy enough to show users.
const RevertMessage = "Transaction reverted by the blockchain, please check the transaction on your wallet activity page for more details"

// RevertError wraps an on-chain revert. Any submission error carrying
// receipt metadata is rewrapped into this type; all other errors pass
// through untouched.
type RevertError struct {
	TxHash string
	Cause  error
}

func (e *RevertError) Error() string {
	return RevertMessage
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// NewRevertError builds a RevertError for the given transaction.
func NewRevertError(txHash string, cause error) *RevertError {
	return &RevertError{TxHash: txHash, Cause: cause}
}

// IsRevert reports whether err is (or wraps) an on-chain revert.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// Receipted is implemented by errors that carry receipt metadata from the
// submission path. Such errors indicate the transaction reached the chain
// and was rejected there.
type Receipted interface {
	error
	ReceiptTxHash() string
}

// ClassifySubmitError applies the revert rewrap rule: errors carrying
// receipt metadata become a RevertError with the generic message; every
// other error is returned unchanged so callers can match on it.
func ClassifySubmitError(err error) error {
	if err == nil {
		return nil
	}
	var rc Receipted
	if errors.As(err, &rc) {
		return NewRevertError(rc.ReceiptTxHash(), err)
	}
	return err
}

// ErrCommandConsumed signals Execute was called on an already-run command.
var ErrCommandConsumed = errors.New("command_already_executed")
