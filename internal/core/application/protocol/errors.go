package protocol

import (
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

var (
	// ErrUnexpectedMessage is returned when a message or a local event is not
	// expected in the current phase, or for the local party's role.
	ErrUnexpectedMessage = errors.New("message not expected in current trade phase")
	// ErrTradeIDMismatch ...
	ErrTradeIDMismatch = errors.New("message does not belong to the trade")
	// ErrInvalidSender is returned if the key a message is signed with is not
	// the one of the trade peer.
	ErrInvalidSender = errors.New("message sender pubkey does not match the trade peer's one")
	// ErrTradeClosed ...
	ErrTradeClosed = errors.New("trade is closed")
	// ErrNotDelivered ...
	ErrNotDelivered = errors.New("message was not delivered")
	// ErrContractMismatch is returned when the terms of a message differ from
	// those of the trade's contract.
	ErrContractMismatch = errors.New("terms do not match the contract")
	// ErrInputNotSpendable ...
	ErrInputNotSpendable = errors.New("peer input is not spendable")
	// ErrInvalidAccountAgeWitness ...
	ErrInvalidAccountAgeWitness = errors.New("invalid account age witness")
	// ErrRestrictionsNotMet ...
	ErrRestrictionsNotMet = errors.New("security deposit is below the minimum")
	// ErrInvalidLockTime ...
	ErrInvalidLockTime = errors.New("delayed payout lock time is out of range")
	// ErrQuoteAssetNotPolicy ...
	ErrQuoteAssetNotPolicy = errors.New("swap quote asset must be the network policy asset")
	// ErrFeeTxNotPublished ...
	ErrFeeTxNotPublished = errors.New("peer trade fee tx is not published")
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New("wallet inputs do not cover the required amount")
	// ErrTxNotPublished is returned if a broadcast fails. The tx stays
	// recorded, so that resuming the trade broadcasts it again.
	ErrTxNotPublished = errors.New("transaction was rejected by the network")
	// ErrMissingEscrowKeys ...
	ErrMissingEscrowKeys = errors.New("escrow keys of both parties must be known")
	// ErrMissingOffer ...
	ErrMissingOffer = errors.New("offer not found")
	// ErrNothingToResume is returned when resuming a trade that was not
	// interrupted.
	ErrNothingToResume = errors.New("trade has no interrupted step to resume")
)

// deliveryError keeps track of the type of the message that could not be
// delivered, so that its delivery state can be updated.
type deliveryError struct {
	msgType domain.MessageType
	cause   error
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNotDelivered, e.msgType, e.cause)
}

func (e *deliveryError) Unwrap() error {
	return ErrNotDelivered
}

// isUnrecoverable returns whether the error proves the peer misbehaved, in
// which case retrying the same interaction makes no sense. A failed
// broadcast is not: the same tx can be published later.
func isUnrecoverable(err error) bool {
	return errors.Is(err, swap.ErrTxMismatch) ||
		errors.Is(err, wallet.ErrInvalidSignature) ||
		errors.Is(err, wallet.ErrInvalidWitness) ||
		errors.Is(err, ErrInvalidAccountAgeWitness)
}
