package domain

import "errors"

var (
	// ErrTradeNotFound is returned by repositories if no trade matches the id.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTradeAlreadyExists is returned when adding a trade with a known id.
	ErrTradeAlreadyExists = errors.New("trade already exists")
	// ErrTradeAlreadyFailed is returned when moving a failed trade forward.
	ErrTradeAlreadyFailed = errors.New("trade has already failed")
	// ErrTradeAlreadyCompleted ...
	ErrTradeAlreadyCompleted = errors.New("trade is already completed")
	// ErrInvalidPhaseTransition is returned for regressions or skipped phases.
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	// ErrDisputeAlreadyClosed ...
	ErrDisputeAlreadyClosed = errors.New("dispute is already closed")
	// ErrNoOpenDispute ...
	ErrNoOpenDispute = errors.New("trade has no open dispute")

	// ErrPeerFieldAlreadySet is returned when overwriting a set-once field of
	// a party with a different value.
	ErrPeerFieldAlreadySet = errors.New("field is already set with a different value")
	// ErrPeerFieldEmpty ...
	ErrPeerFieldEmpty = errors.New("field must not be empty")
	// ErrMissingInputs ...
	ErrMissingInputs = errors.New("missing inputs")

	ErrOfferMissingID         = errors.New("offer id must not be empty")
	ErrOfferMissingMaker      = errors.New("offer must specify maker address and pubkey")
	ErrSwapOfferMustSell      = errors.New("swap offers must be sell offers")
	ErrContractInvalidAmount  = errors.New("contract amount must be greater than zero")
	ErrContractMissingAsset   = errors.New("contract assets are missing or invalid")
	ErrContractInvalidFeeRate = errors.New("contract fee rate must be greater than zero")
	ErrContractInvalidDeposit = errors.New("contract security deposits must be greater than zero")
	ErrContractMissingAddress = errors.New("contract must specify fee and refund addresses")

	// ErrNullMessage ...
	ErrNullMessage = errors.New("message must not be null")
	// ErrUnknownMessageType is returned when decoding an unknown envelope.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMalformedMessage ...
	ErrMalformedMessage = errors.New("malformed message")
)
