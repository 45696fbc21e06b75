package swap

import "errors"

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrMissingInputs ...
	ErrMissingInputs = errors.New("transaction must have at least one input")
	// ErrDuplicatedInput ...
	ErrDuplicatedInput = errors.New("input is spent more than once")
	// ErrInvalidAsset ...
	ErrInvalidAsset = errors.New("asset must be a 32 byte array in hex format")
	// ErrInvalidTxID ...
	ErrInvalidTxID = errors.New("txid must be a 32 byte array in hex format")
	// ErrZeroOutputAmount ...
	ErrZeroOutputAmount = errors.New("output amount must not be zero")
	// ErrMissingOutputScript ...
	ErrMissingOutputScript = errors.New("output script must not be empty")
	// ErrUnbalancedTx is returned if, for any asset, the inputs do not cover
	// exactly the outputs. Only the policy asset may leave a positive residual,
	// that becomes the fee.
	ErrUnbalancedTx = errors.New("inputs and outputs amounts are not balanced")
	// ErrMalformedTx ...
	ErrMalformedTx = errors.New("transaction is not in a valid hex format")
	// ErrTxMismatch is returned when a transaction received from the
	// counterparty differs from the one built locally.
	ErrTxMismatch = errors.New("transaction does not match the expected one")

	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInputAmountMismatch is returned if the declared inputs do not cover
	// the amount required by the trade.
	ErrInputAmountMismatch = errors.New("input amount does not match required amount")
	// ErrInputAssetMismatch ...
	ErrInputAssetMismatch = errors.New("input asset does not match the expected one")
	// ErrAmountAboveExpected is returned if a declared change or payout is
	// greater than the locally computed one.
	ErrAmountAboveExpected = errors.New("declared amount is greater than the expected one")
	// ErrAmountBelowTolerance is returned if a declared change or payout is
	// lower than the locally computed one by more than the fee tolerance.
	ErrAmountBelowTolerance = errors.New("declared amount is lower than the expected one beyond tolerance")
	// ErrDustAmount ...
	ErrDustAmount = errors.New("amount is below the dust threshold")
	// ErrInsufficientDeposit ...
	ErrInsufficientDeposit = errors.New("security deposit does not cover the payout fee")

	// ErrInvalidPubKey ...
	ErrInvalidPubKey = errors.New("public key must be a 33 byte compressed key")
	// ErrSamePubKeys ...
	ErrSamePubKeys = errors.New("multisig public keys must be different")
	// ErrMissingEscrowScript ...
	ErrMissingEscrowScript = errors.New("missing escrow script")
	// ErrMissingLockTime ...
	ErrMissingLockTime = errors.New("delayed payout lock time must be defined")
	// ErrMissingSignature ...
	ErrMissingSignature = errors.New("missing multisig signature")
)
