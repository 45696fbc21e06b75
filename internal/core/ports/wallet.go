package ports

import (
	"context"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/transaction"
)

// InputPurpose tags the inputs locked by the wallet for a trade, so that the
// same trade can lock different sets of inputs for different transactions.
type InputPurpose string

const (
	PurposeTradeFee InputPurpose = "TRADE_FEE"
	PurposeDeposit  InputPurpose = "DEPOSIT"
	PurposeSwap     InputPurpose = "SWAP"
)

// AddressPurpose tells what a trade address derived by the wallet is used for.
type AddressPurpose string

const (
	AddressChange    AddressPurpose = "CHANGE"
	AddressFeeChange AddressPurpose = "FEE_CHANGE"
	AddressPayout    AddressPurpose = "PAYOUT"
)

// Confidence is what the wallet knows about a transaction.
type Confidence int

const (
	ConfidenceUnknown Confidence = iota
	// ConfidencePending means the tx is in mempool.
	ConfidencePending
	// ConfidenceBuilding means the tx is included in a block.
	ConfidenceBuilding
	// ConfidenceDead means the tx has been double spent or rejected.
	ConfidenceDead
)

func (c Confidence) String() string {
	switch c {
	case ConfidencePending:
		return "PENDING"
	case ConfidenceBuilding:
		return "BUILDING"
	case ConfidenceDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// IsPublished returns whether the tx was accepted by the network.
func (c Confidence) IsPublished() bool {
	return c == ConfidencePending || c == ConfidenceBuilding
}

// ConfidenceHandler is invoked every time the confidence of a watched tx
// changes.
type ConfidenceHandler func(txid string, confidence Confidence)

// BroadcastListener receives the outcome of a broadcast. Exactly one of the
// callbacks is invoked, from any goroutine.
type BroadcastListener struct {
	OnSuccess func(txid string)
	OnFault   func(err error)
}

// Wallet is the key management and ledger access collaborator of the engine.
// The engine never holds private keys: it asks the wallet to sign the inputs
// it owns.
type Wallet interface {
	// Network returns the params of the network the wallet is bound to.
	Network() *network.Network
	// SelectInputs selects and locks inputs of the given asset covering at
	// least amount. Calling it again for the same purpose and trade releases
	// the previous selection unless it still covers the amount, in which case
	// the same inputs are returned.
	SelectInputs(
		ctx context.Context, purpose InputPurpose, tradeID, asset string,
		amount uint64,
	) ([]domain.Input, error)
	// UnlockInputs releases all the inputs locked for the given trade.
	UnlockInputs(ctx context.Context, tradeID string) error
	// DeriveAddress returns the address for the given trade and purpose. The
	// derivation is deterministic: the same address is returned for the same
	// arguments, even after a restart.
	DeriveAddress(
		ctx context.Context, purpose AddressPurpose, tradeID string,
	) (string, error)
	// EscrowKey returns the compressed public key the wallet uses for the
	// escrow multisig of the given trade.
	EscrowKey(ctx context.Context, tradeID string) ([]byte, error)
	// SignInputs signs the inputs of the given tx that match the given list,
	// and returns the tx in hex format.
	SignInputs(
		ctx context.Context, txHex string, inputs []domain.Input,
	) (string, error)
	// SignEscrowInput returns the signature of the trade's escrow key for the
	// given multisig input.
	SignEscrowInput(
		ctx context.Context, tradeID, txHex string, inIndex int,
		witnessScript []byte, value uint64,
	) ([]byte, error)
	// SignMessage signs sha256(msg) with the trade's escrow key.
	SignMessage(ctx context.Context, tradeID string, msg []byte) ([]byte, error)
	// Broadcast publishes the tx and reports the outcome to the listener.
	Broadcast(ctx context.Context, txHex string, listener BroadcastListener)
	// Confidence returns what is currently known about the given tx.
	Confidence(ctx context.Context, txid string) (Confidence, error)
	// SubscribeConfidence registers a handler notified at every change of
	// confidence of the given tx. The returned func cancels the subscription.
	SubscribeConfidence(txid string, handler ConfidenceHandler) func()
	// ParseTx parses a tx in hex format.
	ParseTx(txHex string) (*transaction.Transaction, error)
	// IsSpendable returns whether the given output exists, is unspent, and
	// matches the declared asset, value and script.
	IsSpendable(ctx context.Context, input domain.Input) (bool, error)
	// BlockHeight returns the current height of the chain.
	BlockHeight(ctx context.Context) (uint32, error)
	// RecoverySecret returns the secret material backups are encrypted with.
	RecoverySecret(ctx context.Context) ([]byte, error)
}

// WalletAddress is an address derived by the local wallet. Funding addresses
// receive the coins spent by trades, the others belong to a trade.
type WalletAddress struct {
	Address        string
	Script         string
	DerivationPath string
	TradeID        string
	Purpose        string
	Funding        bool
}

// VaultRepository keeps track of the addresses derived by the local wallet,
// so that their coins can be found and spent after a restart.
type VaultRepository interface {
	// AddAddress stores the address. Adding an existing address is a no-op.
	AddAddress(ctx context.Context, addr WalletAddress) error
	GetAddressByScript(ctx context.Context, script string) (*WalletAddress, error)
	ListAddresses(ctx context.Context) ([]WalletAddress, error)
	CountFundingAddresses(ctx context.Context) (int, error)
}
