package explorer

import "errors"

var (
	// ErrTransactionNotFound is returned if the tx is unknown to the network,
	// neither in mempool nor in the blockchain.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInsufficientFunds is returned by coin selection if the given utxos
	// don't cover the target amount.
	ErrInsufficientFunds = errors.New("total utxo amount does not cover target amount")
)

// TransactionStatus tells whether a tx is confirmed and, if so, in which
// block.
type TransactionStatus interface {
	Confirmed() bool
	BlockHash() string
	BlockHeight() int
	BlockTime() int
}

// UtxoStatus tells whether an output is spent and, if so, by which input.
type UtxoStatus interface {
	Spent() bool
	Hash() string
	Index() int
}

// Service is representation of an explorer that allows to fetch data from the
// blockchain and to broadcast transactions.
type Service interface {
	// GetUnspents fetches the utxos of the given address.
	GetUnspents(addr string) ([]Utxo, error)
	// GetUnspentsForAddresses fetches the utxos of the given list of addresses.
	GetUnspentsForAddresses(addresses []string) ([]Utxo, error)
	// GetUnspentStatus returns whether the given output is spent.
	GetUnspentStatus(txid string, index uint32) (UtxoStatus, error)
	// GetTransactionHex fetches the transaction in hex format given its hash.
	GetTransactionHex(txid string) (string, error)
	// GetTransactionStatus returns the status of the tx identified by its
	// hash, or ErrTransactionNotFound.
	GetTransactionStatus(txid string) (TransactionStatus, error)
	// BroadcastTransaction attempts to add the given tx in hex format to the
	// mempool and returns its tx hash.
	BroadcastTransaction(txhex string) (string, error)
	// GetBlockHeight returns the the number of block of the blockchain.
	GetBlockHeight() (int, error)
}
