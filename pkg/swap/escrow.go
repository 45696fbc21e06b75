package swap

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

// EscrowScript is the 2-of-2 multisig locking the deposits of an escrow
// trade.
type EscrowScript struct {
	// WitnessScript is OP_2 <pubkey> <pubkey> OP_2 OP_CHECKMULTISIG, with keys
	// sorted lexicographically.
	WitnessScript []byte
	// Script is the P2WSH output script.
	Script  []byte
	PubKeys [2][]byte
}

// NewEscrowScript returns the escrow script for the given pubkeys. The order
// of the keys does not matter.
func NewEscrowScript(pubkeyA, pubkeyB []byte) (*EscrowScript, error) {
	for _, key := range [][]byte{pubkeyA, pubkeyB} {
		if len(key) != 33 {
			return nil, ErrInvalidPubKey
		}
		if _, err := btcec.ParsePubKey(key); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPubKey, err)
		}
	}
	if bytes.Equal(pubkeyA, pubkeyB) {
		return nil, ErrSamePubKeys
	}

	keys := [2][]byte{pubkeyA, pubkeyB}
	if bytes.Compare(keys[0], keys[1]) > 0 {
		keys[0], keys[1] = keys[1], keys[0]
	}

	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(keys[0]).
		AddData(keys[1]).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(witnessScript)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash[:]).
		Script()
	if err != nil {
		return nil, err
	}

	return &EscrowScript{witnessScript, script, keys}, nil
}

// Sign returns the signature of the given key for the escrow input of tx.
func (e *EscrowScript) Sign(
	tx *transaction.Transaction, inIndex int, key *btcec.PrivateKey,
	value uint64,
) ([]byte, error) {
	return wallet.SignInput(wallet.SignInputOpts{
		Tx:         tx,
		InIndex:    inIndex,
		PrivateKey: key,
		ScriptCode: e.WitnessScript,
		Value:      value,
	})
}

// Verify checks the signature of one of the escrow keys for the escrow input
// of tx.
func (e *EscrowScript) Verify(
	tx *transaction.Transaction, inIndex int, value uint64, pubkey, sig []byte,
) error {
	if !bytes.Equal(pubkey, e.PubKeys[0]) && !bytes.Equal(pubkey, e.PubKeys[1]) {
		return fmt.Errorf("%w: key is not part of the escrow", ErrInvalidPubKey)
	}
	return wallet.VerifyInputSignature(
		tx, inIndex, e.WitnessScript, value, pubkey, sig,
	)
}

// Finalize sets the witness of the escrow input of tx given the signatures
// of both keys.
func (e *EscrowScript) Finalize(
	tx *transaction.Transaction, inIndex int, sigs map[string][]byte,
) error {
	if inIndex < 0 || inIndex >= len(tx.Inputs) {
		return wallet.ErrInvalidInputIndex
	}
	witness := [][]byte{nil}
	for _, key := range e.PubKeys {
		sig, ok := sigs[string(key)]
		if !ok || len(sig) <= 0 {
			return ErrMissingSignature
		}
		witness = append(witness, sig)
	}
	witness = append(witness, e.WitnessScript)
	tx.Inputs[inIndex].Witness = witness
	return nil
}

// DepositOpts is the struct given to BuildDepositTx
type DepositOpts struct {
	PolicyAsset  string
	Escrow       *EscrowScript
	EscrowAmount uint64
	// Taker is the initiator of the deposit tx, its leg goes first.
	Taker Leg
	Maker Leg
}

// BuildDepositTx returns the tx funding the escrow output, always at index 0.
func BuildDepositTx(opts DepositOpts) (*transaction.Transaction, uint64, error) {
	if opts.Escrow == nil {
		return nil, 0, ErrMissingEscrowScript
	}
	return Build(BuildOpts{
		PolicyAsset: opts.PolicyAsset,
		SharedOutputs: []Output{{
			Asset:  opts.PolicyAsset,
			Value:  opts.EscrowAmount,
			Script: opts.Escrow.Script,
		}},
		Initiator:    opts.Taker,
		Counterparty: opts.Maker,
	})
}

// PayoutOpts is the struct given to BuildPayoutTx
type PayoutOpts struct {
	PolicyAsset  string
	DepositTxID  string
	EscrowAmount uint64
	BuyerScript  []byte
	BuyerAmount  uint64
	SellerScript []byte
	SellerAmount uint64
	RefundScript []byte
	RefundAmount uint64
	LockTime     uint32
}

func (o PayoutOpts) spendEscrow(
	outs []Output, lockTime uint32,
) (*transaction.Transaction, uint64, error) {
	return Build(BuildOpts{
		PolicyAsset: o.PolicyAsset,
		Initiator: Leg{
			Inputs: []Input{{
				TxID:  o.DepositTxID,
				Index: 0,
				Asset: o.PolicyAsset,
				Value: o.EscrowAmount,
			}},
			Outputs: outs,
		},
		LockTime: lockTime,
	})
}

// BuildPayoutTx returns the tx spending the escrow output to the buyer
// first and the seller second.
func BuildPayoutTx(opts PayoutOpts) (*transaction.Transaction, uint64, error) {
	return opts.spendEscrow([]Output{
		{Asset: opts.PolicyAsset, Value: opts.BuyerAmount, Script: opts.BuyerScript},
		{Asset: opts.PolicyAsset, Value: opts.SellerAmount, Script: opts.SellerScript},
	}, 0)
}

// BuildDelayedPayoutTx returns the time-locked tx spending the whole escrow
// output to the refund address. It can be published only once LockTime
// is reached.
func BuildDelayedPayoutTx(opts PayoutOpts) (*transaction.Transaction, uint64, error) {
	if opts.LockTime <= 0 {
		return nil, 0, ErrMissingLockTime
	}
	return opts.spendEscrow([]Output{
		{Asset: opts.PolicyAsset, Value: opts.RefundAmount, Script: opts.RefundScript},
	}, opts.LockTime)
}

// SplitPayout returns the amounts paid to buyer and seller by the payout tx.
// The buyer gets the trade amount plus its deposit, the seller its deposit,
// and the fee is split evenly.
func SplitPayout(
	amount, buyerDeposit, sellerDeposit, fee uint64,
) (buyer, seller uint64, err error) {
	buyerFee := fee / 2
	sellerFee := fee - buyerFee
	if buyerDeposit+amount <= buyerFee || sellerDeposit <= sellerFee {
		return 0, 0, ErrInsufficientDeposit
	}
	return amount + buyerDeposit - buyerFee, sellerDeposit - sellerFee, nil
}
