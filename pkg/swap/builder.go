package swap

import (
	"bytes"
	"fmt"

	"github.com/vulpemventures/go-elements/transaction"
)

const (
	defaultSequence  = 0xffffffff
	lockTimeSequence = 0xfffffffe
	txVersion        = 2
)

// Input is an output of a previous transaction spent by one of the parties.
type Input struct {
	TxID   string
	Index  uint32
	Asset  string
	Value  uint64
	Script []byte
}

// Key returns the outpoint of the input.
func (i Input) Key() string {
	return fmt.Sprintf("%s:%d", i.TxID, i.Index)
}

// Output is an unconfidential output of the shared transaction.
type Output struct {
	Asset  string
	Value  uint64
	Script []byte
}

// Leg is what a single party puts into a shared transaction: the inputs it
// owns and the outputs it receives (payout, change).
type Leg struct {
	Inputs  []Input
	Outputs []Output
}

// BuildOpts is the struct given to Build
type BuildOpts struct {
	// PolicyAsset is the asset of the fee output.
	PolicyAsset string
	// SharedOutputs are owned by both parties, like the escrow deposit.
	SharedOutputs []Output
	Initiator     Leg
	Counterparty  Leg
	// LockTime, if defined, is set on the tx and makes all inputs non-final.
	LockTime uint32
}

func (o BuildOpts) validate() error {
	if _, err := AssetToBytes(o.PolicyAsset); err != nil {
		return err
	}
	numIns := len(o.Initiator.Inputs) + len(o.Counterparty.Inputs)
	if numIns <= 0 {
		return ErrMissingInputs
	}

	seen := make(map[string]struct{}, numIns)
	for _, in := range o.inputs() {
		if _, ok := seen[in.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatedInput, in.Key())
		}
		seen[in.Key()] = struct{}{}
		if _, err := TxIDToBytes(in.TxID); err != nil {
			return err
		}
		if _, err := AssetToBytes(in.Asset); err != nil {
			return err
		}
	}

	for _, out := range o.outputs() {
		if _, err := AssetToBytes(out.Asset); err != nil {
			return err
		}
		if out.Value <= 0 {
			return ErrZeroOutputAmount
		}
		if len(out.Script) <= 0 {
			return ErrMissingOutputScript
		}
	}
	return nil
}

func (o BuildOpts) inputs() []Input {
	ins := make([]Input, 0, len(o.Initiator.Inputs)+len(o.Counterparty.Inputs))
	ins = append(ins, o.Initiator.Inputs...)
	return append(ins, o.Counterparty.Inputs...)
}

func (o BuildOpts) outputs() []Output {
	outs := make([]Output, 0, len(o.SharedOutputs)+
		len(o.Initiator.Outputs)+len(o.Counterparty.Outputs)+1)
	outs = append(outs, o.SharedOutputs...)
	outs = append(outs, o.Initiator.Outputs...)
	return append(outs, o.Counterparty.Outputs...)
}

// Build deterministically builds the unsigned transaction. Given the same
// options, both parties obtain the very same bytes.
//
// Inputs are ordered initiator's first, then counterparty's, each in the
// given order. Outputs are ordered shared ones first, then initiator's,
// then counterparty's, and the explicit fee output is always the last one.
// The fee is what is left of the policy asset, while every other asset must
// be exactly balanced.
func Build(opts BuildOpts) (*transaction.Transaction, uint64, error) {
	if err := opts.validate(); err != nil {
		return nil, 0, err
	}

	fee, err := checkBalance(opts)
	if err != nil {
		return nil, 0, err
	}

	sequence := uint32(defaultSequence)
	if opts.LockTime > 0 {
		sequence = lockTimeSequence
	}

	tx := transaction.NewTx(txVersion)
	tx.Locktime = opts.LockTime
	for _, in := range opts.inputs() {
		hash, _ := TxIDToBytes(in.TxID)
		txIn := transaction.NewTxInput(hash, in.Index)
		txIn.Sequence = sequence
		tx.AddInput(txIn)
	}

	outs := append(opts.outputs(), Output{Asset: opts.PolicyAsset, Value: fee})
	for _, out := range outs {
		asset, _ := AssetToBytes(out.Asset)
		value, err := ValueToBytes(out.Value)
		if err != nil {
			return nil, 0, err
		}
		tx.AddOutput(transaction.NewTxOutput(asset, value, out.Script))
	}

	return tx, fee, nil
}

func checkBalance(opts BuildOpts) (uint64, error) {
	balance := make(map[string]int64)
	for _, in := range opts.inputs() {
		balance[in.Asset] += int64(in.Value)
	}
	for _, out := range opts.outputs() {
		balance[out.Asset] -= int64(out.Value)
	}

	for asset, residual := range balance {
		if asset == opts.PolicyAsset {
			if residual < 0 {
				return 0, fmt.Errorf(
					"%w: missing %d of policy asset", ErrUnbalancedTx, -residual,
				)
			}
			continue
		}
		if residual != 0 {
			return 0, fmt.Errorf(
				"%w: residual %d of asset %s", ErrUnbalancedTx, residual, asset,
			)
		}
	}
	return uint64(balance[opts.PolicyAsset]), nil
}

// StripWitness returns the serialization of the given transaction without
// any input witness, that is the part both parties must agree upon.
func StripWitness(txHex string) ([]byte, error) {
	tx, err := DecodeTx(txHex)
	if err != nil {
		return nil, err
	}
	for _, in := range tx.Inputs {
		in.Witness = nil
		in.PeginWitness = nil
	}
	// A decoded signed tx keeps the segwit flag even without witnesses.
	tx.Flag = 0
	return tx.Serialize()
}

// CompareTx checks, byte by byte, that a transaction received from the
// counterparty is exactly the expected one, regardless of the signatures
// added to it.
func CompareTx(expectedHex, receivedHex string) error {
	expected, err := StripWitness(expectedHex)
	if err != nil {
		return err
	}
	received, err := StripWitness(receivedHex)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected, received) {
		return ErrTxMismatch
	}
	return nil
}

// InputIndex returns the index of the given outpoint in tx, or -1.
func InputIndex(tx *transaction.Transaction, txid string, index uint32) int {
	for i, in := range tx.Inputs {
		if in.Index == index && TxIDFromBytes(in.Hash) == txid {
			return i
		}
	}
	return -1
}
