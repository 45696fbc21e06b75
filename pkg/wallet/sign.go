package wallet

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/transaction"
)

// SignInputOpts is the struct given to SignInput method
type SignInputOpts struct {
	Tx         *transaction.Transaction
	InIndex    int
	PrivateKey *btcec.PrivateKey
	// ScriptCode is the script committed by the sighash: the P2PKH script of
	// the key for P2WPKH inputs, the witness script for P2WSH ones.
	ScriptCode []byte
	Value      uint64
}

func (o SignInputOpts) validate() error {
	if o.Tx == nil {
		return ErrNullTx
	}
	if o.InIndex < 0 || o.InIndex >= len(o.Tx.Inputs) {
		return ErrInvalidInputIndex
	}
	if o.PrivateKey == nil {
		return ErrNullPrivateKey
	}
	if len(o.ScriptCode) <= 0 {
		return ErrNullScriptCode
	}
	return nil
}

// SignInput produces (and verifies) a SIGHASH_ALL signature for a segwit v0
// input of the given transaction. The returned signature is DER encoded with
// the sighash type appended.
func SignInput(opts SignInputOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	hash, err := sighash(opts.Tx, opts.InIndex, opts.ScriptCode, opts.Value)
	if err != nil {
		return nil, err
	}

	sig := ecdsa.Sign(opts.PrivateKey, hash[:])
	if !sig.Verify(hash[:], opts.PrivateKey.PubKey()) {
		return nil, fmt.Errorf(
			"signature verification failed for input %d", opts.InIndex,
		)
	}
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

// SignP2WPKHInput signs the given P2WPKH input and sets its witness.
func SignP2WPKHInput(
	tx *transaction.Transaction, inIndex int, key *btcec.PrivateKey,
	value uint64,
) error {
	if key == nil {
		return ErrNullPrivateKey
	}
	p2wpkh := payment.FromPublicKey(key.PubKey(), &network.Liquid, nil)
	sig, err := SignInput(SignInputOpts{
		Tx:         tx,
		InIndex:    inIndex,
		PrivateKey: key,
		ScriptCode: p2wpkh.Script,
		Value:      value,
	})
	if err != nil {
		return err
	}
	tx.Inputs[inIndex].Witness = [][]byte{
		sig, key.PubKey().SerializeCompressed(),
	}
	return nil
}

// VerifyP2WPKHInput checks that the witness of the given input carries a
// valid signature by the key owning prevoutScript.
func VerifyP2WPKHInput(
	tx *transaction.Transaction, inIndex int, prevoutScript []byte,
	value uint64,
) error {
	if tx == nil {
		return ErrNullTx
	}
	if inIndex < 0 || inIndex >= len(tx.Inputs) {
		return ErrInvalidInputIndex
	}
	witness := tx.Inputs[inIndex].Witness
	if len(witness) != 2 {
		return fmt.Errorf("%w: input %d", ErrInvalidWitness, inIndex)
	}

	pubkey, err := btcec.ParsePubKey(witness[1])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPubKey, err)
	}
	p2wpkh := payment.FromPublicKey(pubkey, &network.Liquid, nil)
	if !bytes.Equal(p2wpkh.WitnessScript, prevoutScript) {
		return fmt.Errorf(
			"%w: input %d is not owned by the witness key", ErrInvalidWitness, inIndex,
		)
	}
	return VerifyInputSignature(
		tx, inIndex, p2wpkh.Script, value, witness[1], witness[0],
	)
}

// VerifyInputSignature checks a signature, with sighash type appended,
// against the given input.
func VerifyInputSignature(
	tx *transaction.Transaction, inIndex int, scriptCode []byte, value uint64,
	pubkey, sig []byte,
) error {
	if tx == nil {
		return ErrNullTx
	}
	if inIndex < 0 || inIndex >= len(tx.Inputs) {
		return ErrInvalidInputIndex
	}
	if len(sig) < 2 || sig[len(sig)-1] != byte(txscript.SigHashAll) {
		return fmt.Errorf("%w: unexpected sighash type", ErrInvalidSignature)
	}
	hash, err := sighash(tx, inIndex, scriptCode, value)
	if err != nil {
		return err
	}
	return verify(hash[:], pubkey, sig[:len(sig)-1])
}

// SignMessage signs the sha256 digest of the given message.
func SignMessage(key *btcec.PrivateKey, msg []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrNullPrivateKey
	}
	hash := sha256.Sum256(msg)
	return ecdsa.Sign(key, hash[:]).Serialize(), nil
}

// VerifyMessage checks a signature produced by SignMessage.
func VerifyMessage(pubkey, msg, sig []byte) error {
	hash := sha256.Sum256(msg)
	return verify(hash[:], pubkey, sig)
}

func verify(hash, pubkey, sig []byte) error {
	key, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPubKey, err)
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if !signature.Verify(hash, key) {
		return ErrInvalidSignature
	}
	return nil
}

func sighash(
	tx *transaction.Transaction, inIndex int, scriptCode []byte, value uint64,
) ([32]byte, error) {
	valueBytes, err := elementsutil.ValueToBytes(value)
	if err != nil {
		return [32]byte{}, err
	}
	return tx.HashForWitnessV0(
		inIndex, scriptCode, valueBytes, txscript.SigHashAll,
	), nil
}
