package domain

import (
	"bytes"
	"fmt"
)

// Party is the working set of one trade participant. Trade.Self is filled
// by the local tasks, Trade.Peer (the trade peer) only by the tasks
// processing the counterparty's validated messages.
//
// Every field is set at most once: setting the same value again is a no-op,
// so that a message replayed after a restart is harmless, while setting a
// different value fails with ErrPeerFieldAlreadySet.
type Party struct {
	PubKey                []byte
	EscrowPubKey          []byte
	PaymentAccountPayload []byte
	AccountAgeWitness     AccountAgeWitness
	Inputs                []Input
	ChangeAddress         string
	ChangeAmount          uint64
	PayoutAddress         string
	PayoutAmount          uint64
	FeeTxID               string
	PreparedTx            string
	DelayedPayoutSig      []byte
	PayoutSig             []byte
}

func (p *Party) SetPubKey(key []byte) error {
	return setBytesOnce("pubkey", &p.PubKey, key)
}

func (p *Party) SetEscrowPubKey(key []byte) error {
	return setBytesOnce("escrow pubkey", &p.EscrowPubKey, key)
}

func (p *Party) SetPaymentAccountPayload(payload []byte) error {
	return setBytesOnce(
		"payment account payload", &p.PaymentAccountPayload, payload,
	)
}

func (p *Party) SetAccountAgeWitness(w AccountAgeWitness) error {
	if !p.AccountAgeWitness.IsEmpty() {
		if bytes.Equal(p.AccountAgeWitness.Nonce, w.Nonce) &&
			bytes.Equal(p.AccountAgeWitness.Signature, w.Signature) &&
			p.AccountAgeWitness.Date == w.Date {
			return nil
		}
		return fmt.Errorf("%w: account age witness", ErrPeerFieldAlreadySet)
	}
	p.AccountAgeWitness = w
	return nil
}

func (p *Party) SetInputs(ins []Input) error {
	if len(ins) <= 0 {
		return ErrMissingInputs
	}
	if len(p.Inputs) > 0 {
		if inputsEqual(p.Inputs, ins) {
			return nil
		}
		return fmt.Errorf("%w: inputs", ErrPeerFieldAlreadySet)
	}
	p.Inputs = append([]Input(nil), ins...)
	return nil
}

// SetChange sets change address and amount together. A zero amount means
// the change was folded into the fee.
func (p *Party) SetChange(addr string, amount uint64) error {
	if addr == "" {
		return fmt.Errorf("%w: change address", ErrPeerFieldEmpty)
	}
	if p.ChangeAddress != "" {
		if p.ChangeAddress == addr && p.ChangeAmount == amount {
			return nil
		}
		return fmt.Errorf("%w: change", ErrPeerFieldAlreadySet)
	}
	p.ChangeAddress = addr
	p.ChangeAmount = amount
	return nil
}

func (p *Party) SetPayoutAddress(addr string) error {
	return setStringOnce("payout address", &p.PayoutAddress, addr)
}

func (p *Party) SetPayoutAmount(amount uint64) error {
	if p.PayoutAmount > 0 {
		if p.PayoutAmount == amount {
			return nil
		}
		return fmt.Errorf("%w: payout amount", ErrPeerFieldAlreadySet)
	}
	p.PayoutAmount = amount
	return nil
}

func (p *Party) SetFeeTxID(txid string) error {
	return setStringOnce("fee txid", &p.FeeTxID, txid)
}

func (p *Party) SetPreparedTx(txHex string) error {
	return setStringOnce("prepared tx", &p.PreparedTx, txHex)
}

func (p *Party) SetDelayedPayoutSig(sig []byte) error {
	return setBytesOnce("delayed payout signature", &p.DelayedPayoutSig, sig)
}

func (p *Party) SetPayoutSig(sig []byte) error {
	return setBytesOnce("payout signature", &p.PayoutSig, sig)
}

// InputsValue returns the sum of the values of the party's inputs for the
// given asset.
func (p Party) InputsValue(asset string) uint64 {
	var tot uint64
	for _, in := range p.Inputs {
		if in.Asset == asset {
			tot += in.Value
		}
	}
	return tot
}

func (p Party) copy() Party {
	c := p
	c.PubKey = cloneBytes(p.PubKey)
	c.EscrowPubKey = cloneBytes(p.EscrowPubKey)
	c.PaymentAccountPayload = cloneBytes(p.PaymentAccountPayload)
	c.AccountAgeWitness = AccountAgeWitness{
		Nonce:     cloneBytes(p.AccountAgeWitness.Nonce),
		Signature: cloneBytes(p.AccountAgeWitness.Signature),
		Date:      p.AccountAgeWitness.Date,
	}
	if p.Inputs != nil {
		c.Inputs = make([]Input, 0, len(p.Inputs))
		for _, in := range p.Inputs {
			in.Script = cloneBytes(in.Script)
			c.Inputs = append(c.Inputs, in)
		}
	}
	c.DelayedPayoutSig = cloneBytes(p.DelayedPayoutSig)
	c.PayoutSig = cloneBytes(p.PayoutSig)
	return c
}

func setBytesOnce(name string, field *[]byte, value []byte) error {
	if len(value) <= 0 {
		return fmt.Errorf("%w: %s", ErrPeerFieldEmpty, name)
	}
	if len(*field) > 0 {
		if bytes.Equal(*field, value) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrPeerFieldAlreadySet, name)
	}
	*field = cloneBytes(value)
	return nil
}

func setStringOnce(name string, field *string, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrPeerFieldEmpty, name)
	}
	if *field != "" {
		if *field == value {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrPeerFieldAlreadySet, name)
	}
	*field = value
	return nil
}

func inputsEqual(a, b []Input) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].TxID != b[i].TxID || a[i].Index != b[i].Index ||
			a[i].Asset != b[i].Asset || a[i].Value != b[i].Value ||
			!bytes.Equal(a[i].Script, b[i].Script) {
			return false
		}
	}
	return true
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
