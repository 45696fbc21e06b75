package websocket

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/transport"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

// envelope is the frame exchanged by peers. The payload is an encoded
// domain message, signed together with the sender address by the sender key.
type envelope struct {
	Sender    string `json:"sender"`
	PubKey    string `json:"pubkey"`
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`
}

// receipt is the frame returned for every envelope received.
type receipt struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newEnvelope(
	key *btcec.PrivateKey, sender string, payload []byte,
) (*envelope, error) {
	sig, err := pkgwallet.SignMessage(key, signedData(sender, payload))
	if err != nil {
		return nil, err
	}
	return &envelope{
		Sender:    sender,
		PubKey:    hex.EncodeToString(key.PubKey().SerializeCompressed()),
		Payload:   payload,
		Signature: hex.EncodeToString(sig),
	}, nil
}

func (e *envelope) verify() ([]byte, error) {
	pubkey, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pubkey", transport.ErrInvalidEnvelopeSignature)
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature", transport.ErrInvalidEnvelopeSignature)
	}
	if err := pkgwallet.VerifyMessage(
		pubkey, signedData(e.Sender, e.Payload), sig,
	); err != nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidEnvelopeSignature, err)
	}
	return pubkey, nil
}

func signedData(sender string, payload []byte) []byte {
	return append([]byte(sender+"|"), payload...)
}
