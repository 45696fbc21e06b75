package swap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/transaction"
)

// AssetToBytes returns the unconfidential asset of an output for the given
// asset hash.
func AssetToBytes(asset string) ([]byte, error) {
	buf, err := hex.DecodeString(asset)
	if err != nil || len(buf) != 32 {
		return nil, ErrInvalidAsset
	}
	return append([]byte{0x01}, elementsutil.ReverseBytes(buf)...), nil
}

// AssetFromBytes returns the asset hash of an unconfidential output.
func AssetFromBytes(buf []byte) string {
	if len(buf) < 1 {
		return ""
	}
	// The first byte tells whether the asset is confidential.
	return hex.EncodeToString(reverse(buf[1:]))
}

// ValueToBytes ...
func ValueToBytes(value uint64) ([]byte, error) {
	return elementsutil.ValueToBytes(value)
}

// ValueFromBytes returns the amount of an unconfidential output.
func ValueFromBytes(buf []byte) uint64 {
	value, _ := elementsutil.ValueFromBytes(buf)
	return value
}

// TxIDToBytes ...
func TxIDToBytes(txid string) ([]byte, error) {
	buf, err := hex.DecodeString(txid)
	if err != nil || len(buf) != 32 {
		return nil, ErrInvalidTxID
	}
	return elementsutil.ReverseBytes(buf), nil
}

// TxIDFromBytes ...
func TxIDFromBytes(buf []byte) string {
	return hex.EncodeToString(reverse(buf))
}

// DecodeTx parses a transaction in hex format.
func DecodeTx(txHex string) (*transaction.Transaction, error) {
	tx, err := transaction.NewTxFromHex(txHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTx, err)
	}
	return tx, nil
}

// OutputScript returns the output script of the given address after checking
// it is an unconfidential native segwit address of the given network.
func OutputScript(addr string, net *network.Network) ([]byte, error) {
	if net == nil {
		return nil, ErrNullNetwork
	}
	if !strings.HasPrefix(addr, net.Bech32+"1") {
		return nil, fmt.Errorf(
			"%w: %s is not a segwit address of network %s",
			ErrInvalidAddress, addr, net.Name,
		)
	}
	script, err := address.ToOutputScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if len(script) != 22 && len(script) != 34 || script[0] != 0x00 {
		return nil, fmt.Errorf("%w: unsupported script type", ErrInvalidAddress)
	}
	return script, nil
}

// ValidateAddress ...
func ValidateAddress(addr string, net *network.Network) error {
	_, err := OutputScript(addr, net)
	return err
}

// reverse never modifies the given buffer.
func reverse(buf []byte) []byte {
	b := make([]byte, len(buf))
	copy(b, buf)
	return elementsutil.ReverseBytes(b)
}
