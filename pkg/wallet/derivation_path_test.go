package wallet_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

const hardened = hdkeychain.HardenedKeyStart

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		input  string
		output wallet.DerivationPath
	}{
		{"m/84'/1776'/0'/0", wallet.DerivationPath{hardened + 84, hardened + 1776, hardened, 0}},
		{"m/84'/1776'/0'/128'", wallet.DerivationPath{hardened + 84, hardened + 1776, hardened, hardened + 128}},
		{"m/2147483732/2147483648/0", wallet.DerivationPath{hardened + 84, hardened, 0}},
		{"m/0x54'/0x00'/0x80", wallet.DerivationPath{hardened + 84, hardened, 128}},
		{"	m  /   84			'\n/\n   00	\n\n\t'   /\n0", wallet.DerivationPath{hardened + 84, hardened, 0}},
		{"0'/1/5", wallet.DerivationPath{hardened, 1, 5}},
		{"0/0", wallet.DerivationPath{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			path, err := wallet.ParseDerivationPath(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.output, path)
		})
	}
}

func TestFailingParseDerivationPath(t *testing.T) {
	tests := []struct {
		input string
		err   error
	}{
		{"", wallet.ErrNullDerivationPath},
		{"m", wallet.ErrMalformedDerivationPath},
		{"m/", wallet.ErrMalformedDerivationPath},
		{"/84'/0'/0'/0", wallet.ErrMalformedDerivationPath},
		{"0", wallet.ErrMalformedDerivationPath},
		{"m/84'/abc", wallet.ErrInvalidDerivationPath},
		// Overflows and negative numbers return dynamic errors.
		{"m/2147483648'", nil},
		{"m/-1'", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			path, err := wallet.ParseDerivationPath(tt.input)
			require.Error(t, err)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
			require.Nil(t, path)
		})
	}
}

func TestNewAccountPath(t *testing.T) {
	path, err := wallet.NewAccountPath(2, wallet.InternalBranch, 7)
	require.NoError(t, err)
	require.Equal(t, "m/2'/1/7", path.String())

	parsed, err := wallet.ParseDerivationPath(path.String())
	require.NoError(t, err)
	require.Equal(t, path, parsed)

	_, err = wallet.NewAccountPath(wallet.MaxHardenedValue+1, 0, 0)
	require.ErrorIs(t, err, wallet.ErrOutOfRangeDerivationPathAccount)
}
