package swap_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
)

var (
	lbtc = network.Regtest.AssetID
	usdt = "2dcf5a8834645654911964ec3602426fd3b9b4017554d3f9c19403e7fc1411d3"
)

type party struct {
	key     *btcec.PrivateKey
	script  []byte
	address string
}

func newParty(t *testing.T) party {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	p2wpkh := payment.FromPublicKey(key.PubKey(), &network.Regtest, nil)
	addr, err := p2wpkh.WitnessPubKeyHash()
	require.NoError(t, err)
	return party{key, p2wpkh.WitnessScript, addr}
}

func newInput(
	t *testing.T, seed byte, asset string, value uint64, script []byte,
) swap.Input {
	return swap.Input{
		TxID:   hex.EncodeToString(bytes.Repeat([]byte{seed}, 32)),
		Index:  uint32(seed),
		Asset:  asset,
		Value:  value,
		Script: script,
	}
}

// newSwapOpts returns the build options of a swap where the buyer pays
// 1000000 of L-BTC for 0.01 USDT, each party paying its share of fee.
func newSwapOpts(t *testing.T, buyer, seller party) swap.BuildOpts {
	return swap.BuildOpts{
		PolicyAsset: lbtc,
		Initiator: swap.Leg{
			Inputs: []swap.Input{newInput(t, 1, lbtc, 1500000, buyer.script)},
			Outputs: []swap.Output{
				{Asset: usdt, Value: 1000000, Script: buyer.script},
				{Asset: lbtc, Value: 499000, Script: buyer.script},
			},
		},
		Counterparty: swap.Leg{
			Inputs: []swap.Input{newInput(t, 2, usdt, 1200000, seller.script)},
			Outputs: []swap.Output{
				{Asset: lbtc, Value: 999000, Script: seller.script},
				{Asset: usdt, Value: 200000, Script: seller.script},
			},
		},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	buyer, seller := newParty(t), newParty(t)
	opts := newSwapOpts(t, buyer, seller)

	tx1, fee1, err := swap.Build(opts)
	require.NoError(t, err)
	tx2, fee2, err := swap.Build(newSwapOpts(t, buyer, seller))
	require.NoError(t, err)

	require.Equal(t, uint64(2000), fee1)
	require.Equal(t, fee1, fee2)
	require.Equal(t, tx1.TxHash().String(), tx2.TxHash().String())

	require.Len(t, tx1.Inputs, 2)
	require.Len(t, tx1.Outputs, 5)
	require.Equal(t, opts.Initiator.Inputs[0].TxID, swap.TxIDFromBytes(tx1.Inputs[0].Hash))
	require.Equal(t, opts.Counterparty.Inputs[0].TxID, swap.TxIDFromBytes(tx1.Inputs[1].Hash))
	require.Equal(t, usdt, swap.AssetFromBytes(tx1.Outputs[0].Asset))
	require.Equal(t, uint64(999000), swap.ValueFromBytes(tx1.Outputs[2].Value))

	feeOut := tx1.Outputs[4]
	require.Empty(t, feeOut.Script)
	require.Equal(t, lbtc, swap.AssetFromBytes(feeOut.Asset))
	require.Equal(t, uint64(2000), swap.ValueFromBytes(feeOut.Value))
}

func TestFailingBuild(t *testing.T) {
	t.Parallel()

	buyer, seller := newParty(t), newParty(t)

	tests := []struct {
		name   string
		tamper func(o *swap.BuildOpts)
		err    error
	}{
		{
			name: "no_inputs",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator.Inputs, o.Counterparty.Inputs = nil, nil
			},
			err: swap.ErrMissingInputs,
		},
		{
			name: "duplicated_input",
			tamper: func(o *swap.BuildOpts) {
				o.Counterparty.Inputs = append(o.Counterparty.Inputs, o.Initiator.Inputs[0])
			},
			err: swap.ErrDuplicatedInput,
		},
		{
			name: "issued_asset_unbalanced",
			tamper: func(o *swap.BuildOpts) {
				o.Counterparty.Outputs[1].Value++
			},
			err: swap.ErrUnbalancedTx,
		},
		{
			name: "policy_asset_overspent",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator.Outputs[1].Value = 600000
			},
			err: swap.ErrUnbalancedTx,
		},
		{
			name: "zero_output",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator.Outputs[1].Value = 0
			},
			err: swap.ErrZeroOutputAmount,
		},
		{
			name: "invalid_asset",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator.Outputs[0].Asset = "asset"
			},
			err: swap.ErrInvalidAsset,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := newSwapOpts(t, buyer, seller)
			tt.tamper(&opts)
			tx, _, err := swap.Build(opts)
			require.ErrorIs(t, err, tt.err)
			require.Nil(t, tx)
		})
	}
}

func TestCompareTx(t *testing.T) {
	t.Parallel()

	buyer, seller := newParty(t), newParty(t)
	tx, _, err := swap.Build(newSwapOpts(t, buyer, seller))
	require.NoError(t, err)
	unsignedHex, err := tx.ToHex()
	require.NoError(t, err)

	// Seller signs its input, the non-witness bytes stay the same.
	require.NoError(t, wallet.SignP2WPKHInput(tx, 1, seller.key, 1200000))
	signedHex, err := tx.ToHex()
	require.NoError(t, err)
	require.NotEqual(t, unsignedHex, signedHex)
	require.NoError(t, swap.CompareTx(unsignedHex, signedHex))

	tests := []struct {
		name   string
		tamper func(o *swap.BuildOpts)
	}{
		{
			name: "different_payout_address",
			tamper: func(o *swap.BuildOpts) {
				o.Counterparty.Outputs[0].Script = buyer.script
			},
		},
		{
			name: "different_amount",
			tamper: func(o *swap.BuildOpts) {
				o.Counterparty.Outputs[0].Value -= 100
			},
		},
		{
			name: "different_input",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator.Inputs[0].Index++
			},
		},
		{
			name: "different_order",
			tamper: func(o *swap.BuildOpts) {
				o.Initiator, o.Counterparty = o.Counterparty, o.Initiator
			},
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := newSwapOpts(t, buyer, seller)
			tt.tamper(&opts)
			tampered, _, err := swap.Build(opts)
			require.NoError(t, err)
			tamperedHex, err := tampered.ToHex()
			require.NoError(t, err)

			err = swap.CompareTx(unsignedHex, tamperedHex)
			require.ErrorIs(t, err, swap.ErrTxMismatch)
		})
	}

	err = swap.CompareTx(unsignedHex, "not a tx")
	require.ErrorIs(t, err, swap.ErrMalformedTx)
}

func TestStripWitness(t *testing.T) {
	t.Parallel()

	buyer, seller := newParty(t), newParty(t)
	tx, _, err := swap.Build(newSwapOpts(t, buyer, seller))
	require.NoError(t, err)
	unsigned, err := tx.Serialize()
	require.NoError(t, err)
	unsignedHash := tx.TxHash()

	require.NoError(t, wallet.SignP2WPKHInput(tx, 0, buyer.key, 1500000))
	require.NoError(t, wallet.SignP2WPKHInput(tx, 1, seller.key, 1200000))
	signedHex, err := tx.ToHex()
	require.NoError(t, err)

	decoded, err := swap.DecodeTx(signedHex)
	require.NoError(t, err)
	require.True(t, decoded.HasWitness())

	stripped, err := swap.StripWitness(signedHex)
	require.NoError(t, err)
	require.Equal(t, unsigned, stripped)

	strippedTx, err := swap.DecodeTx(hex.EncodeToString(stripped))
	require.NoError(t, err)
	require.False(t, strippedTx.HasWitness())
	require.Equal(t, unsignedHash, strippedTx.TxHash())
}

func TestPolicyChange(t *testing.T) {
	t.Parallel()

	policy := swap.NewPolicy(lbtc, decimal.NewFromFloat(0.1))

	tests := []struct {
		name           string
		asset          string
		inputsAmount   uint64
		required       uint64
		expectedChange uint64
		expectedFolded uint64
	}{
		{"no_change", lbtc, 1000, 1000, 0, 0},
		{"below_dust", lbtc, 1545, 1000, 0, 545},
		{"at_dust", lbtc, 1546, 1000, 546, 0},
		{"above_dust", lbtc, 10000, 1000, 9000, 0},
		{"issued_asset_never_dust", usdt, 1001, 1000, 1, 0},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			change, folded, err := policy.Change(tt.asset, tt.inputsAmount, tt.required)
			require.NoError(t, err)
			require.Equal(t, tt.expectedChange, change)
			require.Equal(t, tt.expectedFolded, folded)
			require.NoError(t, policy.CheckDust(tt.asset, change))
		})
	}

	_, _, err := policy.Change(lbtc, 999, 1000)
	require.ErrorIs(t, err, swap.ErrInputAmountMismatch)
	require.Contains(t, err.Error(), "input amount does not match required amount")

	require.ErrorIs(t, policy.CheckDust(lbtc, 545), swap.ErrDustAmount)
}

func TestPolicyCheckDeclared(t *testing.T) {
	t.Parallel()

	policy := swap.NewPolicy(lbtc, decimal.NewFromFloat(0.1))

	tests := []struct {
		name         string
		declared     uint64
		expected     uint64
		expectedDiff uint64
		err          error
	}{
		{"equal", 1000, 1000, 0, nil},
		{"below_within_tolerance", 985, 1000, 15, nil},
		{"below_at_tolerance", 980, 1000, 20, nil},
		{"below_beyond_tolerance", 979, 1000, 0, swap.ErrAmountBelowTolerance},
		{"above", 1001, 1000, 0, swap.ErrAmountAboveExpected},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			diff, err := policy.CheckDeclared("change", tt.declared, tt.expected)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedDiff, diff)
		})
	}
}

func TestPolicyFees(t *testing.T) {
	t.Parallel()

	policy := swap.NewPolicy(lbtc, decimal.NewFromFloat(0.1))

	initiator := policy.LegFee(1, 2, true)
	counterparty := policy.LegFee(1, 2, false)
	require.Greater(t, initiator, counterparty)

	total := policy.Fee(wallet.EstimateTxSize(
		[]int{wallet.P2WPKH, wallet.P2WPKH}, nil,
		[]int{wallet.P2WPKH, wallet.P2WPKH, wallet.P2WPKH, wallet.P2WPKH},
	))
	require.GreaterOrEqual(t, initiator+counterparty, total)

	// 0.1 sat/vbyte over 258 vbytes is rounded up.
	require.Equal(t, uint64(26), policy.Fee(258))
}

func TestOutputScript(t *testing.T) {
	t.Parallel()

	p := newParty(t)
	script, err := swap.OutputScript(p.address, &network.Regtest)
	require.NoError(t, err)
	require.Equal(t, p.script, script)

	p2wpkh := payment.FromPublicKey(p.key.PubKey(), &network.Liquid, nil)
	liquidAddr, err := p2wpkh.WitnessPubKeyHash()
	require.NoError(t, err)

	blindKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	confidential := payment.FromPublicKey(p.key.PubKey(), &network.Regtest, blindKey.PubKey())
	confidentialAddr, err := confidential.ConfidentialWitnessPubKeyHash()
	require.NoError(t, err)

	for _, addr := range []string{"", "notanaddress", liquidAddr, confidentialAddr} {
		_, err := swap.OutputScript(addr, &network.Regtest)
		require.ErrorIs(t, err, swap.ErrInvalidAddress)
	}
}
