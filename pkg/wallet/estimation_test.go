package wallet_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

func TestEstimateTxSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		inScriptTypes  []int
		inAuxWitness   []int
		outScriptTypes []int
		expectedSize   int
	}{
		{
			name:           "1in_2out",
			inScriptTypes:  []int{wallet.P2WPKH},
			outScriptTypes: []int{wallet.P2WPKH, wallet.P2WPKH},
			expectedSize:   258,
		},
		{
			name:           "2in_1out",
			inScriptTypes:  []int{wallet.P2WPKH, wallet.P2WPKH},
			outScriptTypes: []int{wallet.P2WPKH},
			expectedSize:   260,
		},
		{
			name:           "multisig_in_2out",
			inScriptTypes:  []int{wallet.P2WSH},
			inAuxWitness:   []int{222},
			outScriptTypes: []int{wallet.P2WPKH, wallet.P2WPKH},
			expectedSize:   286,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size := wallet.EstimateTxSize(
				tt.inScriptTypes, tt.inAuxWitness, tt.outScriptTypes,
			)
			require.Equal(t, tt.expectedSize, size)
		})
	}
}

func TestEstimateLegSizes(t *testing.T) {
	t.Parallel()

	ins := []int{wallet.P2WPKH, wallet.P2WPKH}
	outs := []int{wallet.P2WPKH, wallet.P2WPKH}

	total := wallet.EstimateTxSize(
		append(ins, wallet.P2WPKH), nil, append(outs, wallet.P2WPKH),
	)
	split := wallet.EstimateOverheadSize() +
		wallet.EstimateLegSize(ins, nil, outs) +
		wallet.EstimateLegSize([]int{wallet.P2WPKH}, nil, []int{wallet.P2WPKH})

	// Rounding every part up never underestimates the whole.
	require.GreaterOrEqual(t, split, total)
	require.LessOrEqual(t, split-total, 2)
}
