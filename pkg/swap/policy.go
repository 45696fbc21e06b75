package swap

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

const (
	// DefaultDustThreshold is the minimum amount of a policy asset output.
	DefaultDustThreshold = 546
	// DefaultFeeTolerance is how much a declared amount can be lower than the
	// expected one, to absorb rounding differences of the fee estimation.
	DefaultFeeTolerance = 20

	// MultisigWitnessSize is the size of the witness stack spending a 2-of-2
	// multisig output: len + empty item + 2 * (len + sig) + len + script.
	MultisigWitnessSize = 1 + 1 + 2*(1+73) + 1 + 71
)

// Policy holds the parameters both parties use to independently compute
// fees and change of a shared transaction.
type Policy struct {
	// PolicyAsset is the asset fees are paid with.
	PolicyAsset string
	// FeeRate in sats/vbyte.
	FeeRate       decimal.Decimal
	DustThreshold uint64
	FeeTolerance  uint64
}

// NewPolicy returns a policy with default dust threshold and fee tolerance.
func NewPolicy(policyAsset string, feeRate decimal.Decimal) Policy {
	return Policy{
		PolicyAsset:   policyAsset,
		FeeRate:       feeRate,
		DustThreshold: DefaultDustThreshold,
		FeeTolerance:  DefaultFeeTolerance,
	}
}

// Fee returns the fee for the given virtual size, rounded up.
func (p Policy) Fee(vsize int) uint64 {
	return uint64(p.FeeRate.Mul(decimal.NewFromInt(int64(vsize))).Ceil().IntPart())
}

// LegFee returns the share of fee owed by a party contributing the given
// number of P2WPKH inputs and outputs. The party paying the overhead also
// pays for the fee output and the tx header.
func (p Policy) LegFee(numIns, numOuts int, payOverhead bool) uint64 {
	vsize := wallet.EstimateLegSize(
		scriptTypes(numIns, wallet.P2WPKH), nil,
		scriptTypes(numOuts, wallet.P2WPKH),
	)
	if payOverhead {
		vsize += wallet.EstimateOverheadSize()
	}
	return p.Fee(vsize)
}

// DepositLegFee returns the share of the deposit tx fee owed by a party
// contributing the given number of P2WPKH inputs and a change output. The
// initiator also pays for the escrow output and the overhead.
func (p Policy) DepositLegFee(numIns int, isInitiator bool) uint64 {
	outs := []int{wallet.P2WPKH}
	if isInitiator {
		outs = append(outs, wallet.P2WSH)
	}
	vsize := wallet.EstimateLegSize(scriptTypes(numIns, wallet.P2WPKH), nil, outs)
	if isInitiator {
		vsize += wallet.EstimateOverheadSize()
	}
	return p.Fee(vsize)
}

// EscrowSpendFee returns the fee of a transaction spending the 2-of-2 escrow
// output into the given number of outputs.
func (p Policy) EscrowSpendFee(numOuts int) uint64 {
	return p.Fee(wallet.EstimateTxSize(
		[]int{wallet.P2WSH}, []int{MultisigWitnessSize},
		scriptTypes(numOuts, wallet.P2WPKH),
	))
}

// Change returns the change of a leg spending inputsAmount to cover
// required. Policy asset change below the dust threshold is folded into the
// fee and 0 is returned in place of the change.
func (p Policy) Change(
	asset string, inputsAmount, required uint64,
) (change, folded uint64, err error) {
	if inputsAmount < required {
		return 0, 0, fmt.Errorf(
			"%w: got %d, required %d", ErrInputAmountMismatch, inputsAmount, required,
		)
	}
	change = inputsAmount - required
	if asset == p.PolicyAsset && change > 0 && change < p.DustThreshold {
		return 0, change, nil
	}
	return change, 0, nil
}

// CheckDeclared compares an amount declared by the counterparty with the one
// computed locally. A declared amount lower than the expected one by at most
// the fee tolerance is accepted, and the difference is returned so that the
// caller can warn about it. Anything else is a hard failure.
func (p Policy) CheckDeclared(
	kind string, declared, expected uint64,
) (uint64, error) {
	if declared > expected {
		return 0, fmt.Errorf(
			"%w: %s %d, expected %d", ErrAmountAboveExpected, kind, declared, expected,
		)
	}
	diff := expected - declared
	if diff > p.FeeTolerance {
		return 0, fmt.Errorf(
			"%w: %s %d, expected %d", ErrAmountBelowTolerance, kind, declared, expected,
		)
	}
	return diff, nil
}

// CheckDust fails if a policy asset output amount is below the dust
// threshold. Issued asset outputs are never dust.
func (p Policy) CheckDust(asset string, amount uint64) error {
	if asset == p.PolicyAsset && amount > 0 && amount < p.DustThreshold {
		return fmt.Errorf("%w: %d", ErrDustAmount, amount)
	}
	return nil
}

func scriptTypes(n int, scriptType int) []int {
	types := make([]int, n)
	for i := range types {
		types[i] = scriptType
	}
	return types
}
