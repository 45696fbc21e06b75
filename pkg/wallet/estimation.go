package wallet

const (
	P2PKH = iota
	P2SH_P2WPKH
	P2SH_P2WSH
	P2WPKH
	P2WSH
)

const (
	// version + flag + locktime, and 1-byte varints for in/out counts.
	txOverheadBaseSize = 4 + 1 + 4 + 1 + 1
	// explicit fee output: asset + unconf value + empty nonce + empty script.
	feeOutputBaseSize = 33 + 9 + 1 + 1
	// empty surjection and range proofs.
	unconfOutputWitnessSize = 1 + 1
	// hash + index + sequence.
	inputBaseSize = 32 + 4 + 4
	// no issuance proof + no token proof + no pegin.
	inputWitnessExtraSize = 1 + 1 + 1
)

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PKH:       108, // len + opcode + sig + opcode + pubkey
		P2SH_P2WPKH: 23,  // len + p2wpkh script
		P2SH_P2WSH:  35,  // len + p2wsh script
		P2WPKH:      1,   // no scriptsig, still len is serialized
		P2WSH:       1,   // no scriptsig
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PKH:       26, // len + opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH_P2WPKH: 24, // len + opcodes (2) + hash(script) + opcode
		P2SH_P2WSH:  24, // len + opcodes (2) + hash(script) + opcode
		P2WPKH:      23, // len + opcodes (2) + hash(script)
		P2WSH:       35, // len + opcodes (2) + hash(script)
	}
)

// EstimateTxSize makes an estimation of the virtual size of an unconfidential
// transaction with an explicit fee output, given the types of its inputs and
// outputs. For P2WSH (or P2SH(P2WSH)) inputs it is mandatory to pass the size
// of their witness stack as an auxiliary slice in accordance.
func EstimateTxSize(
	inScriptTypes, inAuxiliaryWitnessSize, outScriptTypes []int,
) int {
	weight := overheadWeight() +
		legWeight(inScriptTypes, inAuxiliaryWitnessSize, outScriptTypes)
	return vsize(weight)
}

// EstimateLegSize returns the virtual size of the given inputs and outputs
// alone, without the tx overhead and the fee output. It is used to split
// the fee of a transaction funded by more parties.
func EstimateLegSize(
	inScriptTypes, inAuxiliaryWitnessSize, outScriptTypes []int,
) int {
	return vsize(
		legWeight(inScriptTypes, inAuxiliaryWitnessSize, outScriptTypes),
	)
}

// EstimateOverheadSize returns the virtual size of the parts of a transaction
// not owned by any party: header, locktime and fee output.
func EstimateOverheadSize() int {
	return vsize(overheadWeight())
}

func overheadWeight() int {
	return (txOverheadBaseSize+feeOutputBaseSize)*4 + unconfOutputWitnessSize
}

func legWeight(
	inScriptTypes, inAuxiliaryWitnessSize, outScriptTypes []int,
) int {
	baseSize, witnessSize := 0, 0

	auxCount := 0
	for _, scriptType := range inScriptTypes {
		baseSize += inputBaseSize + scriptSigSizeByScriptType[scriptType]
		witnessSize += inputWitnessExtraSize
		switch scriptType {
		case P2WPKH, P2SH_P2WPKH:
			// len + witness[sig,pubkey]
			witnessSize += 1 + 107
		case P2WSH, P2SH_P2WSH:
			witnessSize += inAuxiliaryWitnessSize[auxCount]
			auxCount++
		}
	}

	for _, scriptType := range outScriptTypes {
		// asset + unconf value + empty nonce + script
		baseSize += 33 + 9 + 1 + scriptPubKeySizeByScriptType[scriptType]
		witnessSize += unconfOutputWitnessSize
	}

	return baseSize*4 + witnessSize
}

func vsize(weight int) int {
	return (weight + 3) / 4
}
