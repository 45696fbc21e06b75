package explorer

import (
	"sort"
)

// maxRatio bounds how bigger than the target a single selected coin can be
// before preferring a combination of smaller ones.
const maxRatio = 10

// SelectUnspents performs a coin selection over the given list of Utxos and
// returns a subset of them of type targetAsset to cover the targetAmount.
// The goal of the strategy is to select as few utxos as possible, within a
// 10x ratio between the selected amount and the target:
//  1. the smallest coin covering the target within the ratio, if any
//  2. the coins smaller than the target, biggest first, until covering it
//  3. the smallest coin covering the target, whatever the ratio
func SelectUnspents(
	utxos []Utxo,
	targetAmount uint64,
	targetAsset string,
) (coins []Utxo, change uint64, err error) {
	candidates := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Asset() == targetAsset {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Value() == candidates[j].Value() {
			return candidates[i].Key() < candidates[j].Key()
		}
		return candidates[i].Value() > candidates[j].Value()
	})

	selected := getBestCombination(candidates, targetAmount)
	if len(selected) <= 0 {
		return nil, 0, ErrInsufficientFunds
	}

	var total uint64
	for _, u := range selected {
		total += u.Value()
	}
	return selected, total - targetAmount, nil
}

// getBestCombination expects utxos sorted by value in descending order.
func getBestCombination(utxos []Utxo, target uint64) []Utxo {
	var smallestCovering Utxo
	smaller := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Value() >= target {
			smallestCovering = u
			continue
		}
		smaller = append(smaller, u)
	}

	if smallestCovering != nil && smallestCovering.Value() <= target*maxRatio {
		return []Utxo{smallestCovering}
	}

	var total uint64
	for i, u := range smaller {
		total += u.Value()
		if total >= target {
			return smaller[:i+1]
		}
	}

	if smallestCovering != nil {
		return []Utxo{smallestCovering}
	}
	return nil
}
