package localwallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
)

// SelectInputs selects and locks the wallet coins for the given trade and
// purpose. A previous selection for the same trade and purpose is returned
// again if it still covers the amount, otherwise it is released.
func (s *service) SelectInputs(
	ctx context.Context, purpose ports.InputPurpose, tradeID, asset string,
	amount uint64,
) ([]domain.Input, error) {
	s.coinsLock.Lock()
	defer s.coinsLock.Unlock()

	key := lockKey{tradeID, purpose}
	if prev := s.selections[key]; len(prev) > 0 {
		if covers(prev, asset, amount) {
			return copyInputs(prev), nil
		}
		s.release(key)
	}

	utxos, err := s.listUnspents(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]explorer.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if _, ok := s.locked[u.Key()]; !ok {
			available = append(available, u)
		}
	}

	coins, _, err := explorer.SelectUnspents(available, amount, asset)
	if err != nil {
		return nil, fmt.Errorf("selecting %d of asset %s: %w", amount, asset, err)
	}

	ins := make([]domain.Input, 0, len(coins))
	for _, c := range coins {
		s.locked[c.Key()] = key
		ins = append(ins, domain.Input{
			TxID:   c.Hash(),
			Index:  c.Index(),
			Asset:  c.Asset(),
			Value:  c.Value(),
			Script: c.Script(),
		})
	}
	s.selections[key] = ins
	return copyInputs(ins), nil
}

// UnlockInputs releases the coins locked for the trade, for any purpose.
func (s *service) UnlockInputs(_ context.Context, tradeID string) error {
	s.coinsLock.Lock()
	defer s.coinsLock.Unlock()

	for key := range s.selections {
		if key.tradeID == tradeID {
			s.release(key)
		}
	}
	return nil
}

// Balance returns the overall value of the wallet coins of the given asset,
// and how much of it is locked by trades.
func (s *service) Balance(
	ctx context.Context, asset string,
) (total, locked uint64, err error) {
	s.coinsLock.Lock()
	defer s.coinsLock.Unlock()

	utxos, err := s.listUnspents(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, u := range utxos {
		if u.Asset() != asset {
			continue
		}
		total += u.Value()
		if _, ok := s.locked[u.Key()]; ok {
			locked += u.Value()
		}
	}
	return total, locked, nil
}

// IsSpendable returns whether the given outpoint exists, is not spent, and
// matches the asset, value and script of the input.
func (s *service) IsSpendable(
	_ context.Context, in domain.Input,
) (bool, error) {
	status, err := s.explorerSvc.GetUnspentStatus(in.TxID, in.Index)
	if err != nil {
		if errors.Is(err, explorer.ErrTransactionNotFound) {
			return false, nil
		}
		return false, err
	}
	if status.Spent() {
		return false, nil
	}

	txHex, err := s.explorerSvc.GetTransactionHex(in.TxID)
	if err != nil {
		if errors.Is(err, explorer.ErrTransactionNotFound) {
			return false, nil
		}
		return false, err
	}
	tx, err := swap.DecodeTx(txHex)
	if err != nil {
		return false, err
	}
	if int(in.Index) >= len(tx.Outputs) {
		return false, nil
	}
	out := tx.Outputs[in.Index]
	return swap.AssetFromBytes(out.Asset) == in.Asset &&
		swap.ValueFromBytes(out.Value) == in.Value &&
		hex.EncodeToString(out.Script) == hex.EncodeToString(in.Script), nil
}

func (s *service) listUnspents(ctx context.Context) ([]explorer.Utxo, error) {
	addresses, err := s.vault.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	if len(addresses) <= 0 {
		return nil, nil
	}
	addrs := make([]string, 0, len(addresses))
	for _, a := range addresses {
		addrs = append(addrs, a.Address)
	}
	return s.explorerSvc.GetUnspentsForAddresses(addrs)
}

func (s *service) release(key lockKey) {
	for _, in := range s.selections[key] {
		if s.locked[in.Key()] == key {
			delete(s.locked, in.Key())
		}
	}
	delete(s.selections, key)
}

func covers(ins []domain.Input, asset string, amount uint64) bool {
	var total uint64
	for _, in := range ins {
		if in.Asset != asset {
			return false
		}
		total += in.Value
	}
	return total >= amount
}

func copyInputs(ins []domain.Input) []domain.Input {
	c := make([]domain.Input, len(ins))
	copy(c, ins)
	return c
}
