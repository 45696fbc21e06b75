package dbbadger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type tradeRepositoryImpl struct {
	store *badgerhold.Store
}

// NewTradeRepositoryImpl returns a badgerhold TradeRepository implementation.
func NewTradeRepositoryImpl(db *DbManager) domain.TradeRepository {
	return tradeRepositoryImpl{db.TradeStore}
}

func (r tradeRepositoryImpl) AddTrade(
	ctx context.Context, trade *domain.Trade,
) error {
	if err := r.store.Insert(trade.ID, trade.Copy()); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrTradeAlreadyExists
		}
		return err
	}
	return nil
}

func (r tradeRepositoryImpl) GetTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	var trade domain.Trade
	if err := r.store.Get(tradeID, &trade); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (r tradeRepositoryImpl) GetAllTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	return r.findTrades(nil)
}

func (r tradeRepositoryImpl) GetOpenTrades(
	ctx context.Context,
) ([]*domain.Trade, error) {
	query := badgerhold.Where("Status.Failed").Eq(false).
		And("Status.Phase").Ne(domain.PhaseCompleted)
	return r.findTrades(query)
}

func (r tradeRepositoryImpl) UpdateTrade(
	ctx context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var current domain.Trade
		if err := r.store.TxGet(tx, tradeID, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrTradeNotFound
			}
			return err
		}

		updated, err := updateFn(&current)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, tradeID, updated.Copy())
	})
}

func (r tradeRepositoryImpl) findTrades(
	query *badgerhold.Query,
) ([]*domain.Trade, error) {
	var found []domain.Trade
	if err := r.store.Find(&found, query); err != nil {
		return nil, err
	}
	trades := make([]*domain.Trade, 0, len(found))
	for i := range found {
		trades = append(trades, &found[i])
	}
	return trades, nil
}
