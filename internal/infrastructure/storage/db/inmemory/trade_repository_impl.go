package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

type tradeInmemoryStore struct {
	trades map[string]domain.Trade
	locker *sync.Mutex
}

type tradeRepositoryImpl struct {
	store *tradeInmemoryStore
}

// NewTradeRepositoryImpl returns a new inmemory TradeRepository
// implementation. Trades are stored and returned as copies.
func NewTradeRepositoryImpl() domain.TradeRepository {
	return &tradeRepositoryImpl{&tradeInmemoryStore{
		trades: make(map[string]domain.Trade),
		locker: &sync.Mutex{},
	}}
}

func (r *tradeRepositoryImpl) AddTrade(
	_ context.Context, trade *domain.Trade,
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.trades[trade.ID]; ok {
		return domain.ErrTradeAlreadyExists
	}
	r.store.trades[trade.ID] = trade.Copy()
	return nil
}

func (r *tradeRepositoryImpl) GetTrade(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	trade, ok := r.store.trades[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	t := trade.Copy()
	return &t, nil
}

func (r *tradeRepositoryImpl) GetAllTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	return r.findTrades(func(*domain.Trade) bool { return true }), nil
}

func (r *tradeRepositoryImpl) GetOpenTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	return r.findTrades(func(t *domain.Trade) bool { return !t.IsClosed() }), nil
}

func (r *tradeRepositoryImpl) UpdateTrade(
	_ context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	trade, ok := r.store.trades[tradeID]
	if !ok {
		return domain.ErrTradeNotFound
	}
	current := trade.Copy()
	updated, err := updateFn(&current)
	if err != nil {
		return err
	}
	r.store.trades[tradeID] = updated.Copy()
	return nil
}

func (r *tradeRepositoryImpl) findTrades(
	filter func(t *domain.Trade) bool,
) []*domain.Trade {
	trades := make([]*domain.Trade, 0, len(r.store.trades))
	for _, trade := range r.store.trades {
		t := trade.Copy()
		if filter(&t) {
			trades = append(trades, &t)
		}
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ID < trades[j].ID
	})
	return trades
}
