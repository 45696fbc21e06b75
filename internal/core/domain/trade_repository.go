package domain

import "context"

// TradeRepository is the abstraction for any kind of database intended to
// persist Trades.
type TradeRepository interface {
	// AddTrade stores a new trade. It fails with ErrTradeAlreadyExists if a
	// trade with the same id is already stored.
	AddTrade(ctx context.Context, trade *Trade) error
	// GetTrade returns the trade with the given id or ErrTradeNotFound.
	GetTrade(ctx context.Context, tradeID string) (*Trade, error)
	// GetAllTrades returns all the stored trades.
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	// GetOpenTrades returns the trades that are neither completed nor
	// failed, those that must be resumed at startup.
	GetOpenTrades(ctx context.Context) ([]*Trade, error)
	// UpdateTrade allows to commit multiple changes to the same trade in a
	// transactional way.
	UpdateTrade(
		ctx context.Context,
		tradeID string,
		updateFn func(t *Trade) (*Trade, error),
	) error
}
