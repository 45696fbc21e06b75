package ports

import (
	"context"
	"time"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

// Persistence stores trade snapshots in background. Requests never block and
// consecutive requests for the same trade can be coalesced.
type Persistence interface {
	RequestPersistence(trade domain.Trade)
}

// TradeManager is notified when a trade closes.
type TradeManager interface {
	OnTradeCompleted(trade domain.Trade)
	OnTradeFailed(trade domain.Trade)
}

// OfferBook is where makers publish their offers and takers find them.
type OfferBook interface {
	AddOffer(ctx context.Context, offer domain.Offer) error
	RemoveOffer(ctx context.Context, offerID string) error
	GetOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	ListOffers(ctx context.Context) ([]domain.Offer, error)
}

// BackupStorage keeps encrypted blobs on behalf of the node, like the
// time-locked recovery txs of escrow trades.
type BackupStorage interface {
	Publish(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Metrics collects the engine's counters.
type Metrics interface {
	RunCompleted(variant, step string, elapsed time.Duration)
	RunFailed(variant, step, task string)
	LateCallback(task string)
	TradeClosed(variant string, failed bool)
}
