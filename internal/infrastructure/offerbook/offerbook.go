package offerbook

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

type offerBook struct {
	lock    sync.RWMutex
	offers  map[string]domain.Offer
	created map[string]int64
	counter int64
}

// NewOfferBook returns an in-memory offer book. The same instance can be
// shared by several engines to make them see each other's offers.
func NewOfferBook() ports.OfferBook {
	return &offerBook{
		offers:  make(map[string]domain.Offer),
		created: make(map[string]int64),
	}
}

// AddOffer adds or replaces the offer.
func (b *offerBook) AddOffer(_ context.Context, offer domain.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.offers[offer.ID]; !ok {
		b.counter++
		b.created[offer.ID] = b.counter
	}
	b.offers[offer.ID] = offer
	return nil
}

// RemoveOffer is a no-op if the offer does not exist.
func (b *offerBook) RemoveOffer(_ context.Context, offerID string) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	delete(b.offers, offerID)
	delete(b.created, offerID)
	return nil
}

// GetOffer returns nil if the offer does not exist.
func (b *offerBook) GetOffer(
	_ context.Context, offerID string,
) (*domain.Offer, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	offer, ok := b.offers[offerID]
	if !ok {
		return nil, nil
	}
	return &offer, nil
}

// ListOffers returns the offers in the order they were added.
func (b *offerBook) ListOffers(_ context.Context) ([]domain.Offer, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	offers := make([]domain.Offer, 0, len(b.offers))
	for _, o := range b.offers {
		offers = append(offers, o)
	}
	sort.Slice(offers, func(i, j int) bool {
		return b.created[offers[i].ID] < b.created[offers[j].ID]
	})
	return offers, nil
}
