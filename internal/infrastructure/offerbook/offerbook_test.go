package offerbook_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/offerbook"
)

func TestOfferBook(t *testing.T) {
	ctx := context.Background()
	book := offerbook.NewOfferBook()

	offers := []domain.Offer{newSwapOffer("offer-2"), newSwapOffer("offer-1")}
	for _, o := range offers {
		require.NoError(t, book.AddOffer(ctx, o))
	}

	list, err := book.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "offer-2", list[0].ID)
	require.Equal(t, "offer-1", list[1].ID)

	offer, err := book.GetOffer(ctx, "offer-1")
	require.NoError(t, err)
	require.NotNil(t, offer)
	require.Equal(t, offers[1].Contract.Amount, offer.Contract.Amount)

	require.NoError(t, book.RemoveOffer(ctx, "offer-1"))
	require.NoError(t, book.RemoveOffer(ctx, "offer-1"))

	offer, err = book.GetOffer(ctx, "offer-1")
	require.NoError(t, err)
	require.Nil(t, offer)

	invalid := newSwapOffer("offer-3")
	invalid.Contract.Amount = 0
	require.Error(t, book.AddOffer(ctx, invalid))
}

func newSwapOffer(id string) domain.Offer {
	return domain.Offer{
		ID:        id,
		Variant:   domain.VariantSwap,
		Direction: domain.DirectionSell,
		Contract: domain.Contract{
			Network:     "regtest",
			BaseAsset:   "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225",
			QuoteAsset:  "0e99c1a6da379d1f4151fb9df90449d40d0608f6cb33a5bcbfc8c265f42bab0a",
			Amount:      100000,
			QuoteAmount: 5000000,
			FeeRate:     decimal.NewFromFloat(0.1),
		},
		MakerAddress: "ws://localhost:9945/p2p",
		MakerPubKey:  []byte{0x02},
	}
}
