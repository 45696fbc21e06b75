package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/persistence"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/inmemory"
)

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewTradeRepositoryImpl()
	svc := persistence.NewService(repo, time.Hour)
	t.Cleanup(svc.Close)

	trade, err := domain.NewMakerTrade(domain.Offer{
		ID:        "trade",
		Variant:   domain.VariantSwap,
		Direction: domain.DirectionSell,
		Contract: domain.Contract{
			BaseAsset:   "base",
			QuoteAsset:  "quote",
			Amount:      1000,
			QuoteAmount: 2000,
			FeeRate:     decimal.NewFromFloat(0.1),
		},
	})
	require.NoError(t, err)

	t.Run("coalesces snapshots", func(t *testing.T) {
		svc.RequestPersistence(trade.Copy())
		_, err := trade.Advance(domain.PhaseInputsExchanged)
		require.NoError(t, err)
		svc.RequestPersistence(trade.Copy())

		_, err = repo.GetTrade(ctx, trade.ID)
		require.ErrorIs(t, err, domain.ErrTradeNotFound)

		svc.Flush(ctx)

		stored, err := repo.GetTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.Equal(t, domain.PhaseInputsExchanged, stored.Status.Phase)
	})

	t.Run("updates stored trade", func(t *testing.T) {
		trade.Fail("timeout")
		svc.RequestPersistence(trade.Copy())
		svc.Flush(ctx)

		stored, err := repo.GetTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.True(t, stored.IsFailed())
		require.Equal(t, "timeout", stored.ErrorMessage)
	})
}

func TestPersistenceFlushLoop(t *testing.T) {
	repo := inmemory.NewTradeRepositoryImpl()
	svc := persistence.NewService(repo, 10*time.Millisecond)
	t.Cleanup(svc.Close)

	trade, err := domain.NewMakerTrade(domain.Offer{
		ID:        "trade",
		Variant:   domain.VariantSwap,
		Direction: domain.DirectionSell,
		Contract: domain.Contract{
			BaseAsset:   "base",
			QuoteAsset:  "quote",
			Amount:      1000,
			QuoteAmount: 2000,
			FeeRate:     decimal.NewFromFloat(0.1),
		},
	})
	require.NoError(t, err)

	svc.RequestPersistence(trade.Copy())
	require.Eventually(t, func() bool {
		_, err := repo.GetTrade(context.Background(), trade.ID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
