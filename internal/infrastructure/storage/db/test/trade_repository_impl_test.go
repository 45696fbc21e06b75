package db_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	dbbadger "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/inmemory"
)

var ctx = context.Background()

type tradeRepository struct {
	Name       string
	Repository domain.TradeRepository
}

func TestTradeRepositoryImplementations(t *testing.T) {
	repositories := createTradeRepositories(t)

	for i := range repositories {
		repo := repositories[i]

		t.Run(repo.Name, func(t *testing.T) {
			t.Parallel()

			t.Run("testAddTrade", func(t *testing.T) {
				t.Parallel()
				testAddTrade(t, repo)
			})

			t.Run("testGetOpenTrades", func(t *testing.T) {
				t.Parallel()
				testGetOpenTrades(t, repo)
			})

			t.Run("testUpdateTrade", func(t *testing.T) {
				t.Parallel()
				testUpdateTrade(t, repo)
			})

			t.Run("testUpdateTrade_rollback", func(t *testing.T) {
				t.Parallel()
				testUpdateTradeRollback(t, repo)
			})
		})
	}
}

func testAddTrade(t *testing.T, repo tradeRepository) {
	trade := makeRandomTrade()

	err := repo.Repository.AddTrade(ctx, trade)
	require.NoError(t, err)

	err = repo.Repository.AddTrade(ctx, trade)
	require.ErrorIs(t, err, domain.ErrTradeAlreadyExists)

	stored, err := repo.Repository.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, trade.ID, stored.ID)
	require.Equal(t, trade.Contract.Amount, stored.Contract.Amount)
	require.True(t, trade.Contract.FeeRate.Equal(stored.Contract.FeeRate))
	require.Equal(t, trade.Self.PubKey, stored.Self.PubKey)

	_, err = repo.Repository.GetTrade(ctx, randomId())
	require.ErrorIs(t, err, domain.ErrTradeNotFound)

	trades, err := repo.Repository.GetAllTrades(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, trades)
}

func testGetOpenTrades(t *testing.T, repo tradeRepository) {
	open, completed, failed := makeRandomTrade(), makeRandomTrade(), makeRandomTrade()
	for _, p := range []domain.Phase{
		domain.PhaseInputsExchanged, domain.PhaseTxFinalized, domain.PhaseCompleted,
	} {
		_, err := completed.Advance(p)
		require.NoError(t, err)
	}
	failed.Fail("peer went away")

	for _, trade := range []*domain.Trade{open, completed, failed} {
		err := repo.Repository.AddTrade(ctx, trade)
		require.NoError(t, err)
	}

	trades, err := repo.Repository.GetOpenTrades(ctx)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, trade := range trades {
		require.False(t, trade.IsClosed())
		ids[trade.ID] = true
	}
	require.True(t, ids[open.ID])
	require.False(t, ids[completed.ID])
	require.False(t, ids[failed.ID])
}

func testUpdateTrade(t *testing.T, repo tradeRepository) {
	trade := makeRandomTrade()
	err := repo.Repository.AddTrade(ctx, trade)
	require.NoError(t, err)

	err = repo.Repository.UpdateTrade(
		ctx, trade.ID, func(tr *domain.Trade) (*domain.Trade, error) {
			if _, err := tr.Advance(domain.PhaseInputsExchanged); err != nil {
				return nil, err
			}
			tr.SetMessageState(domain.MsgSwapTxResponse, domain.MessageStateArrived)
			return tr, nil
		},
	)
	require.NoError(t, err)

	stored, err := repo.Repository.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseInputsExchanged, stored.Status.Phase)
	require.Equal(
		t, domain.MessageStateArrived, stored.MessageState(domain.MsgSwapTxResponse),
	)

	err = repo.Repository.UpdateTrade(
		ctx, randomId(), func(tr *domain.Trade) (*domain.Trade, error) {
			return tr, nil
		},
	)
	require.ErrorIs(t, err, domain.ErrTradeNotFound)
}

func testUpdateTradeRollback(t *testing.T, repo tradeRepository) {
	trade := makeRandomTrade()
	err := repo.Repository.AddTrade(ctx, trade)
	require.NoError(t, err)

	err = repo.Repository.UpdateTrade(
		ctx, trade.ID, func(tr *domain.Trade) (*domain.Trade, error) {
			tr.Fail("something went wrong")
			return nil, fmt.Errorf("rollback")
		},
	)
	require.Error(t, err)

	stored, err := repo.Repository.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.False(t, stored.IsFailed())
}

func createTradeRepositories(t *testing.T) []tradeRepository {
	dbManager, err := dbbadger.NewDbManager("", nil)
	require.NoError(t, err)
	t.Cleanup(dbManager.Close)

	return []tradeRepository{
		{
			Name:       "badger",
			Repository: dbbadger.NewTradeRepositoryImpl(dbManager),
		},
		{
			Name:       "inmemory",
			Repository: inmemory.NewTradeRepositoryImpl(),
		},
	}
}
