package crawler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/crawler"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	txid      = "0000000000000000000000000000000000000000000000000000000000000001"
	prevTxid  = "0000000000000000000000000000000000000000000000000000000000000002"
	otherTxid = "0000000000000000000000000000000000000000000000000000000000000003"
)

func newCrawler(explorerSvc explorer.Service) crawler.Service {
	return crawler.NewService(crawler.Opts{
		ExplorerSvc:        explorerSvc,
		CrawlerInterval:    20 * time.Millisecond,
		ExplorerLimit:      100,
		ExplorerTokenBurst: 10,
	})
}

func nextEvent(t *testing.T, svc crawler.Service) crawler.TransactionEvent {
	select {
	case ev := <-svc.GetEventChannel():
		txEvent, ok := ev.(crawler.TransactionEvent)
		require.True(t, ok, "unexpected event %s", ev.Type())
		return txEvent
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for crawler event")
	}
	return crawler.TransactionEvent{}
}

func TestTransactionObservable(t *testing.T) {
	explorerSvc := &mockExplorer{}
	explorerSvc.On("GetTransactionStatus", txid).
		Return(nil, explorer.ErrTransactionNotFound).Times(2)
	explorerSvc.On("GetTransactionStatus", txid).
		Return(txStatus{false, -1}, nil).Times(2)
	explorerSvc.On("GetTransactionStatus", txid).
		Return(txStatus{true, 100}, nil)

	svc := newCrawler(explorerSvc)
	go svc.Start()
	defer svc.Stop()

	obs := crawler.NewTransactionObservable(txid, "")
	svc.AddObservable(obs)
	require.True(t, svc.IsObserving(obs))

	// Events are emitted only when the status changes.
	ev := nextEvent(t, svc)
	require.Equal(t, crawler.TransactionUnknown, ev.EventType)
	ev = nextEvent(t, svc)
	require.Equal(t, crawler.TransactionUnconfirmed, ev.EventType)
	ev = nextEvent(t, svc)
	require.Equal(t, crawler.TransactionConfirmed, ev.EventType)
	require.Equal(t, 100, ev.BlockHeight)

	svc.RemoveObservable(obs)
	require.False(t, svc.IsObserving(obs))
}

func TestDeadTransaction(t *testing.T) {
	prevHash, err := swap.TxIDToBytes(prevTxid)
	require.NoError(t, err)
	tx := transaction.NewTx(2)
	tx.AddInput(transaction.NewTxInput(prevHash, 1))
	txHex, err := tx.ToHex()
	require.NoError(t, err)

	explorerSvc := &mockExplorer{}
	explorerSvc.On("GetTransactionStatus", mock.Anything).
		Return(nil, explorer.ErrTransactionNotFound)
	explorerSvc.On("GetUnspentStatus", prevTxid, uint32(1)).
		Return(utxoStatus{true, otherTxid}, nil)

	svc := newCrawler(explorerSvc)
	go svc.Start()
	defer svc.Stop()

	svc.AddObservable(crawler.NewTransactionObservable(txid, txHex))

	ev := nextEvent(t, svc)
	require.Equal(t, crawler.TransactionDead, ev.EventType)
	require.Equal(t, otherTxid, ev.SpentBy)
}

func TestCrawlerErrors(t *testing.T) {
	errs := make(chan error, 10)
	explorerSvc := &mockExplorer{}
	explorerSvc.On("GetTransactionStatus", mock.Anything).
		Return(nil, errExplorerDown)

	svc := crawler.NewService(crawler.Opts{
		ExplorerSvc:     explorerSvc,
		CrawlerInterval: 20 * time.Millisecond,
		ErrorHandler: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	go svc.Start()

	svc.AddObservable(crawler.NewTransactionObservable(txid, ""))

	select {
	case err := <-errs:
		require.ErrorIs(t, err, errExplorerDown)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for crawler error")
	}

	svc.Stop()
	ev := <-svc.GetEventChannel()
	require.Equal(t, crawler.QuitSignal, ev.Type())
}
