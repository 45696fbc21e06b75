package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/vulpemventures/go-elements/transaction"
	"golang.org/x/time/rate"
)

const (
	New       Status = "NEW"
	Waiting   Status = "WAITING"
	Processed Status = "PROCESSED"
)

type Status string

type observableStatus struct {
	sync.RWMutex
	status Status
}

func NewObservableStatus() *observableStatus {
	return &observableStatus{
		status: New,
	}
}

func (o *observableStatus) Get() Status {
	o.RLock()
	defer o.RUnlock()
	return o.status
}

func (o *observableStatus) Set(status Status) {
	o.Lock()
	defer o.Unlock()
	o.status = status
}

// TransactionObservable watches the status of a tx. An event is emitted at
// the first observation and then only if the status changes.
// If the tx is unknown to the explorer and its hex is given, the observable
// checks whether any of its inputs has been spent by another tx, in which
// case the tx is reported as dead.
type TransactionObservable struct {
	TxID  string
	TxHex string

	lastEvent *TransactionEvent
}

func NewTransactionObservable(txid, txHex string) *TransactionObservable {
	return &TransactionObservable{TxID: txid, TxHex: txHex}
}

func (t *TransactionObservable) observe(
	explorerSvc explorer.Service,
	errChan chan error,
	eventChan chan Event,
	observableStatus *observableStatus,
	rateLimiter *rate.Limiter,
) {
	if t == nil {
		return
	}

	observableStatus.Set(Waiting)
	defer observableStatus.Set(Processed)

	if err := rateLimiter.Wait(context.Background()); err != nil {
		errChan <- err
		return
	}

	event, err := t.getEvent(explorerSvc)
	if err != nil {
		errChan <- err
		return
	}

	if t.lastEvent != nil && *t.lastEvent == event {
		return
	}
	t.lastEvent = &event
	eventChan <- event
}

func (t *TransactionObservable) getEvent(
	explorerSvc explorer.Service,
) (TransactionEvent, error) {
	txStatus, err := explorerSvc.GetTransactionStatus(t.TxID)
	if err != nil {
		if !errors.Is(err, explorer.ErrTransactionNotFound) {
			return TransactionEvent{}, err
		}
		spentBy, err := t.getDoubleSpendingTx(explorerSvc)
		if err != nil {
			return TransactionEvent{}, err
		}
		if spentBy != "" {
			return TransactionEvent{
				TxID: t.TxID, EventType: TransactionDead, SpentBy: spentBy,
			}, nil
		}
		return TransactionEvent{TxID: t.TxID, EventType: TransactionUnknown}, nil
	}

	if !txStatus.Confirmed() {
		return TransactionEvent{
			TxID: t.TxID, EventType: TransactionUnconfirmed,
		}, nil
	}
	return TransactionEvent{
		TxID:        t.TxID,
		EventType:   TransactionConfirmed,
		BlockHash:   txStatus.BlockHash(),
		BlockHeight: txStatus.BlockHeight(),
		BlockTime:   txStatus.BlockTime(),
	}, nil
}

func (t *TransactionObservable) getDoubleSpendingTx(
	explorerSvc explorer.Service,
) (string, error) {
	if len(t.TxHex) <= 0 {
		return "", nil
	}
	tx, err := transaction.NewTxFromHex(t.TxHex)
	if err != nil {
		return "", err
	}

	for _, in := range tx.Inputs {
		prevoutTxid := swap.TxIDFromBytes(in.Hash)

		status, err := explorerSvc.GetUnspentStatus(prevoutTxid, in.Index)
		if err != nil {
			if errors.Is(err, explorer.ErrTransactionNotFound) {
				continue
			}
			return "", err
		}
		if status.Spent() && status.Hash() != t.TxID {
			return status.Hash(), nil
		}
	}
	return "", nil
}

func (t *TransactionObservable) key() string {
	return t.TxID
}

type observableHandler struct {
	observable       Observable
	explorerSvc      explorer.Service
	wg               *sync.WaitGroup
	ticker           *time.Ticker
	eventChan        chan Event
	errChan          chan error
	stopChan         chan struct{}
	observableStatus *observableStatus
	rateLimiter      *rate.Limiter
}

func newObservableHandler(
	observable Observable,
	explorerSvc explorer.Service,
	wg *sync.WaitGroup,
	interval time.Duration,
	eventChan chan Event,
	errChan chan error,
	rateLimiter *rate.Limiter,
) *observableHandler {
	return &observableHandler{
		observable,
		explorerSvc,
		wg,
		time.NewTicker(interval),
		eventChan,
		errChan,
		make(chan struct{}),
		NewObservableStatus(),
		rateLimiter,
	}
}

func (oh *observableHandler) start() {
	defer oh.wg.Done()
	log.Debugf("start observing tx: %v", oh.observable.key())

	oh.observe()
	for {
		select {
		case <-oh.ticker.C:
			oh.observe()
		case <-oh.stopChan:
			oh.ticker.Stop()
			log.Debugf("stop observing tx: %v", oh.observable.key())
			return
		}
	}
}

func (oh *observableHandler) observe() {
	if oh.observableStatus.Get() == Waiting {
		return
	}
	oh.observable.observe(
		oh.explorerSvc,
		oh.errChan,
		oh.eventChan,
		oh.observableStatus,
		oh.rateLimiter,
	)
}

func (oh *observableHandler) stop() {
	close(oh.stopChan)
}
