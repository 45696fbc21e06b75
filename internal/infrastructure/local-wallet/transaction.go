package localwallet

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/crawler"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/vulpemventures/go-elements/transaction"
)

func (s *service) ParseTx(txHex string) (*transaction.Transaction, error) {
	return swap.DecodeTx(txHex)
}

// Broadcast publishes the tx in background and reports the outcome to the
// listener.
func (s *service) Broadcast(
	_ context.Context, txHex string, listener ports.BroadcastListener,
) {
	go func() {
		tx, err := swap.DecodeTx(txHex)
		if err != nil {
			listener.OnFault(err)
			return
		}
		txid := tx.TxHash().String()

		s.txLock.Lock()
		s.txHexByID[txid] = txHex
		s.txLock.Unlock()

		if _, err := s.explorerSvc.BroadcastTransaction(txHex); err != nil {
			log.WithError(err).WithField("txid", txid).Debug(
				"wallet: broadcast failed",
			)
			listener.OnFault(err)
			return
		}
		listener.OnSuccess(txid)
	}()
}

func (s *service) Confidence(
	_ context.Context, txid string,
) (ports.Confidence, error) {
	status, err := s.explorerSvc.GetTransactionStatus(txid)
	if err != nil {
		if !errors.Is(err, explorer.ErrTransactionNotFound) {
			return ports.ConfidenceUnknown, err
		}
		s.txLock.RLock()
		defer s.txLock.RUnlock()
		if c, ok := s.confidence[txid]; ok {
			return c, nil
		}
		return ports.ConfidenceUnknown, nil
	}
	if status.Confirmed() {
		return ports.ConfidenceBuilding, nil
	}
	return ports.ConfidencePending, nil
}

// SubscribeConfidence starts watching the tx, if not already watched, and
// registers the handler. The tx stops being watched once the last handler
// is removed.
func (s *service) SubscribeConfidence(
	txid string, handler ports.ConfidenceHandler,
) func() {
	s.txLock.Lock()
	defer s.txLock.Unlock()

	s.nextSubID++
	id := s.nextSubID
	if _, ok := s.subscribers[txid]; !ok {
		s.subscribers[txid] = make(map[int]ports.ConfidenceHandler)
	}
	s.subscribers[txid][id] = handler

	observable := crawler.NewTransactionObservable(txid, s.txHexByID[txid])
	s.crawlerSvc.AddObservable(observable)

	return func() {
		s.txLock.Lock()
		defer s.txLock.Unlock()

		handlers, ok := s.subscribers[txid]
		if !ok {
			return
		}
		delete(handlers, id)
		if len(handlers) <= 0 {
			delete(s.subscribers, txid)
			s.crawlerSvc.RemoveObservable(observable)
		}
	}
}
