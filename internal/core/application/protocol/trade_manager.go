package protocol

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

// tradeManager is the default handler of closed trades: it releases the
// inputs the wallet locked for the trade and publishes the closing event.
type tradeManager struct {
	wallet  ports.Wallet
	metrics ports.Metrics
	bus     *eventBus
	next    ports.TradeManager
}

func newTradeManager(
	wallet ports.Wallet, metrics ports.Metrics, bus *eventBus,
	next ports.TradeManager,
) ports.TradeManager {
	return &tradeManager{wallet, metrics, bus, next}
}

func (m *tradeManager) OnTradeCompleted(trade domain.Trade) {
	log.WithField("trade_id", trade.ID).Info("trade completed")
	m.close(trade, ports.TopicTradeCompleted)
	if m.next != nil {
		m.next.OnTradeCompleted(trade)
	}
}

func (m *tradeManager) OnTradeFailed(trade domain.Trade) {
	log.WithFields(log.Fields{
		"trade_id": trade.ID,
		"phase":    trade.Status.Phase,
		"error":    trade.ErrorMessage,
	}).Warn("trade failed")
	m.close(trade, ports.TopicTradeFailed)
	if m.next != nil {
		m.next.OnTradeFailed(trade)
	}
}

func (m *tradeManager) close(trade domain.Trade, topic string) {
	if err := m.wallet.UnlockInputs(context.Background(), trade.ID); err != nil {
		log.WithError(err).WithField("trade_id", trade.ID).Warn(
			"failed to unlock trade inputs",
		)
	}
	m.metrics.TradeClosed(trade.Variant.String(), trade.IsFailed())
	m.bus.publish(topic, trade)
}
