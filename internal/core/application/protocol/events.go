package protocol

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

const eventBufferSize = 64

// TradeEvent is published every time a trade is updated by a run or by a tx
// confidence change.
type TradeEvent struct {
	Topic string
	Trade domain.Trade
}

// EventPublisher delivers trade events to external subscribers, like
// webhooks.
type EventPublisher interface {
	PublishTradeEvent(topic string, trade domain.Trade) error
}

// eventBus fans out trade events to in-process subscribers and to the
// optional external publisher. Slow subscribers lose events rather than
// blocking the protocol.
type eventBus struct {
	publisher EventPublisher

	lock        sync.RWMutex
	subscribers map[string]chan TradeEvent
}

func newEventBus(publisher EventPublisher) *eventBus {
	return &eventBus{
		publisher:   publisher,
		subscribers: make(map[string]chan TradeEvent),
	}
}

func (b *eventBus) subscribe() (<-chan TradeEvent, func()) {
	id := uuid.New().String()
	ch := make(chan TradeEvent, eventBufferSize)

	b.lock.Lock()
	b.subscribers[id] = ch
	b.lock.Unlock()

	return ch, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
}

func (b *eventBus) publish(topic string, trade domain.Trade) {
	b.lock.RLock()
	for id, ch := range b.subscribers {
		select {
		case ch <- TradeEvent{topic, trade}:
		default:
			log.WithFields(log.Fields{
				"subscriber": id,
				"trade_id":   trade.ID,
			}).Warn("subscriber too slow, dropping trade event")
		}
	}
	b.lock.RUnlock()

	if b.publisher == nil {
		return
	}
	go func() {
		if err := b.publisher.PublishTradeEvent(topic, trade); err != nil {
			log.WithError(err).WithField("trade_id", trade.ID).Warn(
				"failed to publish trade event",
			)
		}
	}()
}

func (b *eventBus) close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
