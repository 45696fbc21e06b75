package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
	"golang.org/x/sync/semaphore"
)

// TradeProtocol drives one trade: it maps every local event or inbound
// message to the sequence of tasks to run, and runs them while holding the
// trade's execution token, so that at most one runner or listener callback
// mutates the trade at a time.
type TradeProtocol struct {
	cfg          *Config
	trade        *domain.Trade
	model        *ProcessModel
	token        *semaphore.Weighted
	tradeManager ports.TradeManager
	bus          *eventBus
	logger       *log.Entry

	snapshot atomic.Value

	lock      sync.Mutex
	listeners map[string]func()
	closed    bool
}

func newTradeProtocol(
	trade *domain.Trade, cfg *Config, tradeManager ports.TradeManager,
	bus *eventBus,
) *TradeProtocol {
	p := &TradeProtocol{
		cfg:          cfg,
		trade:        trade,
		token:        semaphore.NewWeighted(1),
		tradeManager: tradeManager,
		bus:          bus,
		listeners:    make(map[string]func()),
	}
	p.model = newProcessModel(trade, cfg, p.storeSnapshot, p.watchTx)
	p.logger = p.model.logger
	p.storeSnapshot(trade.Copy())
	return p
}

// GetTrade returns the last persisted snapshot of the trade.
func (p *TradeProtocol) GetTrade() *domain.Trade {
	snapshot := p.snapshot.Load().(domain.Trade)
	trade := snapshot.Copy()
	return &trade
}

// sync waits for the outcome of the last run to be applied to the trade.
func (p *TradeProtocol) sync(ctx context.Context) error {
	if err := p.token.Acquire(ctx, 1); err != nil {
		return err
	}
	p.token.Release(1)
	return nil
}

func (p *TradeProtocol) storeSnapshot(trade domain.Trade) {
	p.snapshot.Store(trade)
}

// execute starts the run for the given event and returns its runner. The
// returned error tells that the event was rejected and nothing was run.
func (p *TradeProtocol) execute(
	ctx context.Context, ev event,
) (*taskrunner.Runner, error) {
	if err := p.token.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if err := p.dispatch(ev); err != nil {
		p.token.Release(1)
		p.logger.WithError(err).WithField("step", ev.step).Warn("event rejected")
		if ev.in != nil {
			p.sendAck(*ev.in, err)
		}
		return nil, err
	}

	f, _ := flowFor(p.trade, ev.step)
	start := time.Now()
	runner := taskrunner.NewRunner(
		fmt.Sprintf("%s:%s", p.trade.ID, ev.step),
		taskrunner.Handler{
			OnSuccess: func() { p.onRunSuccess(ev, start) },
			OnFault: func(task string, err error) {
				p.onRunFault(ev, f, task, err)
			},
		},
		taskrunner.Options{
			Timeout:     p.cfg.TaskTimeout,
			Interceptor: p.cfg.Interceptor,
			OnTaskCompleted: func(task string) {
				if !f.dispute {
					p.trade.SetLastTask(task)
				}
				p.model.persist()
			},
			OnLateCallback: p.cfg.Metrics.LateCallback,
		},
		f.tasks(p.model, ev)...,
	)

	if err := runner.Run(context.Background()); err != nil {
		p.token.Release(1)
		return nil, err
	}
	return runner, nil
}

// dispatch checks the event can be handled in the current state of the
// trade. It must be called while holding the token.
func (p *TradeProtocol) dispatch(ev event) error {
	t := p.trade

	if ev.in != nil {
		msg := ev.in.Message
		if msg.GetTradeId() != t.ID {
			return ErrTradeIDMismatch
		}
		if len(t.Peer.PubKey) > 0 {
			if !bytes.Equal(t.Peer.PubKey, ev.in.SenderPubKey) {
				return ErrInvalidSender
			}
			if t.UpdatePeerAddress(ev.in.Sender) {
				p.logger.WithField("address", ev.in.Sender).Info("peer address updated")
				p.model.persist()
			}
		}
	}

	f, ok := flowFor(t, ev.step)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, ev.step)
	}
	if t.IsCompleted() || (t.IsFailed() && !f.dispute) {
		return ErrTradeClosed
	}
	if ev.step == StepResume && !f.accepts(t) {
		return ErrNothingToResume
	}
	if !f.accepts(t) {
		return fmt.Errorf(
			"%w: %s in phase %s for %s %s",
			ErrUnexpectedMessage, ev.step, t.Status.Phase, t.Side, t.Direction,
		)
	}
	return nil
}

func (p *TradeProtocol) onRunSuccess(ev event, start time.Time) {
	defer p.token.Release(1)

	p.trade.ClearError()
	p.model.persist()
	p.cfg.Metrics.RunCompleted(
		p.trade.Variant.String(), string(ev.step), time.Since(start),
	)
	if ev.in != nil {
		p.sendAck(*ev.in, nil)
	}
	p.notify()
}

func (p *TradeProtocol) onRunFault(ev event, f flow, task string, err error) {
	defer p.token.Release(1)

	reason := fmt.Sprintf("An error occurred at task %s: %s", task, err)
	var timeoutErr *taskrunner.TimeoutError
	if errors.As(err, &timeoutErr) {
		reason = timeoutErr.Error()
	}

	var deliveryErr *deliveryError
	if errors.As(err, &deliveryErr) {
		p.trade.SetMessageState(deliveryErr.msgType, domain.MessageStateSendFailed)
	}
	if f.compensate != nil {
		f.compensate(context.Background(), p.model)
	}
	if failsTrade(p.trade, err) {
		p.trade.Fail(reason)
	} else {
		p.trade.AppendError(reason)
	}
	p.model.persist()
	p.cfg.Metrics.RunFailed(p.trade.Variant.String(), string(ev.step), task)

	if ev.in != nil {
		p.sendAck(*ev.in, err)
	}
	p.notify()
}

// failsTrade returns whether a run fault closes the trade for good. A swap
// fails on any fault until its tx is finalized. Afterwards the tx may still
// get published and the trade stays open for the listener to complete it.
func failsTrade(t *domain.Trade, err error) bool {
	if isUnrecoverable(err) {
		return true
	}
	return t.IsSwap() && !t.HasReached(domain.PhaseTxFinalized)
}

// notify informs the trade manager if the trade closed, or publishes an
// update otherwise. It must be called while holding the token.
func (p *TradeProtocol) notify() {
	trade := p.trade.Copy()
	switch {
	case trade.IsCompleted():
		p.stopListeners()
		p.tradeManager.OnTradeCompleted(trade)
	case trade.IsFailed():
		p.stopListeners()
		p.tradeManager.OnTradeFailed(trade)
	default:
		p.bus.publish(ports.TopicTradeUpdated, trade)
	}
}

// sendAck reports the outcome of processing the given message to its sender.
// Acks are never acked back.
func (p *TradeProtocol) sendAck(in ports.InboundMessage, err error) {
	sendAck(p.cfg.Transport, in, err)
}

func sendAck(transport ports.Transport, in ports.InboundMessage, err error) {
	msg := in.Message
	if msg == nil || msg.Type() == domain.MsgAck {
		return
	}
	ack := &domain.AckMessage{
		Header:     domain.NewHeader(msg.GetTradeId()),
		SourceID:   msg.GetId(),
		SourceType: msg.Type(),
		Success:    err == nil,
	}
	if err != nil {
		ack.ErrorMessage = err.Error()
	}

	logger := log.WithFields(log.Fields{
		"trade_id": msg.GetTradeId(),
		"source":   msg.Type(),
	})
	transport.SendMailbox(
		context.Background(), in.Sender, in.SenderPubKey, ack,
		ports.SendListener{
			OnArrived:         func() { logger.Debug("ack delivered") },
			OnStoredInMailbox: func() { logger.Debug("ack stored in mailbox") },
			OnFault: func(err error) {
				logger.WithError(err).Warn("failed to deliver ack")
			},
		},
	)
}

// handleAck records the delivery state of the message an ack refers to.
// No runner is involved.
func (p *TradeProtocol) handleAck(in ports.InboundMessage) error {
	ack, ok := in.Message.(*domain.AckMessage)
	if !ok {
		return domain.ErrMalformedMessage
	}
	if err := p.token.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer p.token.Release(1)

	if ack.GetTradeId() != p.trade.ID {
		return ErrTradeIDMismatch
	}
	if !bytes.Equal(p.trade.Peer.PubKey, in.SenderPubKey) {
		return ErrInvalidSender
	}

	state := domain.MessageStateAcknowledged
	if !ack.Success {
		state = domain.MessageStateFailedAck
		p.logger.WithFields(log.Fields{
			"message": ack.SourceType,
			"error":   ack.ErrorMessage,
		}).Warn("peer failed to process message")
	}
	p.trade.SetMessageState(ack.SourceType, state)
	p.model.persist()
	p.bus.publish(ports.TopicTradeUpdated, p.trade.Copy())
	return nil
}

// watchTx subscribes to the confidence of a trade tx. A tx is watched at
// most once at a time.
func (p *TradeProtocol) watchTx(kind txKind, txid string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return
	}
	if _, ok := p.listeners[txid]; ok {
		return
	}

	handler := func(txid string, confidence ports.Confidence) {
		go p.onConfidence(kind, txid, confidence)
	}
	p.listeners[txid] = p.cfg.Wallet.SubscribeConfidence(txid, handler)
	p.logger.WithFields(log.Fields{
		"tx":   kind,
		"txid": txid,
	}).Debug("watching tx confidence")

	go func() {
		confidence, err := p.cfg.Wallet.Confidence(context.Background(), txid)
		if err != nil {
			p.logger.WithError(err).Warnf("failed to get %s tx confidence", kind)
			return
		}
		handler(txid, confidence)
	}()
}

func (p *TradeProtocol) unwatchTx(txid string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if unsubscribe, ok := p.listeners[txid]; ok {
		unsubscribe()
		delete(p.listeners, txid)
	}
}

func (p *TradeProtocol) stopListeners() {
	p.lock.Lock()
	defer p.lock.Unlock()

	for txid, unsubscribe := range p.listeners {
		unsubscribe()
		delete(p.listeners, txid)
	}
}

func (p *TradeProtocol) close() {
	p.stopListeners()
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
}

// onConfidence applies the transition matching the new confidence of a
// watched tx, unless already applied.
func (p *TradeProtocol) onConfidence(
	kind txKind, txid string, confidence ports.Confidence,
) {
	if err := p.token.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer p.token.Release(1)

	logger := p.logger.WithFields(log.Fields{
		"tx":         kind,
		"txid":       txid,
		"confidence": confidence,
	})

	if p.trade.IsClosed() {
		p.unwatchTx(txid)
		return
	}
	if confidence == ports.ConfidenceDead {
		logger.Warn("watched tx was rejected")
		p.trade.AppendError(fmt.Sprintf("The %s tx %s was rejected.", kind, txid))
		p.model.persist()
		p.unwatchTx(txid)
		p.notify()
		return
	}

	phases, done := confidencePhases(kind, confidence)
	changed := false
	for _, phase := range phases {
		ok, err := p.trade.Advance(phase)
		if err != nil {
			logger.WithError(err).Warn("failed to apply tx confidence")
			return
		}
		changed = changed || ok
	}
	if done {
		p.unwatchTx(txid)
	}
	if !changed {
		return
	}

	logger.WithField("phase", p.trade.Status.Phase).Info("trade updated by tx confidence")
	p.model.persist()
	p.notify()
}

// confidencePhases returns the phases the trade reaches for the given
// confidence of one of its txs, and whether the tx needs no more watching.
func confidencePhases(
	kind txKind, confidence ports.Confidence,
) ([]domain.Phase, bool) {
	published := confidence.IsPublished()
	confirmed := confidence == ports.ConfidenceBuilding

	switch kind {
	case txDeposit:
		if confirmed {
			return []domain.Phase{
				domain.PhaseDepositPublished, domain.PhaseDepositConfirmed,
			}, true
		}
		if published {
			return []domain.Phase{domain.PhaseDepositPublished}, false
		}
	case txPayout:
		if confirmed {
			return []domain.Phase{
				domain.PhasePayoutPublished, domain.PhaseCompleted,
			}, true
		}
		if published {
			return []domain.Phase{domain.PhasePayoutPublished}, false
		}
	case txSwap:
		if published {
			return []domain.Phase{domain.PhaseCompleted}, true
		}
	}
	return nil, false
}

// restore re-arms the confidence listeners of the txs of an open trade. A
// fee tx is not watched: the interrupted step is resumed instead, so that
// the maker's offer goes back to the book along with the fee being paid.
func (p *TradeProtocol) restore() {
	t := p.trade
	if t.IsClosed() {
		return
	}

	if t.IsSwap() {
		if !t.SwapTx.IsEmpty() && t.HasReached(domain.PhaseTxFinalized) {
			p.watchTx(txSwap, t.SwapTx.ID)
		}
		return
	}

	if !t.DepositTx.IsEmpty() && t.HasReached(domain.PhaseFeePaid) &&
		!t.HasReached(domain.PhaseDepositConfirmed) {
		p.watchTx(txDeposit, t.DepositTx.ID)
	}
	if !t.PayoutTx.IsEmpty() && t.HasReached(domain.PhasePaymentStarted) {
		p.watchTx(txPayout, t.PayoutTx.ID)
	}
}
