package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

// Service is the entry point of the engine. It creates trades, routes local
// events and inbound messages to their TradeProtocol, and restores open
// trades at startup.
type Service struct {
	cfg          *Config
	repo         domain.TradeRepository
	bus          *eventBus
	tradeManager ports.TradeManager

	lock      sync.RWMutex
	protocols map[string]*TradeProtocol
}

// NewService returns a new engine and subscribes it to the transport's
// inbound messages.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bus := newEventBus(cfg.Publisher)
	svc := &Service{
		cfg:  &cfg,
		repo: cfg.Repository,
		bus:  bus,
		tradeManager: newTradeManager(
			cfg.Wallet, cfg.Metrics, bus, cfg.TradeManager,
		),
		protocols: make(map[string]*TradeProtocol),
	}
	cfg.Transport.Subscribe(svc.OnIncomingMessage)
	return svc, nil
}

// Restore reloads the open trades from the repository, re-arms the
// listeners of their published txs and resumes in background those
// interrupted in the middle of a step.
func (s *Service) Restore(ctx context.Context) error {
	trades, err := s.repo.GetOpenTrades(ctx)
	if err != nil {
		return err
	}

	interrupted := make([]*TradeProtocol, 0)
	s.lock.Lock()
	for _, trade := range trades {
		if _, ok := s.protocols[trade.ID]; ok {
			continue
		}
		p := newTradeProtocol(trade, s.cfg, s.tradeManager, s.bus)
		s.protocols[trade.ID] = p
		p.restore()
		if resumePointOf(trade) != resumeNone {
			interrupted = append(interrupted, p)
		}
	}
	s.lock.Unlock()

	log.Infof("restored %d open trades", len(trades))
	for _, p := range interrupted {
		go s.resume(p)
	}
	return nil
}

func (s *Service) resume(p *TradeProtocol) {
	trade, err := s.run(context.Background(), p, event{step: StepResume})
	logger := log.WithField("trade_id", trade.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to resume trade")
		return
	}
	logger.WithField("phase", trade.Status.Phase).Info("trade resumed")
}

// PlaceOffer creates the maker trade for the given offer and runs the steps
// needed to publish it.
func (s *Service) PlaceOffer(
	ctx context.Context, offer domain.Offer,
) (*domain.Trade, error) {
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	offer.MakerPubKey = s.cfg.Transport.PubKey()
	offer.MakerAddress = s.cfg.Transport.Address()

	trade, err := domain.NewMakerTrade(offer)
	if err != nil {
		return nil, err
	}
	p, err := s.addTrade(ctx, trade)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p, event{step: StepPlaceOffer})
}

// TakeOffer creates the taker trade for the given escrow offer and starts
// the deposit protocol.
func (s *Service) TakeOffer(
	ctx context.Context, offerID string,
) (*domain.Trade, error) {
	return s.takeOffer(ctx, offerID, domain.VariantEscrow, StepTakeOffer)
}

// InitiateSwap creates the taker trade for the given swap offer and sends
// the swap request to the maker.
func (s *Service) InitiateSwap(
	ctx context.Context, offerID string,
) (*domain.Trade, error) {
	return s.takeOffer(ctx, offerID, domain.VariantSwap, StepInitiateSwap)
}

func (s *Service) takeOffer(
	ctx context.Context, offerID string, variant domain.Variant, step Step,
) (*domain.Trade, error) {
	offer, err := s.cfg.OfferBook.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrMissingOffer
	}
	if offer.Variant != variant {
		return nil, fmt.Errorf(
			"%w: offer is of %s variant", ErrUnexpectedMessage, offer.Variant,
		)
	}

	trade, err := domain.NewTakerTrade(*offer, s.cfg.Transport.PubKey())
	if err != nil {
		return nil, err
	}
	p, err := s.addTrade(ctx, trade)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p, event{step: step})
}

// ConfirmPaymentStarted is invoked by the buyer once the off-chain payment
// has been sent.
func (s *Service) ConfirmPaymentStarted(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	return s.runLocalEvent(ctx, tradeID, event{step: StepConfirmPaymentStarted})
}

// ConfirmPaymentReceived is invoked by the seller once the off-chain payment
// has been received.
func (s *Service) ConfirmPaymentReceived(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	return s.runLocalEvent(ctx, tradeID, event{step: StepConfirmPaymentReceived})
}

// ResumeTrade runs again the step the given trade was interrupted at, by a
// fault or a restart.
func (s *Service) ResumeTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	return s.runLocalEvent(ctx, tradeID, event{step: StepResume})
}

// OpenDispute opens a dispute for the given trade and notifies the peer.
func (s *Service) OpenDispute(
	ctx context.Context, tradeID, reason string,
) (*domain.Trade, error) {
	return s.runLocalEvent(
		ctx, tradeID, event{step: StepOpenDispute, reason: reason},
	)
}

// OnIncomingMessage is the transport callback for inbound messages. Errors
// never reach the transport: they are logged and reported to the sender
// with a NACK.
func (s *Service) OnIncomingMessage(in ports.InboundMessage) {
	msg := in.Message
	if msg == nil {
		return
	}
	logger := log.WithFields(log.Fields{
		"trade_id": msg.GetTradeId(),
		"message":  msg.Type(),
	})

	p := s.getProtocol(msg.GetTradeId())
	if p == nil {
		logger.Warn("received message for unknown trade")
		if msg.Type() != domain.MsgAck {
			sendAck(s.cfg.Transport, in, domain.ErrTradeNotFound)
		}
		return
	}

	if msg.Type() == domain.MsgAck {
		if err := p.handleAck(in); err != nil {
			logger.WithError(err).Warn("ack rejected")
		}
		return
	}

	if _, err := p.execute(
		context.Background(), event{step: messageStep(msg.Type()), in: &in},
	); err != nil {
		logger.WithError(err).Debug("message not processed")
	}
}

// GetTrade returns the trade with the given id.
func (s *Service) GetTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	if p := s.getProtocol(tradeID); p != nil {
		return p.GetTrade(), nil
	}
	return s.repo.GetTrade(ctx, tradeID)
}

// ListTrades returns all the trades, most recent first.
func (s *Service) ListTrades(ctx context.Context) ([]domain.Trade, error) {
	stored, err := s.repo.GetAllTrades(ctx)
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(stored))
	seen := make(map[string]struct{}, len(stored))
	for _, t := range stored {
		if p := s.getProtocol(t.ID); p != nil {
			t = p.GetTrade()
		}
		seen[t.ID] = struct{}{}
		trades = append(trades, *t)
	}
	// Trades not flushed to the repository yet.
	s.lock.RLock()
	for id, p := range s.protocols {
		if _, ok := seen[id]; !ok {
			trades = append(trades, *p.GetTrade())
		}
	}
	s.lock.RUnlock()

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Created > trades[j].Timestamp.Created
	})
	return trades, nil
}

// Subscribe returns a channel of trade events and the func to stop
// receiving them.
func (s *Service) Subscribe() (<-chan TradeEvent, func()) {
	return s.bus.subscribe()
}

// Close stops all confidence listeners and event subscriptions.
func (s *Service) Close() {
	s.lock.Lock()
	for _, p := range s.protocols {
		p.close()
	}
	s.lock.Unlock()
	s.bus.close()
}

func (s *Service) addTrade(
	ctx context.Context, trade *domain.Trade,
) (*TradeProtocol, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.protocols[trade.ID]; ok {
		return nil, domain.ErrTradeAlreadyExists
	}
	if err := s.repo.AddTrade(ctx, trade); err != nil {
		return nil, err
	}
	p := newTradeProtocol(trade, s.cfg, s.tradeManager, s.bus)
	s.protocols[trade.ID] = p
	return p, nil
}

func (s *Service) getProtocol(tradeID string) *TradeProtocol {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.protocols[tradeID]
}

func (s *Service) runLocalEvent(
	ctx context.Context, tradeID string, ev event,
) (*domain.Trade, error) {
	p := s.getProtocol(tradeID)
	if p == nil {
		return nil, domain.ErrTradeNotFound
	}
	return s.run(ctx, p, ev)
}

// run executes the event and waits for its runner to terminate. The trade
// is returned also if the run failed.
func (s *Service) run(
	ctx context.Context, p *TradeProtocol, ev event,
) (*domain.Trade, error) {
	runner, err := p.execute(ctx, ev)
	if err != nil {
		return p.GetTrade(), err
	}
	err = runner.Wait(ctx)
	if syncErr := p.sync(ctx); syncErr != nil {
		return p.GetTrade(), syncErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return p.GetTrade(), err
		}
		return p.GetTrade(), fmt.Errorf(
			"%s failed at task %s: %w", ev.step, runner.FailedTask(), err,
		)
	}
	return p.GetTrade(), nil
}
