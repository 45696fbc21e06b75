package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

// DefaultFlushInterval is the interval pending snapshots are written at.
const DefaultFlushInterval = 200 * time.Millisecond

// Service is a ports.Persistence that writes trade snapshots to the
// repository in background. Only the last snapshot requested for a trade
// within a flush interval is written.
type Service struct {
	repo     domain.TradeRepository
	interval time.Duration

	lock    sync.Mutex
	pending map[string]domain.Trade

	flushLock sync.Mutex
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewService returns a persistence service flushing at the given interval
// and starts its flush loop.
func NewService(repo domain.TradeRepository, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	s := &Service{
		repo:     repo,
		interval: interval,
		pending:  make(map[string]domain.Trade),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

var _ ports.Persistence = (*Service)(nil)

// RequestPersistence never blocks.
func (s *Service) RequestPersistence(trade domain.Trade) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pending[trade.ID] = trade
}

// Flush writes all pending snapshots right away.
func (s *Service) Flush(ctx context.Context) {
	s.flushLock.Lock()
	defer s.flushLock.Unlock()

	s.lock.Lock()
	pending := s.pending
	s.pending = make(map[string]domain.Trade)
	s.lock.Unlock()

	for id, trade := range pending {
		trade := trade
		if err := s.write(ctx, trade); err != nil {
			log.WithError(err).WithField("trade_id", id).Warn(
				"failed to persist trade, retrying at next flush",
			)
			s.requeue(trade)
		}
	}
}

// Close stops the flush loop after writing the pending snapshots.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.Flush(context.Background())
	})
}

func (s *Service) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.quit:
			return
		}
	}
}

func (s *Service) write(ctx context.Context, trade domain.Trade) error {
	err := s.repo.UpdateTrade(
		ctx, trade.ID, func(*domain.Trade) (*domain.Trade, error) {
			return &trade, nil
		},
	)
	if errors.Is(err, domain.ErrTradeNotFound) {
		return s.repo.AddTrade(ctx, &trade)
	}
	return err
}

// requeue puts back a snapshot that could not be written, unless a newer
// one was requested in the meantime.
func (s *Service) requeue(trade domain.Trade) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.pending[trade.ID]; !ok {
		s.pending[trade.ID] = trade
	}
}
