package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	interfaces "github.com/tdex-network/tdex-tradeengine/internal/interfaces"
)

const shutdownTimeout = 5 * time.Second

// ProtocolService is the subset of the engine exposed to the operator.
type ProtocolService interface {
	PlaceOffer(ctx context.Context, offer domain.Offer) (*domain.Trade, error)
	TakeOffer(ctx context.Context, offerID string) (*domain.Trade, error)
	InitiateSwap(ctx context.Context, offerID string) (*domain.Trade, error)
	ConfirmPaymentStarted(ctx context.Context, tradeID string) (*domain.Trade, error)
	ConfirmPaymentReceived(ctx context.Context, tradeID string) (*domain.Trade, error)
	OpenDispute(ctx context.Context, tradeID, reason string) (*domain.Trade, error)
	ResumeTrade(ctx context.Context, tradeID string) (*domain.Trade, error)
	GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error)
	ListTrades(ctx context.Context) ([]domain.Trade, error)
}

// WebhookService manages the webhooks notified of trade events.
type WebhookService interface {
	AddWebhook(ctx context.Context, topic, endpoint, secret string) (string, error)
	RemoveWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context, topic string) ([]pubsub.WebhookInfo, error)
}

// WalletService exposes the funding operations of the local wallet.
type WalletService interface {
	DeriveReceiveAddress(ctx context.Context) (string, error)
	Balance(ctx context.Context, asset string) (total, locked uint64, err error)
}

// ServiceOpts defines the parameters needed for creating the operator
// interface with NewService method.
type ServiceOpts struct {
	Address string

	ProtocolSvc ProtocolService
	OfferBook   ports.OfferBook
	WebhookSvc  WebhookService
	WalletSvc   WalletService
	// MetricsHandler is optional. If defined, it is served at /metrics.
	MetricsHandler http.Handler

	// Terms applied to the offers placed via the interface when not
	// specified in the request.
	Network       string
	FeeRate       decimal.Decimal
	FeeAddress    string
	RefundAddress string
}

func (o ServiceOpts) validate() error {
	if o.Address == "" {
		return fmt.Errorf("missing listening address")
	}
	if o.ProtocolSvc == nil {
		return fmt.Errorf("protocol app service must not be null")
	}
	if o.OfferBook == nil {
		return fmt.Errorf("offer book must not be null")
	}
	if o.WebhookSvc == nil {
		return fmt.Errorf("webhook app service must not be null")
	}
	if o.WalletSvc == nil {
		return fmt.Errorf("wallet service must not be null")
	}
	return nil
}

type service struct {
	opts   ServiceOpts
	server *http.Server
}

// NewService returns the HTTP operator interface of the engine.
func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}
	svc := &service{opts: opts}
	svc.server = &http.Server{
		Addr:              opts.Address,
		Handler:           svc.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("operator interface stopped unexpectedly")
		}
	}()
	log.Infof("operator interface is listening on %s", lis.Addr())
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("error while stopping operator interface")
	}
	log.Debug("disabled operator interface")
}

func (s *service) router() http.Handler {
	h := newHandler(s.opts)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/v1", func(api chi.Router) {
		api.Route("/trades", func(trades chi.Router) {
			trades.Get("/", h.listTrades)
			trades.Get("/{id}", h.getTrade)
			trades.Post("/{id}/payment-started", h.confirmPaymentStarted)
			trades.Post("/{id}/payment-received", h.confirmPaymentReceived)
			trades.Post("/{id}/dispute", h.openDispute)
			trades.Post("/{id}/resume", h.resumeTrade)
		})
		api.Route("/offers", func(offers chi.Router) {
			offers.Get("/", h.listOffers)
			offers.Post("/", h.placeOffer)
			offers.Post("/import", h.importOffer)
			offers.Delete("/{id}", h.removeOffer)
			offers.Post("/{id}/take", h.takeOffer)
			offers.Post("/{id}/swap", h.initiateSwap)
		})
		api.Route("/webhooks", func(webhooks chi.Router) {
			webhooks.Get("/", h.listWebhooks)
			webhooks.Post("/", h.addWebhook)
			webhooks.Delete("/{id}", h.removeWebhook)
		})
		api.Route("/wallet", func(wallet chi.Router) {
			wallet.Post("/address", h.deriveAddress)
			wallet.Get("/balance/{asset}", h.getBalance)
		})
	})

	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}
	return r
}

// requestLogger logs every request with logrus, at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"request_id": chimw.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start).String(),
		}).Debug("operator request")
	})
}
