package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/transport"
)

const (
	// Path is where peers accept websocket connections.
	Path = "/p2p"

	DefaultDialTimeout   = 10 * time.Second
	DefaultRetryInterval = 30 * time.Second
	DefaultMaxAttempts   = 20

	readTimeout  = 30 * time.Second
	maxFrameSize = 1 << 20
)

// Opts defines the parameters needed for creating a websocket transport with
// NewService method.
type Opts struct {
	// Key signs the envelopes of outgoing messages.
	Key *btcec.PrivateKey
	// ListenAddress is the host:port the transport accepts connections at.
	ListenAddress string
	// PublicURL is the address peers reach this node at, like
	// ws://host:port/p2p.
	PublicURL string
	// Mailbox stores the messages for offline peers.
	Mailbox       ports.Mailbox
	DialTimeout   time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
}

func (o Opts) validate() error {
	if o.Key == nil {
		return fmt.Errorf("missing transport key")
	}
	if o.ListenAddress == "" {
		return fmt.Errorf("missing listen address")
	}
	if o.Mailbox == nil {
		return fmt.Errorf("missing mailbox")
	}
	return nil
}

type service struct {
	key       *btcec.PrivateKey
	publicURL string
	mailbox   ports.Mailbox
	dialer    *ws.Dialer
	upgrader  ws.Upgrader
	server    *http.Server

	retryInterval time.Duration
	maxAttempts   int

	lock    sync.RWMutex
	handler ports.MessageHandler

	quit chan struct{}
	wg   sync.WaitGroup
}

// Service is the websocket transport. Start must be called to accept
// connections and to retry the delivery of mailbox messages.
type Service interface {
	ports.Transport
	Start() error
	Stop(ctx context.Context) error
}

// NewService returns a websocket transport.
func NewService(opts Opts) (Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("ws://%s%s", opts.ListenAddress, Path)
	}

	svc := &service{
		key:           opts.Key,
		publicURL:     publicURL,
		mailbox:       opts.Mailbox,
		dialer:        &ws.Dialer{HandshakeTimeout: dialTimeout},
		retryInterval: retryInterval,
		maxAttempts:   maxAttempts,
		quit:          make(chan struct{}),
	}

	router := chi.NewRouter()
	router.Get(Path, svc.serveWs)
	svc.server = &http.Server{
		Addr:              opts.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: readTimeout,
	}
	return svc, nil
}

func (s *service) Start() error {
	errC := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	s.wg.Add(1)
	go s.retryLoop()

	log.Infof("p2p transport listening at %s", s.publicURL)
	return nil
}

func (s *service) Stop(ctx context.Context) error {
	close(s.quit)
	s.wg.Wait()
	return s.server.Shutdown(ctx)
}

func (s *service) Address() string {
	return s.publicURL
}

func (s *service) PubKey() []byte {
	return s.key.PubKey().SerializeCompressed()
}

func (s *service) Subscribe(handler ports.MessageHandler) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handler = handler
}

func (s *service) SendDirect(
	ctx context.Context, peer string, _ []byte, msg domain.Message,
	listener ports.SendListener,
) {
	go func() {
		buf, err := domain.EncodeMessage(msg)
		if err != nil {
			listener.OnFault(err)
			return
		}
		if err := s.deliver(ctx, peer, buf); err != nil {
			listener.OnFault(err)
			return
		}
		listener.OnArrived()
	}()
}

func (s *service) SendMailbox(
	ctx context.Context, peer string, pubkey []byte, msg domain.Message,
	listener ports.SendListener,
) {
	go func() {
		buf, err := domain.EncodeMessage(msg)
		if err != nil {
			listener.OnFault(err)
			return
		}
		err = s.deliver(ctx, peer, buf)
		if err == nil {
			listener.OnArrived()
			return
		}
		if !errors.Is(err, transport.ErrPeerOffline) {
			listener.OnFault(err)
			return
		}

		entry := ports.MailboxEntry{
			ID:        uuid.New().String(),
			Peer:      peer,
			PubKey:    pubkey,
			Payload:   buf,
			CreatedAt: time.Now().UnixNano(),
		}
		if err := s.mailbox.AddEntry(context.Background(), entry); err != nil {
			listener.OnFault(err)
			return
		}
		log.WithFields(log.Fields{
			"peer":     peer,
			"trade_id": msg.GetTradeId(),
			"message":  msg.Type(),
		}).Debug("p2p: peer offline, message stored in mailbox")
		listener.OnStoredInMailbox()
	}()
}

// deliver sends the message over a new connection and waits for the peer's
// receipt. Connection failures are reported as ErrPeerOffline.
func (s *service) deliver(ctx context.Context, peer string, buf []byte) error {
	env, err := newEnvelope(s.key, s.publicURL, buf)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, peer, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", transport.ErrPeerOffline, err)
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %s", transport.ErrPeerOffline, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return err
	}
	var r receipt
	if err := conn.ReadJSON(&r); err != nil {
		return fmt.Errorf("%w: %s", transport.ErrPeerOffline, err)
	}
	if !r.OK {
		return fmt.Errorf("message rejected by peer: %s", r.Error)
	}

	conn.WriteMessage(
		ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
	)
	return nil
}

func (s *service) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("p2p: failed to upgrade connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				log.WithError(err).Debug("p2p: connection closed")
			}
			return
		}

		in, err := s.open(&env)
		if err != nil {
			log.WithError(err).WithField("sender", env.Sender).Warn(
				"p2p: rejected inbound message",
			)
			conn.WriteJSON(receipt{Error: err.Error()})
			continue
		}
		if err := conn.WriteJSON(receipt{OK: true}); err != nil {
			return
		}

		s.lock.RLock()
		handler := s.handler
		s.lock.RUnlock()
		if handler != nil {
			go handler(*in)
		}
	}
}

func (s *service) open(env *envelope) (*ports.InboundMessage, error) {
	pubkey, err := env.verify()
	if err != nil {
		return nil, err
	}
	msg, err := domain.DecodeMessage(env.Payload)
	if err != nil {
		return nil, err
	}
	return &ports.InboundMessage{
		Sender:       env.Sender,
		SenderPubKey: pubkey,
		Message:      msg,
	}, nil
}

func (s *service) retryLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.flushMailbox()
		}
	}
}

func (s *service) flushMailbox() {
	ctx := context.Background()
	entries, err := s.mailbox.ListEntries(ctx)
	if err != nil {
		log.WithError(err).Warn("p2p: failed to list mailbox entries")
		return
	}

	for _, entry := range entries {
		logger := log.WithFields(log.Fields{
			"peer":  entry.Peer,
			"entry": entry.ID,
		})

		err := s.deliver(ctx, entry.Peer, entry.Payload)
		if err == nil {
			logger.Debug("p2p: mailbox message delivered")
			if err := s.mailbox.RemoveEntry(ctx, entry.ID); err != nil {
				logger.WithError(err).Warn("p2p: failed to remove mailbox entry")
			}
			continue
		}

		entry.Attempts++
		if entry.Attempts >= s.maxAttempts {
			logger.WithError(err).Warn("p2p: dropping undeliverable mailbox message")
			if err := s.mailbox.RemoveEntry(ctx, entry.ID); err != nil {
				logger.WithError(err).Warn("p2p: failed to remove mailbox entry")
			}
			continue
		}
		if err := s.mailbox.UpdateEntry(ctx, entry); err != nil {
			logger.WithError(err).Warn("p2p: failed to update mailbox entry")
		}
	}
}
