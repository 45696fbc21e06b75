package localwallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/crawler"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
	"github.com/vulpemventures/go-elements/network"
)

// Opts defines the parameters needed for creating a local wallet with
// NewService method.
type Opts struct {
	Seed        []byte
	Network     *network.Network
	ExplorerSvc explorer.Service
	Vault       ports.VaultRepository
	// CrawlerInterval is the time between two polls of the status of a watched
	// tx.
	CrawlerInterval time.Duration
	// ExplorerLimit is the max number of requests per second the crawler sends
	// to the explorer.
	ExplorerLimit int
}

func (o Opts) validate() error {
	if o.ExplorerSvc == nil {
		return fmt.Errorf("missing explorer service")
	}
	if o.Vault == nil {
		return fmt.Errorf("missing vault repository")
	}
	return nil
}

// Service is the local wallet. Besides the operations needed by the engine,
// it allows to fund the wallet and to check its balance.
type Service interface {
	ports.Wallet
	DeriveReceiveAddress(ctx context.Context) (string, error)
	Balance(ctx context.Context, asset string) (total, locked uint64, err error)
	IdentityKey() (*btcec.PrivateKey, error)
	Close()
}

type lockKey struct {
	tradeID string
	purpose ports.InputPurpose
}

// service is a single-key hierarchical deterministic wallet implementing
// ports.Wallet on top of an explorer.
type service struct {
	keychain    *pkgwallet.Keychain
	explorerSvc explorer.Service
	crawlerSvc  crawler.Service
	vault       ports.VaultRepository

	coinsLock  sync.Mutex
	locked     map[string]lockKey
	selections map[lockKey][]domain.Input

	txLock      sync.RWMutex
	txHexByID   map[string]string
	confidence  map[string]ports.Confidence
	subscribers map[string]map[int]ports.ConfidenceHandler
	nextSubID   int

	closeOnce sync.Once
	done      chan struct{}
}

// NewService returns a local wallet for the given seed and starts watching
// the txs the engine subscribes to.
func NewService(opts Opts) (Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	keychain, err := pkgwallet.NewKeychain(pkgwallet.NewKeychainOpts{
		Seed:    opts.Seed,
		Network: opts.Network,
	})
	if err != nil {
		return nil, err
	}

	crawlerSvc := crawler.NewService(crawler.Opts{
		ExplorerSvc:     opts.ExplorerSvc,
		CrawlerInterval: opts.CrawlerInterval,
		ExplorerLimit:   opts.ExplorerLimit,
		ErrorHandler: func(err error) {
			log.WithError(err).Debug("wallet: failed to poll tx status")
		},
	})

	svc := &service{
		keychain:    keychain,
		explorerSvc: opts.ExplorerSvc,
		crawlerSvc:  crawlerSvc,
		vault:       opts.Vault,
		locked:      make(map[string]lockKey),
		selections:  make(map[lockKey][]domain.Input),
		txHexByID:   make(map[string]string),
		confidence:  make(map[string]ports.Confidence),
		subscribers: make(map[string]map[int]ports.ConfidenceHandler),
		done:        make(chan struct{}),
	}

	go crawlerSvc.Start()
	go svc.listenToCrawler()

	return svc, nil
}

func (s *service) Network() *network.Network {
	return s.keychain.Network()
}

// Close stops watching txs.
func (s *service) Close() {
	s.closeOnce.Do(func() {
		s.crawlerSvc.Stop()
		<-s.done
	})
}

func (s *service) listenToCrawler() {
	defer close(s.done)

	for event := range s.crawlerSvc.GetEventChannel() {
		switch e := event.(type) {
		case crawler.QuitEvent:
			return
		case crawler.TransactionEvent:
			confidence := toConfidence(e.EventType)
			log.WithFields(log.Fields{
				"txid":       e.TxID,
				"confidence": confidence,
			}).Debug("wallet: tx confidence changed")
			if e.EventType == crawler.TransactionDead {
				log.WithFields(log.Fields{
					"txid":     e.TxID,
					"spent_by": e.SpentBy,
				}).Warn("wallet: tx double spent")
			}
			s.notify(e.TxID, confidence)
		}
	}
}

func toConfidence(eventType crawler.EventType) ports.Confidence {
	switch eventType {
	case crawler.TransactionUnconfirmed:
		return ports.ConfidencePending
	case crawler.TransactionConfirmed:
		return ports.ConfidenceBuilding
	case crawler.TransactionDead:
		return ports.ConfidenceDead
	default:
		return ports.ConfidenceUnknown
	}
}

// notify invokes the handlers outside of the lock, so that they can cancel
// their subscription.
func (s *service) notify(txid string, confidence ports.Confidence) {
	s.txLock.Lock()
	if confidence == ports.ConfidenceDead {
		s.confidence[txid] = confidence
	}
	handlers := make([]ports.ConfidenceHandler, 0, len(s.subscribers[txid]))
	for _, h := range s.subscribers[txid] {
		handlers = append(handlers, h)
	}
	s.txLock.Unlock()

	for _, h := range handlers {
		h(txid, confidence)
	}
}

func (s *service) BlockHeight(_ context.Context) (uint32, error) {
	height, err := s.explorerSvc.GetBlockHeight()
	if err != nil {
		return 0, err
	}
	return uint32(height), nil
}
