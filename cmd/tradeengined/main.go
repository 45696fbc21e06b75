package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/config"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	localwallet "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/local-wallet"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/metrics"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/offerbook"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/persistence"
	pubsubinfra "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/pubsub"
	dbbadger "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/badger"
	inmemorydb "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/transport/websocket"
	httpinterface "github.com/tdex-network/tdex-tradeengine/internal/interfaces/http"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer/esplora"
	"github.com/tdex-network/tdex-tradeengine/pkg/stats"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := start(ctx)
	if err != nil {
		log.WithError(err).Fatal("error while starting daemon")
	}

	log.Info("trade engine started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	<-sigChan

	log.Info("shutting down trade engine")
	stop()
	cancel()

	log.Debug("exiting")
}

// start wires all the services of the engine and returns the func to stop
// them in reverse order.
func start(ctx context.Context) (func(), error) {
	var closers []func()
	stop := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (func(), error) {
		stop()
		return nil, err
	}

	datadir := config.GetDatadir()
	net := config.GetNetwork()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsSvc, err := metrics.NewService(registry)
	if err != nil {
		return fail(err)
	}

	if config.GetBool(config.EnableProfilerKey) {
		statsCtx, cancelStats := context.WithCancel(ctx)
		stats.EnableMemoryStatistics(
			statsCtx,
			config.GetDuration(config.StatsIntervalKey, time.Second),
			registry,
			filepath.Join(datadir, config.ProfilerLocation, "metrics.txt"),
		)
		closers = append(closers, cancelStats)
	}

	dbManager, err := dbbadger.NewDbManager(
		filepath.Join(datadir, config.DbLocation), dbbadger.NewLogger(),
	)
	if err != nil {
		return fail(fmt.Errorf("error while opening db: %s", err))
	}
	closers = append(closers, dbManager.Close)

	explorerSvc, err := esplora.NewService(
		config.GetString(config.ExplorerEndpointKey),
		config.GetDuration(config.ExplorerRequestTimeoutKey, time.Millisecond),
		config.GetInt(config.ExplorerRequestRateKey),
	)
	if err != nil {
		return fail(fmt.Errorf("error while connecting to explorer: %s", err))
	}

	seed, err := config.GetSeed()
	if err != nil {
		return fail(err)
	}
	walletSvc, err := localwallet.NewService(localwallet.Opts{
		Seed:        seed,
		Network:     net,
		ExplorerSvc: explorerSvc,
		Vault:       dbbadger.NewVaultRepositoryImpl(dbManager),
		CrawlerInterval: config.GetDuration(
			config.ConfidencePollIntervalKey, time.Millisecond,
		),
		ExplorerLimit: config.GetInt(config.ExplorerRequestRateKey),
	})
	if err != nil {
		return fail(fmt.Errorf("error while initializing wallet: %s", err))
	}
	closers = append(closers, walletSvc.Close)

	identityKey, err := walletSvc.IdentityKey()
	if err != nil {
		return fail(err)
	}
	var mailbox ports.Mailbox = dbbadger.NewMailboxImpl(dbManager)
	if config.GetBool(config.NoMailboxKey) {
		mailbox = inmemorydb.NewMailboxImpl()
	}
	transportSvc, err := websocket.NewService(websocket.Opts{
		Key: identityKey,
		ListenAddress: fmt.Sprintf(
			":%d", config.GetInt(config.PeerListeningPortKey),
		),
		PublicURL: config.GetPeerPublicURL(),
		Mailbox:   mailbox,
		RetryInterval: config.GetDuration(
			config.MailboxRetryIntervalKey, time.Second,
		),
	})
	if err != nil {
		return fail(fmt.Errorf("error while initializing transport: %s", err))
	}

	pubsubStore, err := dbbadger.NewStore(
		filepath.Join(datadir, config.PubsubLocation), dbbadger.NewLogger(),
	)
	if err != nil {
		return fail(fmt.Errorf("error while opening pubsub db: %s", err))
	}
	notifier, err := pubsubinfra.NewService(
		pubsubStore,
		config.GetDuration(config.WebhookRequestTimeoutKey, time.Millisecond),
	)
	if err != nil {
		return fail(err)
	}
	webhookSvc := pubsub.NewService(notifier)
	closers = append(closers, webhookSvc.Close)

	tradeRepo := dbbadger.NewTradeRepositoryImpl(dbManager)
	persistenceSvc := persistence.NewService(
		tradeRepo, config.GetDuration(config.PersistIntervalKey, time.Millisecond),
	)
	closers = append(closers, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		persistenceSvc.Flush(flushCtx)
		persistenceSvc.Close()
	})

	offerBook := offerbook.NewOfferBook()

	protocolSvc, err := protocol.NewService(protocol.Config{
		Wallet:      walletSvc,
		Transport:   transportSvc,
		Repository:  tradeRepo,
		Persistence: persistenceSvc,
		OfferBook:   offerBook,
		Backup:      dbbadger.NewBackupStorageImpl(dbManager),
		Publisher:   webhookSvc,
		Metrics:     metricsSvc,
		TaskTimeout: config.GetDuration(config.TaskTimeoutKey, time.Second),

		DustThreshold:             config.GetUint64(config.DustThresholdKey),
		FeeTolerance:              config.GetUint64(config.FeeToleranceKey),
		MinSecurityDeposit:        config.GetUint64(config.MinSecurityDepositKey),
		MinSecurityDepositPercent: config.GetDecimal(config.MinSecurityDepositPercentKey),
		LockBlocks:                uint32(config.GetInt(config.LockBlocksKey)),
		PaymentAccount:            []byte(config.GetString(config.PaymentAccountKey)),
	})
	if err != nil {
		return fail(fmt.Errorf("error while initializing engine: %s", err))
	}
	closers = append(closers, protocolSvc.Close)

	if err := protocolSvc.Restore(ctx); err != nil {
		return fail(fmt.Errorf("error while restoring open trades: %s", err))
	}

	if err := transportSvc.Start(); err != nil {
		return fail(fmt.Errorf("error while starting transport: %s", err))
	}
	closers = append(closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := transportSvc.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("error while stopping transport")
		}
		log.Debug("stopped transport")
	})

	operatorSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Address: fmt.Sprintf(
			":%d", config.GetInt(config.OperatorListeningPortKey),
		),
		ProtocolSvc: protocolSvc,
		OfferBook:   offerBook,
		WebhookSvc:  webhookSvc,
		WalletSvc:   walletSvc,
		MetricsHandler: promhttp.HandlerFor(
			registry, promhttp.HandlerOpts{Registry: registry},
		),
		Network:       net.Name,
		FeeRate:       config.GetDecimal(config.FeeRateKey),
		FeeAddress:    config.GetString(config.FeeAddressKey),
		RefundAddress: config.GetString(config.RefundAddressKey),
	})
	if err != nil {
		return fail(err)
	}
	if err := operatorSvc.Start(); err != nil {
		return fail(fmt.Errorf("error while starting operator interface: %s", err))
	}
	closers = append(closers, operatorSvc.Stop)

	log.Infof("peers reach this engine at %s", transportSvc.Address())
	return stop, nil
}
