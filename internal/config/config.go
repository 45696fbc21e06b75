package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/vulpemventures/go-elements/network"
)

const (
	// DatadirKey is the local data directory to store the internal state of
	// the engine
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the
	// values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "liquid", "testnet" or "regtest"
	NetworkKey = "NETWORK"
	// ExplorerEndpointKey is the endpoint where the Esplora REST API is
	// listening
	ExplorerEndpointKey = "EXPLORER_ENDPOINT"
	// ExplorerRequestTimeoutKey are the milliseconds to wait for HTTP
	// responses before timeouts
	ExplorerRequestTimeoutKey = "EXPLORER_REQUEST_TIMEOUT"
	// ExplorerRequestRateKey is the max number of requests per second sent to
	// the explorer
	ExplorerRequestRateKey = "EXPLORER_REQUEST_RATE"
	// PeerListeningPortKey is the port where the websocket transport accepts
	// peer connections
	PeerListeningPortKey = "PEER_LISTENING_PORT"
	// PeerPublicURLKey is the url peers reach this node at. Defaults to
	// ws://localhost:<PEER_LISTENING_PORT>/p2p
	PeerPublicURLKey = "PEER_PUBLIC_URL"
	// OperatorListeningPortKey is the port where the HTTP operator interface
	// and the metrics endpoint listen on
	OperatorListeningPortKey = "OPERATOR_LISTENING_PORT"
	// WalletSeedKey is the hex encoded seed of the engine's wallet
	WalletSeedKey = "WALLET_SEED"
	// TaskTimeoutKey is the time in seconds a protocol run has to complete
	TaskTimeoutKey = "TASK_TIMEOUT"
	// FeeRateKey is the fee rate in sats/vbyte of the offers placed by the
	// engine
	FeeRateKey = "FEE_RATE"
	// DustThresholdKey is the min value of a tx output
	DustThresholdKey = "DUST_THRESHOLD"
	// FeeToleranceKey is the max difference in sats accepted between the
	// amounts declared by a swap peer and those expected
	FeeToleranceKey = "FEE_TOLERANCE"
	// MinSecurityDepositKey is the min security deposit of escrow trades
	MinSecurityDepositKey = "MIN_SECURITY_DEPOSIT"
	// MinSecurityDepositPercentKey is the min security deposit of escrow
	// trades in percentage of the trade amount
	MinSecurityDepositPercentKey = "MIN_SECURITY_DEPOSIT_PERCENT"
	// LockBlocksKey is the number of blocks the delayed payout tx is locked for
	LockBlocksKey = "LOCK_BLOCKS"
	// RefundAddressKey is where the delayed payout tx of escrow offers pays to
	RefundAddressKey = "REFUND_ADDRESS"
	// FeeAddressKey is where the trade fees of escrow offers are paid to
	FeeAddressKey = "FEE_ADDRESS"
	// PaymentAccountKey is the json payload of the account the off-chain
	// payment of escrow trades is sent from or received to
	PaymentAccountKey = "PAYMENT_ACCOUNT"
	// PersistIntervalKey is the interval in milliseconds trade snapshots are
	// flushed to the db
	PersistIntervalKey = "PERSIST_INTERVAL"
	// ConfidencePollIntervalKey is the interval in milliseconds used when
	// watching the status of trade txs via the explorer
	ConfidencePollIntervalKey = "CONFIDENCE_POLL_INTERVAL"
	// MailboxRetryIntervalKey is the interval in seconds between two attempts
	// to deliver the messages stored for offline peers
	MailboxRetryIntervalKey = "MAILBOX_RETRY_INTERVAL"
	// NoMailboxKey disables the persistence of the messages for offline peers
	NoMailboxKey = "NO_MAILBOX"
	// WebhookRequestTimeoutKey is the timeout in milliseconds of the requests
	// sent to webhooks
	WebhookRequestTimeoutKey = "WEBHOOK_REQUEST_TIMEOUT"
	// EnableProfilerKey enables the periodic dump of memory stats and metrics
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval in seconds for printing basic
	// statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation       = "db"
	PubsubLocation   = "pubsub"
	ProfilerLocation = "stats"

	MaxSecurityDepositPercent = 100
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-tradeengine", false)

func newViper() {
	vip = viper.New()
	vip.SetEnvPrefix("TRADEENGINE")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, network.Liquid.Name)
	vip.SetDefault(ExplorerEndpointKey, "https://blockstream.info/liquid/api")
	vip.SetDefault(ExplorerRequestTimeoutKey, 15000)
	vip.SetDefault(ExplorerRequestRateKey, 10)
	vip.SetDefault(PeerListeningPortKey, 9945)
	vip.SetDefault(OperatorListeningPortKey, 9000)
	vip.SetDefault(TaskTimeoutKey, 60)
	vip.SetDefault(FeeRateKey, 0.1)
	vip.SetDefault(DustThresholdKey, 546)
	vip.SetDefault(FeeToleranceKey, 20)
	vip.SetDefault(MinSecurityDepositKey, 0)
	vip.SetDefault(MinSecurityDepositPercentKey, 15)
	vip.SetDefault(LockBlocksKey, 1440)
	vip.SetDefault(PaymentAccountKey, "{}")
	vip.SetDefault(PersistIntervalKey, 200)
	vip.SetDefault(ConfidencePollIntervalKey, 5000)
	vip.SetDefault(MailboxRetryIntervalKey, 30)
	vip.SetDefault(NoMailboxKey, false)
	vip.SetDefault(WebhookRequestTimeoutKey, 5000)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)
}

func InitConfig() error {
	newViper()

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetUint64(key string) uint64 {
	return vip.GetUint64(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDuration returns the value of the given key as a number of units.
func GetDuration(key string, unit time.Duration) time.Duration {
	return time.Duration(vip.GetInt64(key)) * unit
}

// GetDecimal returns the value of the given key as a decimal. Malformed
// values are rejected by InitConfig.
func GetDecimal(key string) decimal.Decimal {
	d, _ := decimal.NewFromString(vip.GetString(key))
	return d
}

func GetNetwork() *network.Network {
	switch vip.GetString(NetworkKey) {
	case network.Regtest.Name:
		return &network.Regtest
	case network.Testnet.Name:
		return &network.Testnet
	default:
		return &network.Liquid
	}
}

// GetDatadir returns the data directory of the selected network.
func GetDatadir() string {
	return filepath.Join(GetString(DatadirKey), GetNetwork().Name)
}

// GetSeed returns the decoded wallet seed.
func GetSeed() ([]byte, error) {
	seed, err := hex.DecodeString(GetString(WalletSeedKey))
	if err != nil {
		return nil, fmt.Errorf("wallet seed must be in hex format")
	}
	return seed, nil
}

// GetPeerPublicURL returns the url peers reach this node at.
func GetPeerPublicURL() string {
	if u := GetString(PeerPublicURLKey); u != "" {
		return u
	}
	return fmt.Sprintf("ws://localhost:%d/p2p", GetInt(PeerListeningPortKey))
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	networkName := GetString(NetworkKey)
	if networkName != network.Liquid.Name &&
		networkName != network.Testnet.Name &&
		networkName != network.Regtest.Name {
		return fmt.Errorf(
			"network must be either '%s', '%s' or '%s'",
			network.Liquid.Name, network.Testnet.Name, network.Regtest.Name,
		)
	}

	if _, err := url.Parse(GetString(ExplorerEndpointKey)); err != nil {
		return fmt.Errorf("explorer endpoint is not a valid url: %s", err)
	}
	if u := GetString(PeerPublicURLKey); u != "" {
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("peer public url is not a valid url: %s", err)
		}
	}

	seed, err := GetSeed()
	if err != nil {
		return err
	}
	if len(seed) <= 0 {
		return fmt.Errorf("wallet seed must not be null")
	}

	if GetInt(TaskTimeoutKey) <= 0 {
		return fmt.Errorf("task timeout must be greater than zero")
	}

	feeRate, err := decimal.NewFromString(GetString(FeeRateKey))
	if err != nil {
		return fmt.Errorf("fee rate must be a number")
	}
	if !feeRate.IsPositive() {
		return fmt.Errorf("fee rate must be greater than zero")
	}

	percent, err := decimal.NewFromString(GetString(MinSecurityDepositPercentKey))
	if err != nil {
		return fmt.Errorf("min security deposit percentage must be a number")
	}
	if percent.IsNegative() ||
		percent.GreaterThan(decimal.NewFromInt(MaxSecurityDepositPercent)) {
		return fmt.Errorf(
			"min security deposit percentage must be in range [0, %d]",
			MaxSecurityDepositPercent,
		)
	}

	if GetInt(LockBlocksKey) <= 0 {
		return fmt.Errorf("lock blocks must be greater than zero")
	}
	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, PubsubLocation)); err != nil {
		return err
	}

	if GetBool(EnableProfilerKey) {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	log.Debugf("datadir: %s", datadir)
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
