package protocol

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/tdex-network/tdex-tradeengine/pkg/taskrunner"
)

const (
	// DefaultTaskTimeout is the time a run has to complete.
	DefaultTaskTimeout = 60 * time.Second
	// DefaultLockBlocks is the number of blocks the delayed payout tx is
	// locked for, if not defined by the contract.
	DefaultLockBlocks = 1440
	// DefaultBackupScryptCost is the cost of the key derivation of recovery
	// tx backups.
	DefaultBackupScryptCost = 1 << 15

	// lockTimeDrift is how many blocks the lock time chosen by the maker may
	// differ from the one expected by the taker.
	lockTimeDrift = 10
	// maxSelectionAttempts bounds the rounds of coin selection needed to
	// cover the fee of the selected inputs.
	maxSelectionAttempts = 5
)

var (
	// DefaultMinSecurityDepositPercent is the min security deposit in
	// percentage of the trade amount.
	DefaultMinSecurityDepositPercent = decimal.NewFromInt(15)
	defaultPaymentAccount            = []byte("{}")
)

// Config holds the collaborators and the policy parameters of the engine.
type Config struct {
	Wallet      ports.Wallet
	Transport   ports.Transport
	Repository  domain.TradeRepository
	Persistence ports.Persistence
	OfferBook   ports.OfferBook
	Backup      ports.BackupStorage
	// Publisher is optional.
	Publisher EventPublisher
	// Metrics is optional.
	Metrics ports.Metrics
	// TradeManager is optional. It is notified of closed trades after the
	// engine has unlocked their inputs and published their events.
	TradeManager ports.TradeManager

	TaskTimeout time.Duration
	// Interceptor is invoked before every task, for testing purposes.
	Interceptor taskrunner.Interceptor

	DustThreshold             uint64
	FeeTolerance              uint64
	MinSecurityDeposit        uint64
	MinSecurityDepositPercent decimal.Decimal
	LockBlocks                uint32
	BackupScryptCost          int
	// PaymentAccount is the payload of the account the local party receives
	// or sends the off-chain payment with.
	PaymentAccount []byte
}

func (c *Config) validate() error {
	if c.Wallet == nil {
		return fmt.Errorf("missing wallet")
	}
	if c.Transport == nil {
		return fmt.Errorf("missing transport")
	}
	if c.Repository == nil {
		return fmt.Errorf("missing trade repository")
	}
	if c.Persistence == nil {
		return fmt.Errorf("missing persistence")
	}
	if c.OfferBook == nil {
		return fmt.Errorf("missing offer book")
	}
	if c.Backup == nil {
		return fmt.Errorf("missing backup storage")
	}
	if c.MinSecurityDepositPercent.IsNegative() {
		return fmt.Errorf("min security deposit percentage must not be negative")
	}

	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.DustThreshold <= 0 {
		c.DustThreshold = swap.DefaultDustThreshold
	}
	if c.FeeTolerance <= 0 {
		c.FeeTolerance = swap.DefaultFeeTolerance
	}
	if c.LockBlocks <= 0 {
		c.LockBlocks = DefaultLockBlocks
	}
	if c.BackupScryptCost <= 0 {
		c.BackupScryptCost = DefaultBackupScryptCost
	}
	if len(c.PaymentAccount) <= 0 {
		c.PaymentAccount = defaultPaymentAccount
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return nil
}

func (c *Config) policy(contract domain.Contract) swap.Policy {
	policy := swap.NewPolicy(c.Wallet.Network().AssetID, contract.FeeRate)
	policy.DustThreshold = c.DustThreshold
	policy.FeeTolerance = c.FeeTolerance
	return policy
}

type noopMetrics struct{}

func (noopMetrics) RunCompleted(string, string, time.Duration) {}
func (noopMetrics) RunFailed(string, string, string)           {}
func (noopMetrics) LateCallback(string)                        {}
func (noopMetrics) TradeClosed(string, bool)                   {}
