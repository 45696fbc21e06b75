package protocol

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/vulpemventures/go-elements/network"
)

// ProcessModel is the working state of one trade. It is never persisted as
// is: the trade is, and the collaborators are attached every time the model
// is rebuilt. The model is owned by the runner holding the trade's token.
type ProcessModel struct {
	trade       *domain.Trade
	wallet      ports.Wallet
	transport   ports.Transport
	persistence ports.Persistence
	offerBook   ports.OfferBook
	backup      ports.BackupStorage
	policy      swap.Policy
	cfg         *Config
	logger      *log.Entry

	// onPersist is notified with every persisted snapshot.
	onPersist func(trade domain.Trade)
	// watch arms the confidence listener of a trade tx.
	watch func(kind txKind, txid string)
}

func newProcessModel(
	trade *domain.Trade, cfg *Config, onPersist func(domain.Trade),
	watch func(txKind, string),
) *ProcessModel {
	return &ProcessModel{
		trade:       trade,
		wallet:      cfg.Wallet,
		transport:   cfg.Transport,
		persistence: cfg.Persistence,
		offerBook:   cfg.OfferBook,
		backup:      cfg.Backup,
		policy:      cfg.policy(trade.Contract),
		cfg:         cfg,
		logger: log.WithFields(log.Fields{
			"trade_id": trade.ID,
			"variant":  trade.Variant,
			"role":     fmt.Sprintf("%s_%s", trade.Side, trade.Direction),
		}),
		onPersist: onPersist,
		watch:     watch,
	}
}

// persist takes a snapshot of the trade and requests it to be stored. It
// must be called by the owner of the trade's token.
func (m *ProcessModel) persist() {
	snapshot := m.trade.Copy()
	m.persistence.RequestPersistence(snapshot)
	if m.onPersist != nil {
		m.onPersist(snapshot)
	}
}

func (m *ProcessModel) network() *network.Network {
	return m.wallet.Network()
}

func (m *ProcessModel) policyAsset() string {
	return m.policy.PolicyAsset
}

func (m *ProcessModel) buyer() *domain.Party {
	if m.trade.IsBuyer() {
		return &m.trade.Self
	}
	return &m.trade.Peer
}

func (m *ProcessModel) seller() *domain.Party {
	if m.trade.IsSeller() {
		return &m.trade.Self
	}
	return &m.trade.Peer
}

func (m *ProcessModel) taker() *domain.Party {
	if m.trade.IsTaker() {
		return &m.trade.Self
	}
	return &m.trade.Peer
}

func (m *ProcessModel) maker() *domain.Party {
	if m.trade.IsMaker() {
		return &m.trade.Self
	}
	return &m.trade.Peer
}

func (m *ProcessModel) lockBlocks() uint32 {
	if m.trade.Contract.LockBlocks > 0 {
		return m.trade.Contract.LockBlocks
	}
	return m.cfg.LockBlocks
}

// selectInputs selects wallet inputs covering amount plus the fee owed for
// spending them, that depends on how many they are.
func (m *ProcessModel) selectInputs(
	ctx context.Context, purpose ports.InputPurpose, asset string,
	amount uint64, fee func(numIns int) uint64,
) ([]domain.Input, error) {
	numIns := 1
	for i := 0; i < maxSelectionAttempts; i++ {
		ins, err := m.wallet.SelectInputs(
			ctx, purpose, m.trade.ID, asset, amount+fee(numIns),
		)
		if err != nil {
			return nil, err
		}
		if len(ins) <= numIns || inputsValue(ins) >= amount+fee(len(ins)) {
			return ins, nil
		}
		numIns = len(ins)
	}
	return nil, ErrInsufficientFunds
}

// validatePeerInputs checks that the inputs declared by the peer are of the
// expected asset and can be spent, and returns their overall value.
func (m *ProcessModel) validatePeerInputs(
	ctx context.Context, ins []domain.Input, asset string,
) (uint64, error) {
	if len(ins) <= 0 {
		return 0, domain.ErrMissingInputs
	}
	seen := make(map[string]struct{})
	for _, in := range ins {
		if _, ok := seen[in.Key()]; ok {
			return 0, fmt.Errorf("%w: %s", swap.ErrDuplicatedInput, in.Key())
		}
		seen[in.Key()] = struct{}{}

		if in.Asset != asset {
			return 0, fmt.Errorf(
				"%w: input %s has asset %s", swap.ErrInputAssetMismatch, in.Key(), in.Asset,
			)
		}
		ok, err := m.wallet.IsSpendable(ctx, in)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrInputNotSpendable, in.Key())
		}
	}
	return inputsValue(ins), nil
}

// checkAddress returns an error if the given address is not a valid
// unconfidential segwit address of the wallet's network.
func (m *ProcessModel) checkAddress(addrs ...string) error {
	for _, addr := range addrs {
		if err := swap.ValidateAddress(addr, m.network()); err != nil {
			return err
		}
	}
	return nil
}

// accountAgeWitness returns the local party's proof of ownership of the
// escrow key, created once per trade.
func (m *ProcessModel) accountAgeWitness(
	ctx context.Context, escrowPubKey []byte,
) (domain.AccountAgeWitness, error) {
	if w := m.trade.Self.AccountAgeWitness; !w.IsEmpty() {
		return w, nil
	}
	nonce := sha256.Sum256(append([]byte(m.trade.ID), escrowPubKey...))
	date := m.trade.Timestamp.Created
	sig, err := m.wallet.SignMessage(
		ctx, m.trade.ID, accountAgeMessage(nonce[:], date),
	)
	if err != nil {
		return domain.AccountAgeWitness{}, err
	}
	return domain.AccountAgeWitness{
		Nonce:     nonce[:],
		Signature: sig,
		Date:      date,
	}, nil
}

func accountAgeMessage(nonce []byte, date int64) []byte {
	msg := make([]byte, len(nonce)+8)
	copy(msg, nonce)
	binary.BigEndian.PutUint64(msg[len(nonce):], uint64(date))
	return msg
}

func inputsValue(ins []domain.Input) uint64 {
	var tot uint64
	for _, in := range ins {
		tot += in.Value
	}
	return tot
}

func toSwapInputs(ins []domain.Input) []swap.Input {
	out := make([]swap.Input, 0, len(ins))
	for _, in := range ins {
		out = append(out, swap.Input{
			TxID:   in.TxID,
			Index:  in.Index,
			Asset:  in.Asset,
			Value:  in.Value,
			Script: in.Script,
		})
	}
	return out
}
