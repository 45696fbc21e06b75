package localwallet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

const (
	// FundingAccount receives the coins spent by the trades.
	FundingAccount = 0
	// TradeAccount holds the change and payout addresses of the trades.
	TradeAccount = 1
	// EscrowAccount holds the escrow and message signing keys of the trades.
	EscrowAccount = 2
	// RecoveryAccount holds the key backups are encrypted with.
	RecoveryAccount = 3
	// IdentityAccount holds the key the node signs its transport envelopes
	// with.
	IdentityAccount = 4

	escrowPurpose = "ESCROW"
)

// DeriveReceiveAddress returns a new funding address.
func (s *service) DeriveReceiveAddress(ctx context.Context) (string, error) {
	count, err := s.vault.CountFundingAddresses(ctx)
	if err != nil {
		return "", err
	}
	path, err := pkgwallet.NewAccountPath(
		FundingAccount, pkgwallet.ExternalBranch, uint32(count),
	)
	if err != nil {
		return "", err
	}
	return s.deriveAndStore(ctx, path, ports.WalletAddress{Funding: true})
}

// DeriveAddress derives the address for the given trade and purpose from an
// index that is a hash of both, so that the same address is returned after a
// restart.
func (s *service) DeriveAddress(
	ctx context.Context, purpose ports.AddressPurpose, tradeID string,
) (string, error) {
	branch := uint32(pkgwallet.InternalBranch)
	if purpose == ports.AddressPayout {
		branch = pkgwallet.ExternalBranch
	}
	path, err := pkgwallet.NewAccountPath(
		TradeAccount, branch, tradeIndex(string(purpose), tradeID),
	)
	if err != nil {
		return "", err
	}
	return s.deriveAndStore(ctx, path, ports.WalletAddress{
		TradeID: tradeID,
		Purpose: string(purpose),
	})
}

func (s *service) EscrowKey(_ context.Context, tradeID string) ([]byte, error) {
	key, err := s.escrowKey(tradeID)
	if err != nil {
		return nil, err
	}
	return key.PubKey().SerializeCompressed(), nil
}

func (s *service) escrowKey(tradeID string) (*btcec.PrivateKey, error) {
	path, err := pkgwallet.NewAccountPath(
		EscrowAccount, pkgwallet.ExternalBranch,
		tradeIndex(escrowPurpose, tradeID),
	)
	if err != nil {
		return nil, err
	}
	return s.keychain.DeriveKey(path)
}

func (s *service) deriveAndStore(
	ctx context.Context, path pkgwallet.DerivationPath,
	info ports.WalletAddress,
) (string, error) {
	addr, script, err := s.keychain.DeriveAddress(path)
	if err != nil {
		return "", err
	}
	info.Address = addr
	info.Script = hex.EncodeToString(script)
	info.DerivationPath = path.String()
	if err := s.vault.AddAddress(ctx, info); err != nil {
		return "", err
	}
	return addr, nil
}

// tradeIndex maps purpose and trade to a non hardened child index.
func tradeIndex(purpose, tradeID string) uint32 {
	hash := sha256.Sum256([]byte(purpose + "|" + tradeID))
	return binary.BigEndian.Uint32(hash[:4]) & 0x7fffffff
}

// IdentityKey returns the key peers know this node by.
func (s *service) IdentityKey() (*btcec.PrivateKey, error) {
	path, err := pkgwallet.NewAccountPath(
		IdentityAccount, pkgwallet.ExternalBranch, 0,
	)
	if err != nil {
		return nil, err
	}
	return s.keychain.DeriveKey(path)
}
