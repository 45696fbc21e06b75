package localwallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	pkgwallet "github.com/tdex-network/tdex-tradeengine/pkg/wallet"
)

// SignInputs signs the inputs of the tx that are in the given list, looking
// for the key owning each of them among the derived addresses.
func (s *service) SignInputs(
	ctx context.Context, txHex string, inputs []domain.Input,
) (string, error) {
	tx, err := swap.DecodeTx(txHex)
	if err != nil {
		return "", err
	}

	for _, in := range inputs {
		index := swap.InputIndex(tx, in.TxID, in.Index)
		if index < 0 {
			return "", fmt.Errorf("input %s not found in tx", in.Key())
		}

		addr, err := s.vault.GetAddressByScript(ctx, hex.EncodeToString(in.Script))
		if err != nil {
			return "", err
		}
		if addr == nil {
			return "", fmt.Errorf("input %s is not owned by the wallet", in.Key())
		}
		path, err := pkgwallet.ParseDerivationPath(addr.DerivationPath)
		if err != nil {
			return "", err
		}
		key, err := s.keychain.DeriveKey(path)
		if err != nil {
			return "", err
		}
		if err := pkgwallet.SignP2WPKHInput(tx, index, key, in.Value); err != nil {
			return "", err
		}
	}

	return tx.ToHex()
}

func (s *service) SignEscrowInput(
	_ context.Context, tradeID, txHex string, inIndex int,
	witnessScript []byte, value uint64,
) ([]byte, error) {
	tx, err := swap.DecodeTx(txHex)
	if err != nil {
		return nil, err
	}
	key, err := s.escrowKey(tradeID)
	if err != nil {
		return nil, err
	}
	return pkgwallet.SignInput(pkgwallet.SignInputOpts{
		Tx:         tx,
		InIndex:    inIndex,
		PrivateKey: key,
		ScriptCode: witnessScript,
		Value:      value,
	})
}

func (s *service) SignMessage(
	_ context.Context, tradeID string, msg []byte,
) ([]byte, error) {
	key, err := s.escrowKey(tradeID)
	if err != nil {
		return nil, err
	}
	return pkgwallet.SignMessage(key, msg)
}

// RecoverySecret is the hash of the recovery key, never exposed otherwise.
func (s *service) RecoverySecret(_ context.Context) ([]byte, error) {
	path, err := pkgwallet.NewAccountPath(
		RecoveryAccount, pkgwallet.ExternalBranch, 0,
	)
	if err != nil {
		return nil, err
	}
	key, err := s.keychain.DeriveKey(path)
	if err != nil {
		return nil, err
	}
	secret := sha256.Sum256(key.Serialize())
	return secret[:], nil
}
