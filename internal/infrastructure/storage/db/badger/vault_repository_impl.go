package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

type vaultRepositoryImpl struct {
	store *badgerhold.Store
}

// NewVaultRepositoryImpl returns a badgerhold VaultRepository. Addresses are
// keyed by their output script.
func NewVaultRepositoryImpl(db *DbManager) ports.VaultRepository {
	return vaultRepositoryImpl{db.VaultStore}
}

func (v vaultRepositoryImpl) AddAddress(
	_ context.Context, addr ports.WalletAddress,
) error {
	if err := v.store.Insert(addr.Script, &addr); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return err
	}
	return nil
}

// GetAddressByScript returns nil if the script is not owned by the wallet.
func (v vaultRepositoryImpl) GetAddressByScript(
	_ context.Context, script string,
) (*ports.WalletAddress, error) {
	var addr ports.WalletAddress
	if err := v.store.Get(script, &addr); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &addr, nil
}

func (v vaultRepositoryImpl) ListAddresses(
	_ context.Context,
) ([]ports.WalletAddress, error) {
	var addresses []ports.WalletAddress
	if err := v.store.Find(&addresses, nil); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (v vaultRepositoryImpl) CountFundingAddresses(_ context.Context) (int, error) {
	count, err := v.store.Count(
		&ports.WalletAddress{}, badgerhold.Where("Funding").Eq(true),
	)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
