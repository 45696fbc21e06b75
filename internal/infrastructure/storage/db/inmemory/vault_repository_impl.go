package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

type vaultRepositoryImpl struct {
	addresses map[string]ports.WalletAddress
	order     []string
	locker    *sync.RWMutex
}

// NewVaultRepositoryImpl returns a new empty inmemory VaultRepository.
func NewVaultRepositoryImpl() ports.VaultRepository {
	return &vaultRepositoryImpl{
		addresses: make(map[string]ports.WalletAddress),
		locker:    &sync.RWMutex{},
	}
}

func (r *vaultRepositoryImpl) AddAddress(
	_ context.Context, addr ports.WalletAddress,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.addresses[addr.Script]; ok {
		return nil
	}
	r.addresses[addr.Script] = addr
	r.order = append(r.order, addr.Script)
	return nil
}

// GetAddressByScript returns nil if the script is not owned by the wallet.
func (r *vaultRepositoryImpl) GetAddressByScript(
	_ context.Context, script string,
) (*ports.WalletAddress, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	addr, ok := r.addresses[script]
	if !ok {
		return nil, nil
	}
	return &addr, nil
}

func (r *vaultRepositoryImpl) ListAddresses(
	_ context.Context,
) ([]ports.WalletAddress, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	addresses := make([]ports.WalletAddress, 0, len(r.order))
	for _, script := range r.order {
		addresses = append(addresses, r.addresses[script])
	}
	sort.SliceStable(addresses, func(i, j int) bool {
		return addresses[i].Funding && !addresses[j].Funding
	})
	return addresses, nil
}

func (r *vaultRepositoryImpl) CountFundingAddresses(_ context.Context) (int, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	count := 0
	for _, addr := range r.addresses {
		if addr.Funding {
			count++
		}
	}
	return count, nil
}
