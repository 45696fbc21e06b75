package inmemory

import (
	"context"
	"sync"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

type backupStorageImpl struct {
	blobs  map[string][]byte
	locker *sync.RWMutex
}

// NewBackupStorageImpl returns a new inmemory BackupStorage implementation.
func NewBackupStorageImpl() ports.BackupStorage {
	return &backupStorageImpl{
		blobs:  make(map[string][]byte),
		locker: &sync.RWMutex{},
	}
}

func (b *backupStorageImpl) Publish(
	_ context.Context, key string, blob []byte,
) error {
	if len(key) <= 0 {
		return ErrInvalidBackupKey
	}
	b.locker.Lock()
	defer b.locker.Unlock()

	b.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (b *backupStorageImpl) Get(_ context.Context, key string) ([]byte, error) {
	b.locker.RLock()
	defer b.locker.RUnlock()

	blob, ok := b.blobs[key]
	if !ok {
		return nil, ErrBackupNotFound
	}
	return append([]byte(nil), blob...), nil
}
