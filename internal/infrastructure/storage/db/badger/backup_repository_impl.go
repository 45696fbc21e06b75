package dbbadger

import (
	"context"
	"errors"
	"time"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

type backup struct {
	Key       string
	Blob      []byte
	CreatedAt int64
}

type backupStorageImpl struct {
	store *badgerhold.Store
}

// NewBackupStorageImpl returns a badgerhold BackupStorage implementation.
// Publishing a blob for an existing key overwrites it.
func NewBackupStorageImpl(db *DbManager) ports.BackupStorage {
	return backupStorageImpl{db.BackupStore}
}

func (b backupStorageImpl) Publish(
	_ context.Context, key string, blob []byte,
) error {
	if len(key) <= 0 {
		return ErrInvalidBackupKey
	}
	return b.store.Upsert(key, &backup{
		Key:       key,
		Blob:      append([]byte(nil), blob...),
		CreatedAt: time.Now().Unix(),
	})
}

func (b backupStorageImpl) Get(_ context.Context, key string) ([]byte, error) {
	var bk backup
	if err := b.store.Get(key, &bk); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	return bk.Blob, nil
}
