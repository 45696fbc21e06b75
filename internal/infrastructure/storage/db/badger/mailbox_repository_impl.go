package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

type mailboxImpl struct {
	store *badgerhold.Store
}

// NewMailboxImpl returns a badgerhold Mailbox implementation.
func NewMailboxImpl(db *DbManager) ports.Mailbox {
	return mailboxImpl{db.MailboxStore}
}

func (m mailboxImpl) AddEntry(_ context.Context, entry ports.MailboxEntry) error {
	if err := m.store.Insert(entry.ID, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return err
	}
	return nil
}

func (m mailboxImpl) UpdateEntry(_ context.Context, entry ports.MailboxEntry) error {
	return m.store.Update(entry.ID, &entry)
}

func (m mailboxImpl) RemoveEntry(_ context.Context, id string) error {
	if err := m.store.Delete(id, ports.MailboxEntry{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (m mailboxImpl) ListEntries(_ context.Context) ([]ports.MailboxEntry, error) {
	var entries []ports.MailboxEntry
	if err := m.store.Find(
		&entries, badgerhold.Where("CreatedAt").Ge(int64(0)).SortBy("CreatedAt"),
	); err != nil {
		return nil, err
	}
	return entries, nil
}
