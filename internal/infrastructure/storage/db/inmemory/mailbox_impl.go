package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

type mailboxImpl struct {
	entries map[string]ports.MailboxEntry
	locker  *sync.Mutex
}

// NewMailboxImpl returns a new inmemory Mailbox implementation.
func NewMailboxImpl() ports.Mailbox {
	return &mailboxImpl{
		entries: make(map[string]ports.MailboxEntry),
		locker:  &sync.Mutex{},
	}
}

func (m *mailboxImpl) AddEntry(_ context.Context, entry ports.MailboxEntry) error {
	m.locker.Lock()
	defer m.locker.Unlock()

	if _, ok := m.entries[entry.ID]; !ok {
		m.entries[entry.ID] = entry
	}
	return nil
}

func (m *mailboxImpl) UpdateEntry(_ context.Context, entry ports.MailboxEntry) error {
	m.locker.Lock()
	defer m.locker.Unlock()

	if _, ok := m.entries[entry.ID]; !ok {
		return ErrMailboxEntryNotFound
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *mailboxImpl) RemoveEntry(_ context.Context, id string) error {
	m.locker.Lock()
	defer m.locker.Unlock()

	delete(m.entries, id)
	return nil
}

func (m *mailboxImpl) ListEntries(_ context.Context) ([]ports.MailboxEntry, error) {
	m.locker.Lock()
	defer m.locker.Unlock()

	entries := make([]ports.MailboxEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt < entries[j].CreatedAt
	})
	return entries, nil
}
