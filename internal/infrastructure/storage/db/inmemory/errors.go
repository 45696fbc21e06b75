package inmemory

import "errors"

var (
	// ErrBackupNotFound ...
	ErrBackupNotFound = errors.New("backup not found")
	// ErrInvalidBackupKey ...
	ErrInvalidBackupKey = errors.New("backup key must not be empty")
	// ErrMailboxEntryNotFound ...
	ErrMailboxEntryNotFound = errors.New("mailbox entry not found")
)
