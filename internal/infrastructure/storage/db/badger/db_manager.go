package dbbadger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	tradeDbDir   = "trades"
	backupDbDir  = "backups"
	mailboxDbDir = "mailbox"
	vaultDbDir   = "vault"

	gcInterval = 30 * time.Minute
)

// DbManager holds all the badgerhold stores in a single data structure.
type DbManager struct {
	TradeStore   *badgerhold.Store
	BackupStore  *badgerhold.Store
	MailboxStore *badgerhold.Store
	VaultStore   *badgerhold.Store
}

// NewDbManager opens (or creates if not exists) the badger stores on disk.
// It creates a dedicated directory for trades, backups, mailbox messages and
// wallet addresses.
// An empty baseDbDir opens the stores in memory.
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	tradeDb, err := NewStore(dbPath(baseDbDir, tradeDbDir), logger)
	if err != nil {
		return nil, fmt.Errorf("opening trade db: %w", err)
	}

	backupDb, err := NewStore(dbPath(baseDbDir, backupDbDir), logger)
	if err != nil {
		return nil, fmt.Errorf("opening backup db: %w", err)
	}

	mailboxDb, err := NewStore(dbPath(baseDbDir, mailboxDbDir), logger)
	if err != nil {
		return nil, fmt.Errorf("opening mailbox db: %w", err)
	}

	vaultDb, err := NewStore(dbPath(baseDbDir, vaultDbDir), logger)
	if err != nil {
		return nil, fmt.Errorf("opening vault db: %w", err)
	}

	return &DbManager{
		TradeStore:   tradeDb,
		BackupStore:  backupDb,
		MailboxStore: mailboxDb,
		VaultStore:   vaultDb,
	}, nil
}

// Close closes all the stores.
func (d *DbManager) Close() {
	for _, store := range []*badgerhold.Store{
		d.TradeStore, d.BackupStore, d.MailboxStore, d.VaultStore,
	} {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close db")
		}
	}
}

// NewLogger returns a logrus backed badger logger that only reports warnings
// and errors, unless the global log level is debug.
func NewLogger() badger.Logger {
	logger := log.New()
	logger.SetFormatter(log.StandardLogger().Formatter)
	logger.SetLevel(log.WarnLevel)
	if log.GetLevel() >= log.DebugLevel {
		logger.SetLevel(log.DebugLevel)
	}
	return logger.WithField("module", "badger")
}

func dbPath(baseDbDir, name string) string {
	if len(baseDbDir) <= 0 {
		return ""
	}
	return filepath.Join(baseDbDir, name)
}

// NewStore opens a badgerhold store in the given directory, or in memory if
// dbDir is empty.
func NewStore(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite {
					log.Error(err)
				}
			}
		}()
	}

	return db, nil
}
