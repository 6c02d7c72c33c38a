// Package localstore is the encrypted on-device store for child records,
// known identities and session settings. It is a single SQLite file whose
// schema is versioned with embedded migrations.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/childhealth/fieldsync/internal/platform/fieldcrypt"
)

var (
	// ErrStorage wraps every failure of the underlying engine.
	ErrStorage = errors.New("local store")
	// ErrNotFound is returned when a keyed lookup that must succeed misses.
	ErrNotFound = errors.New("local store: not found")
	// ErrDuplicateHealthID is returned when a second record claims an
	// existing health id. It also matches ErrStorage.
	ErrDuplicateHealthID = fmt.Errorf("%w: duplicate health id", ErrStorage)
	// ErrHealthIDChanged is returned when a save would give an existing
	// record a different health id.
	ErrHealthIDChanged = errors.New("local store: health id cannot change")
)

// Store is safe for concurrent use. The database is opened lazily by Init
// (or the first operation), and concurrent first calls share one open.
type Store struct {
	path   string
	enc    fieldcrypt.FieldEncryptor
	logger zerolog.Logger

	initGroup singleflight.Group
	mu        sync.RWMutex
	db        *sql.DB
}

// Open returns a store for the database file at path. Nothing touches the
// disk until Init. enc may be nil to store sensitive fields unencrypted.
func Open(path string, enc fieldcrypt.FieldEncryptor, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		enc:    enc,
		logger: logger.With().Str("component", "localstore").Logger(),
	}
}

// Init opens the database and applies pending migrations. It is idempotent;
// a failed Init is not remembered and the next call tries again.
func (s *Store) Init(ctx context.Context) error {
	if s.handle() != nil {
		return nil
	}
	_, err, _ := s.initGroup.Do("init", func() (interface{}, error) {
		if s.handle() != nil {
			return nil, nil
		}
		db, err := sql.Open("sqlite", dsn(s.path))
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection serialises access
		// instead of surfacing SQLITE_BUSY.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		version, err := migrate(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
		s.logger.Debug().Str("path", s.path).Int64("schema_version", version).Msg("local store ready")
		return nil, nil
	})
	if err != nil {
		return storageErr("init", err)
	}
	return nil
}

// Close releases the database. The store can be re-opened with Init.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return storageErr("close", err)
	}
	return nil
}

// Destroy closes the store and deletes its files.
func (s *Store) Destroy() error {
	if err := s.Close(); err != nil {
		return err
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return storageErr("delete database", err)
		}
	}
	s.logger.Info().Str("path", s.path).Msg("local database deleted")
	return nil
}

func (s *Store) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// conn returns the open database, initializing it on first use.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	if db := s.handle(); db != nil {
		return db, nil
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if db := s.handle(); db != nil {
		return db, nil
	}
	return nil, storageErr("init", errors.New("store closed"))
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
