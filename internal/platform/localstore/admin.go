package localstore

import (
	"context"
	"fmt"
)

// Collection describes one table of the store.
type Collection struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Info summarizes the store for diagnostics.
type Info struct {
	Path        string       `json:"path"`
	Version     int64        `json:"version"`
	Collections []Collection `json:"collections"`
}

var collections = []string{"records", "identities", "settings"}

func (s *Store) Info(ctx context.Context) (*Info, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(db)
	if err != nil {
		return nil, storageErr("info", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, storageErr("schema version", err)
	}

	info := &Info{Path: s.path, Version: version}
	for _, name := range collections {
		var n int
		// name comes from the fixed list above
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&n); err != nil {
			return nil, storageErr("count "+name, err)
		}
		info.Collections = append(info.Collections, Collection{Name: name, Count: n})
	}
	return info, nil
}

// ClearAll deletes every record and identity in one transaction. Settings,
// including the active session, are kept.
func (s *Store) ClearAll(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin clear", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM records", "DELETE FROM identities"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storageErr("clear", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit clear", err)
	}
	s.logger.Warn().Msg("all local records and identities cleared")
	return nil
}
