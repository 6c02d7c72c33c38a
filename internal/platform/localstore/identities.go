package localstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/childhealth/fieldsync/internal/domain/identity"
)

// SaveIdentity inserts or replaces an identity keyed by its id.
func (s *Store) SaveIdentity(ctx context.Context, id *identity.Identity) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO identities (id, national_id, name, email, phone, region, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			national_id = excluded.national_id,
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			region = excluded.region`,
		id.ID, id.NationalID, id.Name, id.Email, id.Phone, id.Region, toMillis(id.CreatedAt))
	if err != nil {
		return storageErr("save identity", err)
	}
	return nil
}

// GetIdentityByNationalID returns the identity registered for nationalID,
// or nil when there is none.
func (s *Store) GetIdentityByNationalID(ctx context.Context, nationalID string) (*identity.Identity, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var (
		who     identity.Identity
		created int64
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, national_id, name, email, phone, region, created_at
		FROM identities WHERE national_id = ?`, nationalID).
		Scan(&who.ID, &who.NationalID, &who.Name, &who.Email, &who.Phone, &who.Region, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get identity", err)
	}
	who.CreatedAt = fromMillis(created)
	return &who, nil
}
