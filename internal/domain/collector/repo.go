package collector

import (
	"context"

	"github.com/childhealth/fieldsync/internal/domain/child"
)

// Repository stores uploaded records keyed by health id.
type Repository interface {
	// Upsert inserts r or replaces the record with the same health id and
	// reports whether a new row was created.
	Upsert(ctx context.Context, r *child.Record, receivedBy string) (bool, error)
	GetByHealthID(ctx context.Context, healthID string) (*StoredRecord, error)
	List(ctx context.Context, limit, offset int) ([]*StoredRecord, int, error)
	All(ctx context.Context) ([]*StoredRecord, error)
	DeleteAll(ctx context.Context) (int64, error)
}
