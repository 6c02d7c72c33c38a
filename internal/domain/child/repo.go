package child

import "context"

// RecordStore is the persistence the collection flow needs. The encrypted
// local store implements it on devices.
type RecordStore interface {
	Save(ctx context.Context, r *Record) error
	GetAll(ctx context.Context) ([]*Record, error)
	GetByHealthID(ctx context.Context, healthID string) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	CountPending(ctx context.Context) (int, error)
}
