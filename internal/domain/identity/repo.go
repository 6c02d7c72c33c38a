package identity

import "context"

// Store persists known identities.
type Store interface {
	SaveIdentity(ctx context.Context, id *Identity) error
	GetIdentityByNationalID(ctx context.Context, nationalID string) (*Identity, error)
}

// SettingsStore persists small key/value state such as the active session.
type SettingsStore interface {
	PutSetting(ctx context.Context, key string, value []byte) error
	GetSetting(ctx context.Context, key string) ([]byte, bool, error)
	DeleteSetting(ctx context.Context, key string) error
}
