package child

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childhealth/fieldsync/internal/domain/identity"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*Record{}}
}

func (m *memStore) Save(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memStore) GetAll(_ context.Context) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) GetByHealthID(_ context.Context, healthID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.HealthID == healthID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string) ([]*Record, error) {
	all, _ := m.GetAll(ctx)
	out := all[:0]
	for _, r := range all {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CountPending(ctx context.Context) (int, error) {
	all, _ := m.GetAll(ctx)
	n := 0
	for _, r := range all {
		if !r.IsUploaded {
			n++
		}
	}
	return n, nil
}

type fixedSession struct {
	who *identity.Identity
}

func (f *fixedSession) CurrentCredential() (string, bool) { return "", false }

func (f *fixedSession) CurrentIdentity() (*identity.Identity, bool) {
	if f.who == nil {
		return nil, false
	}
	return f.who, true
}

func validInput() CollectInput {
	return CollectInput{
		ChildName:       "Aarav Kumar",
		FacePhoto:       "data:image/jpeg;base64,AAAA",
		Age:             3,
		WeightKg:        14,
		HeightCm:        95,
		GuardianName:    "Sunita Kumar",
		ParentalConsent: true,
		Language:        LangHindi,
	}
}

func newTestService(store RecordStore, who *identity.Identity) *Service {
	return NewService(store, &fixedSession{who: who}, zerolog.New(io.Discard))
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, &identity.Identity{ID: "rep_1"})
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	r, err := svc.Collect(ctx, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.True(t, ValidHealthID(r.HealthID))
	assert.Equal(t, "rep_1", r.OwnerID)
	assert.False(t, r.IsUploaded)
	assert.Equal(t, noneReported, r.VisibleSigns)
	assert.Equal(t, noneReported, r.RecentIllnesses)
	assert.Equal(t, LangHindi, r.Language)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)
	assert.Len(t, store.records, 1)
}

func TestCollect_ValidationErrors(t *testing.T) {
	svc := newTestService(newMemStore(), &identity.Identity{ID: "rep_1"})

	in := validInput()
	in.ChildName = "  "
	in.WeightKg = 0
	in.HeightCm = -1
	in.ParentalConsent = false
	in.Language = "fr"

	_, err := svc.Collect(context.Background(), in)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, f := range []string{"childName", "childWeight", "childHeight", "parentalConsent", "language"} {
		assert.Contains(t, verr.Fields, f)
	}
	assert.NotContains(t, verr.Fields, "age")
}

func TestCollect_RequiresIdentity(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	_, err := svc.Collect(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestCollect_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	svc := newTestService(store, &identity.Identity{ID: "rep_1"})

	_, err := svc.Collect(context.Background(), validInput())
	assert.Error(t, err)
}

func seed(store *memStore, owner, name, guardian string, uploaded bool, created time.Time) *Record {
	r := &Record{
		ID:           GenerateHealthID(),
		HealthID:     GenerateHealthID(),
		ChildName:    name,
		GuardianName: guardian,
		OwnerID:      owner,
		IsUploaded:   uploaded,
		CreatedAt:    created,
		Age:          3,
		WeightKg:     14,
		HeightCm:     95,
	}
	_ = store.Save(context.Background(), r)
	return r
}

func TestListMine_ScopedFilteredSorted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	older := seed(store, "rep_1", "Aarav", "Sunita", false, base)
	newer := seed(store, "rep_1", "Meena", "Ravi", true, base.Add(time.Hour))
	seed(store, "rep_2", "Other", "Someone", false, base.Add(2*time.Hour))

	svc := newTestService(store, &identity.Identity{ID: "rep_1"})

	all, err := svc.ListMine(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	pending, _ := svc.ListMine(ctx, ListFilter{Status: FilterPending})
	require.Len(t, pending, 1)
	assert.Equal(t, older.ID, pending[0].ID)

	uploaded, _ := svc.ListMine(ctx, ListFilter{Status: FilterUploaded})
	require.Len(t, uploaded, 1)
	assert.Equal(t, newer.ID, uploaded[0].ID)

	byGuardian, _ := svc.ListMine(ctx, ListFilter{Search: "ravi"})
	require.Len(t, byGuardian, 1)
	assert.Equal(t, newer.ID, byGuardian[0].ID)

	byHealthID, _ := svc.ListMine(ctx, ListFilter{Search: older.HealthID[4:10]})
	assert.NotEmpty(t, byHealthID)

	none, _ := svc.ListMine(ctx, ListFilter{Search: "Other"})
	assert.Empty(t, none)

	everyone, err := svc.ListAll(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, everyone, 3)
}

func TestListMine_RequiresIdentity(t *testing.T) {
	_, err := newTestService(newMemStore(), nil).ListMine(context.Background(), ListFilter{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestLookup_NormalizesHealthID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := seed(store, "rep_1", "Aarav", "Sunita", false, time.Now())
	svc := newTestService(store, nil)

	got, err := svc.Lookup(ctx, "  "+r.HealthID+" ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	missing, err := svc.Lookup(ctx, "CHR-NOPE-00000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
