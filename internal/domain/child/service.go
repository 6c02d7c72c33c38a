package child

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/domain/identity"
)

// ErrNoIdentity is returned when an operation needs a signed-in
// representative and there is none.
var ErrNoIdentity = errors.New("no signed-in representative")

const noneReported = "None reported"

// Service registers children for the signed-in field agent. It derives the
// health ID and nutrition indicators and saves the record as pending upload.
type Service struct {
	store   RecordStore
	session identity.Provider
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService returns a Service that saves into store and stamps records with
// the agent from session.
func NewService(store RecordStore, session identity.Provider, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		session: session,
		logger:  logger.With().Str("component", "child").Logger(),
		now:     time.Now,
	}
}

// Collect validates a new observation, stamps it with a fresh id and health
// id, and saves it locally as pending upload for the current representative.
func (s *Service) Collect(ctx context.Context, in CollectInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	who, ok := s.session.CurrentIdentity()
	if !ok {
		return nil, ErrNoIdentity
	}

	now := s.now().UTC()
	lang := in.Language
	if lang == "" {
		lang = LangEnglish
	}
	r := &Record{
		ID:              uuid.NewString(),
		HealthID:        GenerateHealthID(),
		ChildName:       strings.TrimSpace(in.ChildName),
		FacePhoto:       in.FacePhoto,
		Age:             in.Age,
		WeightKg:        in.WeightKg,
		HeightCm:        in.HeightCm,
		GuardianName:    strings.TrimSpace(in.GuardianName),
		VisibleSigns:    orDefault(in.VisibleSigns, noneReported),
		RecentIllnesses: orDefault(in.RecentIllnesses, noneReported),
		ParentalConsent: in.ParentalConsent,
		Location:        in.Location,
		CreatedAt:       now,
		UpdatedAt:       now,
		IsUploaded:      false,
		OwnerID:         who.ID,
		Language:        lang,
	}

	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}

	_, status := r.Assessment()
	s.logger.Info().
		Str("health_id", r.HealthID).
		Str("owner_id", r.OwnerID).
		Str("status", status.String()).
		Msg("record collected")
	return r, nil
}

// ListMine returns the current representative's records, newest first.
func (s *Service) ListMine(ctx context.Context, f ListFilter) ([]*Record, error) {
	who, ok := s.session.CurrentIdentity()
	if !ok {
		return nil, ErrNoIdentity
	}
	records, err := s.store.ListByOwner(ctx, who.ID)
	if err != nil {
		return nil, err
	}
	return filterAndSort(records, f), nil
}

// ListAll returns every record on the device regardless of owner. Intended
// for the admin dashboard.
func (s *Service) ListAll(ctx context.Context, f ListFilter) ([]*Record, error) {
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterAndSort(records, f), nil
}

// Lookup returns the record with the given health id, or nil if there is
// none on this device.
func (s *Service) Lookup(ctx context.Context, healthID string) (*Record, error) {
	return s.store.GetByHealthID(ctx, strings.ToUpper(strings.TrimSpace(healthID)))
}

// PendingCount is the number of records still waiting to be uploaded.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPending(ctx)
}

func filterAndSort(records []*Record, f ListFilter) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
