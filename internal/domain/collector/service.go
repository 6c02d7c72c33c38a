// Package collector receives child records uploaded by field devices and
// serves them back to administrators.
package collector

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/domain/child"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrValidation = errors.New("missing required fields")
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "collector").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores r. A repeat upload of the same health id replaces the
// earlier copy, so devices can resend safely.
func (s *Service) Upload(ctx context.Context, r *child.Record, receivedBy string) (bool, error) {
	r.HealthID = strings.TrimSpace(r.HealthID)
	if r.HealthID == "" || strings.TrimSpace(r.ChildName) == "" {
		return false, ErrValidation
	}

	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if !r.Language.Valid() {
		r.Language = child.LangEnglish
	}
	r.IsUploaded = true

	created, err := s.repo.Upsert(ctx, r, receivedBy)
	if err != nil {
		return false, err
	}
	s.logger.Info().
		Str("health_id", r.HealthID).
		Str("representative_id", r.OwnerID).
		Bool("created", created).
		Msg("record uploaded")
	return created, nil
}

func (s *Service) Get(ctx context.Context, healthID string) (*StoredRecord, error) {
	return s.repo.GetByHealthID(ctx, strings.TrimSpace(healthID))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*StoredRecord, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Booklet builds the health booklet artifact for one record.
func (s *Service) Booklet(ctx context.Context, healthID string) (*Booklet, error) {
	rec, err := s.Get(ctx, healthID)
	if err != nil {
		return nil, err
	}
	return newBooklet(rec, s.now()), nil
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	stored, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(stored), nil
}

func summarize(stored []*StoredRecord) *Statistics {
	records := make([]*child.Record, len(stored))
	perRep := make(map[string]int)
	for i, s := range stored {
		records[i] = &s.Record
		if s.OwnerID != "" {
			perRep[s.OwnerID]++
		}
	}
	sum := child.Summarize(records)

	reps := make([]RepresentativeCount, 0, len(perRep))
	for id, n := range perRep {
		reps = append(reps, RepresentativeCount{RepresentativeID: id, Count: n})
	}
	sort.Slice(reps, func(i, j int) bool {
		if reps[i].Count != reps[j].Count {
			return reps[i].Count > reps[j].Count
		}
		return reps[i].RepresentativeID < reps[j].RepresentativeID
	})

	return &Statistics{
		TotalRecords:          sum.TotalChildren,
		UploadedRecords:       sum.TotalChildren,
		MalnutritionCases:     sum.MalnutritionCases,
		NormalCases:           sum.NormalCases,
		ModerateCases:         sum.ModerateCases,
		SevereCases:           sum.SevereCases,
		ActiveRepresentatives: sum.ActiveRepresentatives,
		Representatives:       reps,
	}
}

func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn().Int64("deleted", n).Msg("all records deleted")
	return n, nil
}
