package collector

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/platform/db"
	"github.com/childhealth/fieldsync/internal/platform/fieldcrypt"
)

const recordsTable = "child_records"

var insertColumns = []string{
	"health_id", "record_id", "child_name", "face_photo", "age", "child_weight", "child_height",
	"parent_guardian_name", "visible_signs_malnutrition", "recent_illnesses", "parental_consent",
	"latitude", "longitude", "address", "language", "representative_id", "received_by",
	"created_at", "updated_at",
}

var selectColumns = append(append([]string{}, insertColumns...), "uploaded_at", "upload_count")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type recordRepoPG struct {
	db     db.Querier
	enc    fieldcrypt.FieldEncryptor
	logger zerolog.Logger
}

// NewRepoPG stores records in Postgres. Child name, guardian name and photo
// are encrypted with enc before they reach the database; a nil enc stores
// them as given.
func NewRepoPG(q db.Querier, enc fieldcrypt.FieldEncryptor, logger zerolog.Logger) Repository {
	return &recordRepoPG{db: q, enc: enc, logger: logger}
}

func (r *recordRepoPG) Upsert(ctx context.Context, rec *child.Record, receivedBy string) (bool, error) {
	sealed := *rec
	if err := fieldcrypt.Seal(r.enc, fieldcrypt.RecordValues(&sealed)); err != nil {
		return false, fmt.Errorf("encrypt record %s: %w", rec.HealthID, err)
	}
	name, guardian, photo := sealed.ChildName, sealed.GuardianName, sealed.FacePhoto

	var lat, lon, addr interface{}
	if rec.Location != nil {
		lat, lon, addr = rec.Location.Latitude, rec.Location.Longitude, rec.Location.Address
	}

	query, args, err := psql.Insert(recordsTable).
		Columns(insertColumns...).
		Values(
			rec.HealthID, rec.ID, name, photo, rec.Age, rec.WeightKg, rec.HeightCm,
			guardian, rec.VisibleSigns, rec.RecentIllnesses, rec.ParentalConsent,
			lat, lon, addr, string(rec.Language), rec.OwnerID, receivedBy,
			rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix(`ON CONFLICT (health_id) DO UPDATE SET
			record_id = EXCLUDED.record_id,
			child_name = EXCLUDED.child_name,
			face_photo = EXCLUDED.face_photo,
			age = EXCLUDED.age,
			child_weight = EXCLUDED.child_weight,
			child_height = EXCLUDED.child_height,
			parent_guardian_name = EXCLUDED.parent_guardian_name,
			visible_signs_malnutrition = EXCLUDED.visible_signs_malnutrition,
			recent_illnesses = EXCLUDED.recent_illnesses,
			parental_consent = EXCLUDED.parental_consent,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			address = EXCLUDED.address,
			language = EXCLUDED.language,
			representative_id = EXCLUDED.representative_id,
			received_by = EXCLUDED.received_by,
			updated_at = EXCLUDED.updated_at,
			uploaded_at = NOW(),
			upload_count = ` + recordsTable + `.upload_count + 1
		RETURNING (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert: %w", err)
	}

	var inserted bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
		return false, fmt.Errorf("upsert record %s: %w", rec.HealthID, err)
	}
	return inserted, nil
}

func (r *recordRepoPG) GetByHealthID(ctx context.Context, healthID string) (*StoredRecord, error) {
	query, args, err := psql.Select(selectColumns...).
		From(recordsTable).
		Where(sq.Eq{"health_id": healthID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}

	rec, err := r.scan(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", healthID, err)
	}
	return rec, nil
}

func (r *recordRepoPG) List(ctx context.Context, limit, offset int) ([]*StoredRecord, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+recordsTable).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query, args, err := psql.Select(selectColumns...).
		From(recordsTable).
		OrderBy("uploaded_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *recordRepoPG) All(ctx context.Context) ([]*StoredRecord, error) {
	query, args, err := psql.Select(selectColumns...).
		From(recordsTable).
		OrderBy("uploaded_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	return r.query(ctx, query, args...)
}

func (r *recordRepoPG) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+recordsTable)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *recordRepoPG) query(ctx context.Context, query string, args ...interface{}) ([]*StoredRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var items []*StoredRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return items, nil
}

func (r *recordRepoPG) scan(row pgx.Row) (*StoredRecord, error) {
	var (
		s        StoredRecord
		lat, lon *float64
		addr     *string
		lang     string
	)
	err := row.Scan(
		&s.HealthID, &s.ID, &s.ChildName, &s.FacePhoto, &s.Age, &s.WeightKg, &s.HeightCm,
		&s.GuardianName, &s.VisibleSigns, &s.RecentIllnesses, &s.ParentalConsent,
		&lat, &lon, &addr, &lang, &s.OwnerID, &s.ReceivedBy,
		&s.CreatedAt, &s.UpdatedAt, &s.UploadedAt, &s.UploadCount,
	)
	if err != nil {
		return nil, err
	}

	s.Language = child.Language(lang)
	s.IsUploaded = true
	if lat != nil && lon != nil {
		s.Location = &child.Location{Latitude: *lat, Longitude: *lon}
		if addr != nil {
			s.Location.Address = *addr
		}
	}
	r.decrypt(&s)
	return &s, nil
}

// decrypt opens the sensitive fields in place. A field that fails to
// decrypt is left as stored so one bad row does not hide the rest.
func (r *recordRepoPG) decrypt(s *StoredRecord) {
	for name, err := range fieldcrypt.Open(r.enc, fieldcrypt.RecordValues(&s.Record)) {
		r.logger.Warn().Err(err).Str("health_id", s.HealthID).Str("field", name).Msg("field decrypt failed")
	}
}
