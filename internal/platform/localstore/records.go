package localstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/platform/fieldcrypt"
)

const recordsTable = "records"

var recordColumns = []string{
	"id", "health_id", "child_name", "face_photo", "age", "weight_kg", "height_cm",
	"guardian_name", "visible_signs", "recent_illnesses", "parental_consent",
	"latitude", "longitude", "address", "language", "is_uploaded", "owner_id",
	"created_at", "updated_at",
}

// Save inserts r, or updates the stored record with the same id. The
// sensitive fields are encrypted independently; r itself is not modified.
//
// An update never clears is_uploaded, never replaces a location that is
// already set, and cannot change the health id: saving a copy with a
// different health id fails with ErrHealthIDChanged.
func (s *Store) Save(ctx context.Context, r *child.Record) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	sealed := *r
	if err := fieldcrypt.Seal(s.enc, fieldcrypt.RecordValues(&sealed)); err != nil {
		return storageErr("encrypt record", err)
	}
	name, guardian, photo := sealed.ChildName, sealed.GuardianName, sealed.FacePhoto

	var lat, lon, addr interface{}
	if r.Location != nil {
		lat, lon, addr = r.Location.Latitude, r.Location.Longitude, r.Location.Address
	}

	query, args, err := sq.Insert(recordsTable).
		Columns(recordColumns...).
		Values(
			r.ID, r.HealthID, name, photo, r.Age, r.WeightKg, r.HeightCm,
			guardian, r.VisibleSigns, r.RecentIllnesses, r.ParentalConsent,
			lat, lon, addr, string(r.Language), r.IsUploaded, r.OwnerID,
			toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			child_name = excluded.child_name,
			face_photo = excluded.face_photo,
			age = excluded.age,
			weight_kg = excluded.weight_kg,
			height_cm = excluded.height_cm,
			guardian_name = excluded.guardian_name,
			visible_signs = excluded.visible_signs,
			recent_illnesses = excluded.recent_illnesses,
			parental_consent = excluded.parental_consent,
			latitude = COALESCE(records.latitude, excluded.latitude),
			longitude = COALESCE(records.longitude, excluded.longitude),
			address = COALESCE(records.address, excluded.address),
			language = excluded.language,
			is_uploaded = MAX(records.is_uploaded, excluded.is_uploaded),
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at
		WHERE records.health_id = excluded.health_id`).
		ToSql()
	if err != nil {
		return storageErr("build save", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateHealthID
		}
		return storageErr("save record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("save record", err)
	}
	if n == 0 {
		return ErrHealthIDChanged
	}
	return nil
}

// GetAll returns every record with sensitive fields decrypted. A field that
// fails to decrypt is returned as stored and logged; the scan carries on.
func (s *Store) GetAll(ctx context.Context) ([]*child.Record, error) {
	return s.queryRecords(ctx, s.selectRecords().OrderBy("created_at ASC"))
}

// GetByHealthID returns the record with the given health id, or nil when
// there is none.
func (s *Store) GetByHealthID(ctx context.Context, healthID string) (*child.Record, error) {
	records, err := s.queryRecords(ctx, s.selectRecords().Where(sq.Eq{"health_id": healthID}).Limit(1))
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// ListPending returns the records not yet uploaded, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]*child.Record, error) {
	return s.queryRecords(ctx, s.selectRecords().
		Where(sq.Eq{"is_uploaded": false}).
		OrderBy("created_at ASC"))
}

// ListByOwner returns the records collected by one identity, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*child.Record, error) {
	return s.queryRecords(ctx, s.selectRecords().
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC"))
}

// CountPending returns the number of records not yet uploaded.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE is_uploaded = 0").Scan(&n); err != nil {
		return 0, storageErr("count pending", err)
	}
	return n, nil
}

// MarkUploaded flags the record as uploaded and refreshes its updated_at in
// one transaction. The sensitive fields are read back, opened and sealed
// again with fresh nonces before the write; a field that will not decrypt
// is written back exactly as stored. Marking an already uploaded record
// again succeeds.
func (s *Store) MarkUploaded(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin mark uploaded", err)
	}
	defer tx.Rollback()

	var name, guardian, photo string
	err = tx.QueryRowContext(ctx,
		"SELECT child_name, guardian_name, face_photo FROM records WHERE id = ?", id,
	).Scan(&name, &guardian, &photo)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return storageErr("read record", err)
	}

	stored := fieldcrypt.Values{
		fieldcrypt.FieldChildName:    &name,
		fieldcrypt.FieldGuardianName: &guardian,
		fieldcrypt.FieldFacePhoto:    &photo,
	}
	if err := s.reseal(stored); err != nil {
		return storageErr("encrypt record", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET is_uploaded = 1, updated_at = ?, child_name = ?, guardian_name = ?, face_photo = ? WHERE id = ?",
		toMillis(time.Now()), name, guardian, photo, id,
	); err != nil {
		return storageErr("mark uploaded", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit mark uploaded", err)
	}
	return nil
}

// reseal opens the stored values and seals them again with fresh nonces.
// Values that do not open are left alone so they are never double
// encrypted.
func (s *Store) reseal(stored fieldcrypt.Values) error {
	failed := fieldcrypt.Open(s.enc, stored)
	opened := fieldcrypt.Values{}
	for name, v := range stored {
		if _, bad := failed[name]; !bad {
			opened[name] = v
		}
	}
	return fieldcrypt.Seal(s.enc, opened)
}

func (s *Store) selectRecords() sq.SelectBuilder {
	return sq.Select(recordColumns...).From(recordsTable)
}

func (s *Store) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]*child.Record, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, storageErr("build query", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query records", err)
	}
	defer rows.Close()

	var out []*child.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan record", err)
		}
		s.decryptRecord(r)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query records", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*child.Record, error) {
	var (
		r                child.Record
		lat, lon         sql.NullFloat64
		addr             sql.NullString
		lang             string
		created, updated int64
	)
	err := row.Scan(
		&r.ID, &r.HealthID, &r.ChildName, &r.FacePhoto, &r.Age, &r.WeightKg, &r.HeightCm,
		&r.GuardianName, &r.VisibleSigns, &r.RecentIllnesses, &r.ParentalConsent,
		&lat, &lon, &addr, &lang, &r.IsUploaded, &r.OwnerID,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		r.Location = &child.Location{Latitude: lat.Float64, Longitude: lon.Float64, Address: addr.String}
	}
	r.Language = child.Language(lang)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// decryptRecord decrypts each sensitive field in place. A field that will
// not decrypt keeps its stored value.
func (s *Store) decryptRecord(r *child.Record) {
	for name, err := range fieldcrypt.Open(s.enc, fieldcrypt.RecordValues(r)) {
		s.logger.Warn().Err(err).Str("record_id", r.ID).Str("field", name).Msg("returning undecryptable field as stored")
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
