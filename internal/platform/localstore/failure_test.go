package localstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, logger: zerolog.New(io.Discard)}, mock
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("list pending", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT .+ FROM records WHERE is_uploaded").WillReturnError(boom)

		_, err := s.ListPending(ctx)
		assert.ErrorIs(t, err, ErrStorage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark uploaded", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT child_name, guardian_name, face_photo FROM records").
			WithArgs("rec-1").
			WillReturnRows(sqlmock.NewRows([]string{"child_name", "guardian_name", "face_photo"}).
				AddRow("Aarav", "Meera", "data:image/png;base64,AA=="))
		mock.ExpectExec("UPDATE records SET is_uploaded").WillReturnError(boom)
		mock.ExpectRollback()

		err := s.MarkUploaded(ctx, "rec-1")
		assert.ErrorIs(t, err, ErrStorage)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark uploaded missing row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT child_name, guardian_name, face_photo FROM records").
			WithArgs("rec-1").
			WillReturnRows(sqlmock.NewRows([]string{"child_name", "guardian_name", "face_photo"}))
		mock.ExpectRollback()

		assert.ErrorIs(t, s.MarkUploaded(ctx, "rec-1"), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count pending", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)

		_, err := s.CountPending(ctx)
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("clear all rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM records").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec("DELETE FROM identities").WillReturnError(boom)
		mock.ExpectRollback()

		assert.ErrorIs(t, s.ClearAll(ctx), ErrStorage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
