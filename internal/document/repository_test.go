package document

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-api/internal/catalog"
)

var columns = []string{"id", "person_id", "document_type_id", "proceeding_id", "file_name", "content_type",
	"size_bytes", "storage_key", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestInsertWithoutProceeding(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO person_files")).
		WithArgs("f1", "p1", int64(1), nil, "a.pdf", "application/pdf", int64(3), "people/p1/f1/a.pdf", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("f1", "p1", 1, nil, "a.pdf", "application/pdf", 3, "people/p1/f1/a.pdf", now, now))

	f, err := repo.Insert(context.Background(), File{
		ID: "f1", PersonID: "p1", DocumentTypeID: 1, FileName: "a.pdf", ContentType: "application/pdf",
		SizeBytes: 3, StorageKey: "people/p1/f1/a.pdf",
	})
	require.NoError(t, err)
	assert.Nil(t, f.ProceedingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertForeignKeyRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO person_files")).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "person_files_proceeding_id_fkey"})

	pid := "pr1"
	_, err := repo.Insert(context.Background(), File{ID: "f1", PersonID: "p1", DocumentTypeID: 1, ProceedingID: &pid})
	var missing *catalog.MissingReferenceError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "proceeding_id", missing.Field)
}

func TestListByProceedingFiltersDeleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE person_id = $1 AND proceeding_id = $2 AND deleted_at IS NULL")).
		WithArgs("p1", "pr1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("f1", "p1", 1, "pr1", "a.pdf", "application/pdf", 3, "k", now, now))

	files, err := repo.ListByProceeding(context.Background(), "p1", "pr1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NotNil(t, files[0].ProceedingID)
	assert.Equal(t, "pr1", *files[0].ProceedingID)
}

func TestDeleteMissingFile(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE person_files SET deleted_at = $3")).
		WithArgs("f1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "p1", "f1"), ErrNotFound)
}
