package contact

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

var columns = []string{"id", "person_id", "contact_type_id", "value", "label", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestListContacts(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM contact_information WHERE person_id = $1 AND deleted_at IS NULL")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("c1", "p1", 1, "ana@example.com", "", now, now))

	list, err := repo.List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ana@example.com", list[0].Value)
}

func TestCreateContactTypeRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO contact_information")).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "contact_information_contact_type_id_fkey"})

	_, err := repo.Create(context.Background(), "p1", Input{ContactTypeID: 3, Value: "x"})
	var missing *catalog.MissingReferenceError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "contact_type_id", missing.Field)
}

func TestCreateContactPersonRaceIsInternal(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO contact_information")).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "contact_information_person_id_fkey"})

	_, err := repo.Create(context.Background(), "p1", Input{ContactTypeID: 3, Value: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, catalog.ErrReferenceNotFound)
}

func TestDeleteContact(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contact_information SET deleted_at = $3")).
		WithArgs("c1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "p1", "c1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
