package address

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

var columns = []string{"id", "person_id", "country_id", "state_id", "municipality_id", "colony_id", "street",
	"exterior_number", "interior_number", "zip_code", "reference", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestListFiltersSoftDeleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE person_id = $1 AND deleted_at IS NULL")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a1", "p1", 1, 2, 3, nil, "Reforma 1", "10", "", "06600", "", now, now).
			AddRow("a2", "p1", 1, 2, 3, 7, "Juárez 5", "", "B", "", "", now, now))

	list, err := repo.List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].ColonyID)
	require.NotNil(t, list[1].ColonyID)
	assert.Equal(t, int64(7), *list[1].ColonyID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL")).
		WithArgs("a1", "p1").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Get(context.Background(), "p1", "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateNullColony(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO addresses")).
		WithArgs(sqlmock.AnyArg(), "p1", int64(1), int64(2), int64(3), nil, "Reforma 1", "", "", "", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("a1", "p1", 1, 2, 3, nil, "Reforma 1", "", "", "", "", now, now))

	a, err := repo.Create(context.Background(), "p1", Input{CountryID: 1, StateID: 2, MunicipalityID: 3, Street: "Reforma 1"})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateForeignKeyRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO addresses")).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "addresses_colony_id_fkey"})

	colony := int64(9)
	_, err := repo.Create(context.Background(), "p1", Input{CountryID: 1, StateID: 2, MunicipalityID: 3, ColonyID: &colony, Street: "x"})

	var missing *catalog.MissingReferenceError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "colony_id", missing.Field)
	assert.ErrorIs(t, err, catalog.ErrReferenceNotFound)
}

func TestUpdateMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE addresses")).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.Update(context.Background(), "p1", "a1", Input{CountryID: 1, StateID: 2, MunicipalityID: 3, Street: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSoftDeletes(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE addresses SET deleted_at = $3")).
		WithArgs("a1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "p1", "a1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE addresses SET deleted_at = $3")).
		WithArgs("a1", "p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "p1", "a1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
