package person

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-api/internal/httpx"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestSetBannedBans(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT banned_at FROM people WHERE id = $1 AND deleted_at IS NULL FOR UPDATE")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"banned_at"}).AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE people SET banned_at = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("p1", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO person_ban_history")).
		WithArgs(sqlmock.AnyArg(), "p1", BanActionBan, "fraud", "admin-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.SetBanned(context.Background(), "p1", true, "fraud", "admin-1", now)
	require.NoError(t, err)
	assert.Equal(t, BanActionBan, rec.Action)
	assert.NotEmpty(t, rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBannedUnbans(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"banned_at"}).AddRow(now.Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE people SET banned_at = $2")).
		WithArgs("p1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO person_ban_history")).
		WithArgs(sqlmock.AnyArg(), "p1", BanActionUnban, "", "admin-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.SetBanned(context.Background(), "p1", false, "", "admin-1", now)
	require.NoError(t, err)
	assert.Equal(t, BanActionUnban, rec.Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBannedRejectsInvalidTransitions(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		banned   bool
		current  any
		rowsErr  error
		expected error
	}{
		{name: "already banned", banned: true, current: now, expected: ErrAlreadyBanned},
		{name: "not banned", banned: false, current: nil, expected: ErrNotBanned},
		{name: "missing", banned: true, rowsErr: sql.ErrNoRows, expected: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectBegin()
			query := mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("p1")
			if tt.rowsErr != nil {
				query.WillReturnError(tt.rowsErr)
			} else {
				query.WillReturnRows(sqlmock.NewRows([]string{"banned_at"}).AddRow(tt.current))
			}
			mock.ExpectRollback()

			_, err := repo.SetBanned(context.Background(), "p1", tt.banned, "", "admin", now)
			require.ErrorIs(t, err, tt.expected)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateMapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		expected   error
	}{
		{constraint: "uq_people_email_live", expected: ErrEmailTaken},
		{constraint: "uq_people_curp_live", expected: ErrCURPTaken},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO people")).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			_, err := repo.Create(context.Background(), CreateInput{Profile: Profile{CURP: validCURP}, Email: "a@b.co"}, "hash")
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func personRow(id string) *sqlmock.Rows {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "second_last_name", "curp", "rfc", "email", "birthdate", "gender",
		"photo_url", "password_hash", "email_verified_at", "banned_at", "created_at", "updated_at",
	}).AddRow(id, "Ana", "Gómez", "", validCURP, "", "ana@example.com", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), "female",
		"", "hash", nil, nil, now, now)
}

func TestGetFormatsBirthdateAndFiltersDeleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM people WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("p1").
		WillReturnRows(personRow("p1"))

	p, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "1980-01-01", p.Birthdate)
	assert.Nil(t, p.BannedAt)

	mock.ExpectQuery(regexp.QuoteMeta("FROM people WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "gone")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListEscapesSearchAndPaginates(t *testing.T) {
	repo, mock := newMockRepo(t)
	banned := true

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM people")).
		WithArgs(`%50\%%`, true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $3 OFFSET $4")).
		WithArgs(`%50\%%`, true, 10, 20).
		WillReturnRows(personRow("p1"))

	people, total, err := repo.List(context.Background(), ListFilter{Query: " 50% ", Banned: &banned}, httpx.Page{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, people, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE people SET deleted_at = $2")).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.SoftDelete(context.Background(), "p1"), ErrNotFound)
}
