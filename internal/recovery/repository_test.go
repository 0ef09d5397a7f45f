package recovery

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-api/internal/httpx"
)

var columns = []string{"id", "person_id", "full_name", "curp", "contact_email", "contact_phone", "comments",
	"resolved_at", "resolved_by", "resolution_notes", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestCreateLinksPersonByCURP(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("(SELECT id FROM people WHERE curp = $3 AND deleted_at IS NULL)")).
		WithArgs(sqlmock.AnyArg(), "Ana", "GOMA800101HDFRRN09", "ana@example.com", "", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r1", "p1", "Ana", "GOMA800101HDFRRN09", "ana@example.com", "", "", nil, "", "", now, now))

	req, err := repo.Create(context.Background(), RequestInput{FullName: "Ana", CURP: "GOMA800101HDFRRN09", ContactEmail: "ana@example.com"})
	require.NoError(t, err)
	require.NotNil(t, req.PersonID)
	assert.Equal(t, "p1", *req.PersonID)
	assert.Nil(t, req.ResolvedAt)
}

func TestListOpenRequests(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM account_recoveries WHERE deleted_at IS NULL AND resolved_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE deleted_at IS NULL AND resolved_at IS NULL ORDER BY created_at ASC LIMIT $1 OFFSET $2")).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r3", nil, "Eva", "X", "eva@example.com", "", "", nil, "", "", now, now))

	items, total, err := repo.List(context.Background(), StatusOpen, httpx.Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].PersonID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRejectsUnknownStatus(t *testing.T) {
	repo, _ := newMockRepo(t)
	_, _, err := repo.List(context.Background(), "pending", httpx.Page{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, ErrUnknownStatusArg)
}

func TestResolveDistinguishesMissingFromResolved(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE account_recoveries")).
		WithArgs("r1", sqlmock.AnyArg(), "admin-1", "").
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recoveries WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r1", nil, "Ana", "X", "a@example.com", "", "", now, "admin-2", "", now, now))

	_, err := repo.Resolve(context.Background(), "r1", "admin-1", "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE account_recoveries")).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recoveries WHERE id = $1 AND deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = repo.Resolve(context.Background(), "r2", "admin-1", "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
