package catalog

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewHandler(NewRepository(db))
	r := chi.NewRouter()
	r.Get("/countries", h.ListCountries)
	r.Post("/countries", h.CreateCountry)
	r.Get("/countries/{countryID}/states", h.ListStates)
	r.Post("/countries/{countryID}/states", h.CreateState)
	r.Get("/municipalities/{municipalityID}/colonies", h.ListColonies)
	r.Post("/municipalities/{municipalityID}/colonies", h.CreateColony)
	return r, mock
}

func TestListStatesInvalidID(t *testing.T) {
	router, _ := newCatalogRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/abc/states", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid country id")
}

func TestListStates(t *testing.T) {
	router, mock := newCatalogRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM states WHERE country_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "country_id", "name", "created_at"}).
			AddRow(int64(2), int64(1), "Jalisco", time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/1/states", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Jalisco"`)
}

func TestCreateCountry(t *testing.T) {
	router, mock := newCatalogRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO countries")).
		WithArgs("MX", "México").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}).
			AddRow(int64(1), "MX", "México", time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/countries", strings.NewReader(`{"code":" mx ","name":"México"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateCountryValidationAndConflict(t *testing.T) {
	router, mock := newCatalogRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/countries", strings.NewReader(`{"code":"","name":""}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"code is required"`)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO countries")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/countries", strings.NewReader(`{"code":"MX","name":"México"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateStateUnknownCountryIs404(t *testing.T) {
	router, mock := newCatalogRouter(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO states")).
		WithArgs(int64(99), "Jalisco").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/countries/99/states", strings.NewReader(`{"name":"Jalisco"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "country not found")
}

func TestCreateColonyRequiresZip(t *testing.T) {
	router, _ := newCatalogRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/municipalities/3/colonies", strings.NewReader(`{"name":"Centro","zip_code":"441"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "zip_code")
}

func TestListColoniesRejectsBadZip(t *testing.T) {
	router, _ := newCatalogRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/municipalities/3/colonies?zip_code=12", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
