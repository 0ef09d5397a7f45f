package document

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-api/internal/session"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Route("/api/me", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(session.WithPersonID(req.Context(), ownerID)))
			})
		})
		r.Get("/documents", h.List)
		r.Post("/documents", h.Upload)
		r.Get("/documents/{documentID}", h.Get)
		r.Delete("/documents/{documentID}", h.Delete)
		r.Get("/proceedings/{proceedingID}/documents", h.ListByProceeding)
	})
	return r
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, router http.Handler, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, fileName, content)
	req := httptest.NewRequest(http.MethodPost, "/api/me/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadHandler(t *testing.T) {
	router := newRouter(t)

	rec := upload(t, router, map[string]string{"document_type_id": "1", "proceeding_id": proceedingID}, "ine.pdf", []byte("%PDF-1.7\nbody"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var f File
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&f))
	assert.Equal(t, "application/pdf", f.ContentType)
	require.NotNil(t, f.ProceedingID)
	assert.NotContains(t, rec.Body.String(), "storage_key")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/documents/"+f.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "download_url")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/proceedings/"+proceedingID+"/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []File
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/me/documents/"+f.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/documents/"+f.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadHandlerValidation(t *testing.T) {
	router := newRouter(t)

	rec := upload(t, router, map[string]string{"proceeding_id": "nope"}, "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	for _, field := range []string{"document_type_id", "proceeding_id", "file"} {
		assert.Contains(t, rec.Body.String(), field)
	}

	rec = upload(t, router, map[string]string{"document_type_id": "1"}, "empty.pdf", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadHandlerUnknownDocumentType(t *testing.T) {
	router := newRouter(t)
	rec := upload(t, router, map[string]string{"document_type_id": "42"}, "a.pdf", []byte("x"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"document type not found","field":"document_type_id"}`, rec.Body.String())
}

func TestListByUnknownProceeding(t *testing.T) {
	router := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/proceedings/01900000-0000-7000-8000-0000000000ff/documents", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
