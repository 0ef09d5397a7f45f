package recovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-api/internal/auth"
	"directory-api/internal/codestore"
	"directory-api/internal/httpx"
	"directory-api/internal/person"
	"directory-api/internal/session"
)

const requestID = "01900000-0000-7000-8000-0000000000d1"

type fakeRequests struct {
	items map[string]Request
}

func (f *fakeRequests) Create(_ context.Context, in RequestInput) (Request, error) {
	req := Request{ID: "01900000-0000-7000-8000-0000000000d2", FullName: in.FullName, CURP: in.CURP, ContactEmail: in.ContactEmail}
	f.items[req.ID] = req
	return req, nil
}

func (f *fakeRequests) List(_ context.Context, status string, _ httpx.Page) ([]Request, int, error) {
	out := make([]Request, 0)
	for _, req := range f.items {
		resolved := req.ResolvedAt != nil
		if status == StatusAll || (status == StatusResolved) == resolved {
			out = append(out, req)
		}
	}
	return out, len(out), nil
}

func (f *fakeRequests) Get(_ context.Context, id string) (Request, error) {
	req, ok := f.items[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRequests) Resolve(ctx context.Context, id, actor, notes string) (Request, error) {
	req, err := f.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.ResolvedAt != nil {
		return Request{}, ErrAlreadyResolved
	}
	now := time.Now()
	req.ResolvedAt, req.ResolvedBy, req.ResolutionNotes = &now, actor, notes
	f.items[id] = req
	return req, nil
}

func (f *fakeRequests) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

type testEnv struct {
	router   http.Handler
	composer *fakeComposer
	people   *fakePeople
	requests *fakeRequests
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	people := &fakePeople{
		people:    map[string]person.Person{anaID: {ID: anaID, FirstName: "Ana", Email: "ana@example.com"}},
		passwords: map[string]string{},
	}
	composer := &fakeComposer{}
	svc := NewService(people, codestore.NewIssuer(codestore.NewMemoryStore(), time.Minute, nil), &fakeMailer{}, composer, nil)
	requests := &fakeRequests{items: map[string]Request{
		requestID: {ID: requestID, FullName: "Ana Gómez", CURP: "GOMA800101HDFRRN09"},
	}}
	h := NewHandler(svc, requests)

	r := chi.NewRouter()
	r.Post("/api/recovery/password/request", h.RequestPasswordReset)
	r.Post("/api/recovery/password/validate", h.ValidateResetCode)
	r.Post("/api/recovery/password/reset", h.ResetPassword)
	r.Post("/api/recovery/requests", h.CreateRequest)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(session.WithPersonID(req.Context(), anaID)))
			})
		})
		r.Post("/api/me/email/request", h.RequestEmailChange)
		r.Post("/api/me/email/confirm", h.ConfirmEmailChange)
	})
	r.Route("/api/admin/recovery-requests", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := auth.WithPrincipal(req.Context(), auth.Principal{UserID: "admin-1", Roles: []string{auth.RoleAdmin}})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		r.Get("/", h.ListRequests)
		r.Get("/{requestID}", h.GetRequest)
		r.Post("/{requestID}/resolve", h.ResolveRequest)
		r.Delete("/{requestID}", h.DeleteRequest)
	})

	return &testEnv{router: r, composer: composer, people: people, requests: requests}
}

func (e *testEnv) serve(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body == "" {
		req.ContentLength = 0
	}
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodPost, "/api/recovery/password/request", `{"email":"ana@example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	code := env.composer.last().code

	rec = env.serve(http.MethodPost, "/api/recovery/password/request", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, env.serve(http.MethodPost, "/api/recovery/password/request", `{"email":"nope"}`).Code)

	rec = env.serve(http.MethodPost, "/api/recovery/password/validate", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	rec = env.serve(http.MethodPost, "/api/recovery/password/reset", `{"code":"`+code+`","new_password":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.serve(http.MethodPost, "/api/recovery/password/reset", `{"code":"`+code+`","new_password":"long-enough-1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "long-enough-1", env.people.passwords[anaID])

	rec = env.serve(http.MethodPost, "/api/recovery/password/reset", `{"code":"`+code+`","new_password":"long-enough-2"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code"`)
}

func TestEmailChangeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodPost, "/api/me/email/request", `{"email":"ana.new@example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	code := env.composer.last().code

	rec = env.serve(http.MethodPost, "/api/me/email/confirm", `{"code":"000000x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.serve(http.MethodPost, "/api/me/email/confirm", `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana.new@example.com", env.people.people[anaID].Email)

	rec = env.serve(http.MethodPost, "/api/me/email/request", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ana.new@example.com", env.composer.last().to)
}

func TestRecoveryRequestEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(http.MethodPost, "/api/recovery/requests", `{"full_name":"Luis Pérez","curp":"pell900215hjcrss02","contact_email":"luis@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "PELL900215HJCRSS02", env.requests.items[created["id"]].CURP)

	rec = env.serve(http.MethodPost, "/api/recovery/requests", `{"full_name":"","curp":"bad","contact_email":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.serve(http.MethodGet, "/api/admin/recovery-requests/?status=open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page httpx.PagedResult[Request]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)

	assert.Equal(t, http.StatusBadRequest, env.serve(http.MethodGet, "/api/admin/recovery-requests/?status=weird", "").Code)

	rec = env.serve(http.MethodPost, "/api/admin/recovery-requests/"+requestID+"/resolve", `{"notes":"identity verified by phone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", env.requests.items[requestID].ResolvedBy)

	assert.Equal(t, http.StatusConflict, env.serve(http.MethodPost, "/api/admin/recovery-requests/"+requestID+"/resolve", "").Code)
	assert.Equal(t, http.StatusNoContent, env.serve(http.MethodDelete, "/api/admin/recovery-requests/"+requestID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.serve(http.MethodGet, "/api/admin/recovery-requests/"+requestID, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.serve(http.MethodGet, "/api/admin/recovery-requests/123", "").Code)
}
