package parcel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	NewHandler(discardLogger(), f.service).MountRoutes(r)
	return r
}

func TestHandlerRegisterAndTrack(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	body := `{"sender_id":1,"recipient_id":2,"weight":"1.2","declared_value":"0",` +
		`"category":"DOCUMENT","priority":"NORMAL","insured":false,"description":"contrat"}`
	req := httptest.NewRequest(http.MethodPost, "/packages", strings.NewReader(body))
	req.Header.Set(shared.ActorHeader, "3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, created.Package.ID, created.Invoice.PackageID)
	assert.Equal(t, "5000", created.Invoice.Total.String())
	require.NotNil(t, created.Package.RegisteredBy)
	assert.Equal(t, int64(3), *created.Package.RegisteredBy)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/"+created.Package.TrackingNumber, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view PublicView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, StatusPending, view.Status)
	assert.Len(t, view.History, 1)
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages",
		strings.NewReader(`{"sender_id":1,"recipient_id":2,"weight":"0","category":"DOCUMENT","priority":"NORMAL"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages",
		strings.NewReader(`{"sender_id":1,"recipient_id":2,"weight":"1","category":"DOCUMENT","priority":"NORMAL"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages/1/deliver",
		strings.NewReader(`{"code":"WRONG"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages/1/deliver",
		strings.NewReader(`{"code":"`+created.Package.TrackingNumber+`"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages/1/events",
		strings.NewReader(`{"event":"CANCELLED"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/packages/77", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type unreachableStore struct {
	*memoryRepo
}

func (unreachableStore) WithTx(context.Context, func(context.Context, TxRepository) error) error {
	return db.Classify(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))
}

func TestHandlerReportsUnavailableDatastore(t *testing.T) {
	f := newFixture()
	f.service.store = unreachableStore{memoryRepo: f.repo}
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/packages",
		strings.NewReader(`{"sender_id":1,"recipient_id":2,"weight":"1","category":"DOCUMENT","priority":"NORMAL"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Empty(t, f.repo.notificationsFor(1))
}
