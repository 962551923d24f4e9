package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/shared"
)

type memoryStore struct {
	mu     sync.Mutex
	rows   map[int64]Tariff
	nextID int64
}

func newMemoryStore(rows ...Tariff) *memoryStore {
	s := &memoryStore{rows: make(map[int64]Tariff)}
	for _, r := range rows {
		s.rows[r.ID] = r
		if r.ID > s.nextID {
			s.nextID = r.ID
		}
	}
	return s
}

func (s *memoryStore) Candidates(_ context.Context, class ServiceClass, weight decimal.Decimal, today time.Time) ([]Tariff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Tariff
	for _, r := range s.rows {
		if r.Eligible(weight, class, today) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Create(_ context.Context, t Tariff) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.rows[t.ID] = t
	return t.ID, nil
}

func (s *memoryStore) Get(_ context.Context, id int64) (Tariff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return Tariff{}, fmt.Errorf("tariff %d: %w", id, shared.ErrNotFound)
	}
	return t, nil
}

func (s *memoryStore) List(_ context.Context, filter ListFilter) ([]Tariff, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Tariff
	for _, r := range s.rows {
		if filter.ActiveOnly && !r.Active {
			continue
		}
		if filter.ServiceClass != nil && r.ServiceClass != *filter.ServiceClass {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *memoryStore) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("tariff %d: %w", id, shared.ErrNotFound)
	}
	t.Active = active
	s.rows[id] = t
	return nil
}

func newTestRouter(store *memoryStore) http.Handler {
	svc := NewService(store, newTestCalculator(store))
	r := chi.NewRouter()
	NewHandler(quietLogger(), svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestQuoteEndpoint(t *testing.T) {
	h := newTestRouter(newMemoryStore(row(1, "0", "5", "1000", ClassExpress)))

	rr := do(t, h, http.MethodPost, "/tariffs/quote", `{"weight":"2","priority":"EXPRESS","insured":true,"declared_value":100000}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Breakdown Breakdown       `json:"breakdown"`
		Total     decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, dec("1000").Equal(resp.Breakdown.Base))
	assert.True(t, dec("200").Equal(resp.Breakdown.ExpressSurcharge))
	assert.True(t, dec("1000").Equal(resp.Breakdown.InsuranceSurcharge))
	assert.True(t, dec("2200").Equal(resp.Total))
	assert.Equal(t, SourceTable, resp.Breakdown.Source)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	h := newTestRouter(newMemoryStore())

	rr := do(t, h, http.MethodPost, "/tariffs/quote", `{"weight":0,"priority":"NORMAL"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/tariffs/quote", `{"weight":1,"priority":"SLOW"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/tariffs/quote", `{"weight":1,"priority":"NORMAL","declared_value":-5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateListDeactivate(t *testing.T) {
	store := newMemoryStore()
	h := newTestRouter(store)

	rr := do(t, h, http.MethodPost, "/tariffs", `{"weight_min":0,"weight_max":5,"distance_min":0,"distance_max":50,"price":"1800.505","service_class":"STANDARD","valid_from":"2026-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Tariff
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.Active)
	assert.True(t, dec("1800.51").Equal(created.Price))

	rr = do(t, h, http.MethodGet, "/tariffs?active=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)

	rr = do(t, h, http.MethodPost, fmt.Sprintf("/tariffs/%d/deactivate", created.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var deactivated Tariff
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &deactivated))
	assert.False(t, deactivated.Active)

	rr = do(t, h, http.MethodGet, "/tariffs/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateRejectsInvertedRanges(t *testing.T) {
	h := newTestRouter(newMemoryStore())

	rr := do(t, h, http.MethodPost, "/tariffs", `{"weight_min":6,"weight_max":5,"price":1,"service_class":"STANDARD","valid_from":"2026-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/tariffs", `{"weight_min":0,"weight_max":5,"distance_min":9,"distance_max":1,"price":1,"service_class":"STANDARD","valid_from":"2026-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/tariffs", `{"weight_min":0,"weight_max":5,"price":1,"service_class":"STANDARD","valid_from":"2026-02-01T00:00:00Z","valid_to":"2026-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeactivatedRowNoLongerPrices(t *testing.T) {
	store := newMemoryStore(row(1, "0", "5", "1000", ClassStandard))
	svc := NewService(store, newTestCalculator(store))

	before, err := svc.Quote(context.Background(), Input{Weight: dec("1"), Priority: PriorityNormal})
	require.NoError(t, err)
	assert.Equal(t, SourceTable, before.Source)

	_, err = svc.Deactivate(context.Background(), 1)
	require.NoError(t, err)

	after, err := svc.Quote(context.Background(), Input{Weight: dec("1"), Priority: PriorityNormal})
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, after.Source)
}
