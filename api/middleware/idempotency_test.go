package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

type memoryReplayStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryReplayStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryReplayStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryReplayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key], _ = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryReplayStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryReplayStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func orderRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/orders"}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(WithSessionID(ctx, "sess-1"))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestMatchRule(t *testing.T) {
	cases := []struct {
		method, pattern string
		ok, required    bool
		ttl             time.Duration
	}{
		{http.MethodPost, "/api/orders", true, true, criticalIdempotencyTTL},
		{http.MethodPost, "/api/payments/{provider}/execute", true, false, criticalIdempotencyTTL},
		{http.MethodPost, "/api/payments/{provider}/create", true, false, defaultIdempotencyTTL},
		{http.MethodPost, "/api/payments/card/process", true, false, criticalIdempotencyTTL},
		{http.MethodPost, "/api/cart/add", true, false, defaultIdempotencyTTL},
		{http.MethodGet, "/api/orders", false, false, 0},
		{http.MethodPut, "/api/cart/update/{lineId}", false, false, 0},
		{http.MethodPost, "", false, false, 0},
	}
	for _, tc := range cases {
		rule, ok := matchRule(tc.method, tc.pattern)
		assert.Equal(t, tc.ok, ok, "%s %s", tc.method, tc.pattern)
		assert.Equal(t, tc.required, rule.required, "%s %s", tc.method, tc.pattern)
		assert.Equal(t, tc.ttl, rule.ttl, "%s %s", tc.method, tc.pattern)
	}
}

func TestIdempotencyRequiresKeyForOrders(t *testing.T) {
	ran := false
	handler := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, orderRequest(`{}`, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, ran)
}

func TestIdempotencyRequiresKeyWithTrailingSlash(t *testing.T) {
	ran := false
	handler := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, ran)
}

func TestIdempotencyRejectsOversizedKey(t *testing.T) {
	handler := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, orderRequest(`{}`, strings.Repeat("k", maxKeyLength+1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyOptionalRoutesRunWithoutKey(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/cart/add", strings.NewReader(`{"quantity":1}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"sku":"LM-1"}`, string(body), "handler sees the original body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderNumber":"MS-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, orderRequest(`{"sku":"LM-1"}`, "order-1"))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, orderRequest(`{"sku":"LM-1"}`, "order-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"orderNumber":"MS-1"}`, second.Body.String())

	for _, ttl := range store.ttls {
		assert.Equal(t, criticalIdempotencyTTL, ttl)
	}
}

func TestIdempotencyFreesKeyAfterFailure(t *testing.T) {
	store := newMemoryReplayStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "retry-me"))
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyKeysAreScopedBySession(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "shared"))
	other := orderRequest(`{}`, "shared")
	other = other.WithContext(WithSessionID(other.Context(), "sess-2"))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	handler := Idempotency(newMemoryReplayStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), orderRequest(`{"qty":1}`, "xyz"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, orderRequest(`{"qty":2}`, "xyz"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsDuplicateWhileInFlight(t *testing.T) {
	store := newMemoryReplayStore()
	duplicate := httptest.NewRecorder()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A retry arriving while the first attempt is still running.
		Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not run")
		})).ServeHTTP(duplicate, orderRequest(`{}`, "busy"))
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	Idempotency(store, nil)(inner).ServeHTTP(first, orderRequest(`{}`, "busy"))

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusConflict, duplicate.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, duplicate))
}
