package httpcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const tenantA = "0123456789abcdef01234567"

type countingHandler struct {
	calls  atomic.Int64
	status int
	ctype  string
	body   string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	if h.ctype != "" {
		w.Header().Set("Content-Type", h.ctype)
	}
	w.Header().Set("X-Custom", "yes")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(h.body))
}

func jsonHandler(body string) *countingHandler {
	return &countingHandler{status: http.StatusOK, ctype: "application/json", body: body}
}

func request(method, target, userID, tenantID string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	ctx := r.Context()
	if userID != "" {
		ctx = middleware.WithPrincipal(ctx, &domain.Principal{ID: userID})
	}
	if tenantID != "" {
		ctx = tenancy.WithHandle(ctx, domain.TenantHandle(tenantID), &domain.Tenant{ID: tenantID})
	}
	return r.WithContext(ctx)
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestKeyDisjointAcrossPrincipalsAndTenants(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range []string{
		Key("u1", "", "/users", ""),
		Key("u2", "", "/users", ""),
		Key("u1", tenantA, "/users", ""),
		Key("", "", "/users", ""),
		Key("", tenantA, "/users", ""),
		Key("u1", "", "/users", "skip=1"),
		Key("u1", "", "/roles", ""),
	} {
		assert.False(t, keys[k], "duplicate key %s", k)
		keys[k] = true
	}

	assert.Equal(t, "cache:cuanonymous:ctdefault:/users?a=1", Key("", "", "/users", "a=1"))
	assert.Equal(t, "cache:cuu1:ctt1:*", ScopePattern("u1", "t1"))
	assert.Equal(t, `cache:cuu\*:ctdefault:*`, ScopePattern("u*", ""))
}

func TestRepeatGetIsReplayedWithoutHandler(t *testing.T) {
	next := jsonHandler(`{"items":[1,2,3]}`)
	c := New(NewMemoryStore(), time.Minute, nil)
	h := c.Handler(next)

	first := serve(h, request(http.MethodGet, "/users?skip=0", "u1", tenantA))
	second := serve(h, request(http.MethodGet, "/users?skip=0", "u1", tenantA))

	assert.Equal(t, int64(1), next.calls.Load())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "yes", second.Header().Get("X-Custom"))
}

func TestPrincipalsDoNotShareEntries(t *testing.T) {
	next := jsonHandler(`{}`)
	h := New(NewMemoryStore(), time.Minute, nil).Handler(next)

	serve(h, request(http.MethodGet, "/users", "u1", tenantA))
	serve(h, request(http.MethodGet, "/users", "u2", tenantA))
	serve(h, request(http.MethodGet, "/users", "u1", ""))
	assert.Equal(t, int64(3), next.calls.Load())

	serve(h, request(http.MethodGet, "/users", "u1", tenantA))
	assert.Equal(t, int64(3), next.calls.Load())
}

func TestMutationInvalidatesOnlyOwnScope(t *testing.T) {
	store := NewMemoryStore()
	next := jsonHandler(`{}`)
	h := New(store, time.Minute, nil).Handler(next)

	serve(h, request(http.MethodGet, "/users", "u1", tenantA))
	serve(h, request(http.MethodGet, "/roles", "u1", tenantA))
	serve(h, request(http.MethodGet, "/users", "u2", tenantA))
	require.Equal(t, int64(3), next.calls.Load())

	serve(h, request(http.MethodPost, "/users", "u1", tenantA))
	require.Equal(t, int64(4), next.calls.Load())

	// u1's entries are gone, u2's survive.
	serve(h, request(http.MethodGet, "/users", "u1", tenantA))
	serve(h, request(http.MethodGet, "/roles", "u1", tenantA))
	assert.Equal(t, int64(6), next.calls.Load())
	serve(h, request(http.MethodGet, "/users", "u2", tenantA))
	assert.Equal(t, int64(6), next.calls.Load())
}

func TestOnlyJSONOKResponsesAreStored(t *testing.T) {
	tests := []struct {
		name    string
		handler *countingHandler
		stored  bool
	}{
		{"json", jsonHandler(`{}`), true},
		{"problem json", &countingHandler{status: http.StatusOK, ctype: "application/problem+json; charset=utf-8", body: "{}"}, true},
		{"not found", &countingHandler{status: http.StatusNotFound, ctype: "application/json", body: "{}"}, false},
		{"created", &countingHandler{status: http.StatusCreated, ctype: "application/json", body: "{}"}, false},
		{"html", &countingHandler{status: http.StatusOK, ctype: "text/html", body: "<p>"}, false},
		{"no content type", &countingHandler{status: http.StatusOK, body: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			h := New(store, time.Minute, nil).Handler(tt.handler)

			rec := serve(h, request(http.MethodGet, "/x", "u1", ""))
			assert.Equal(t, tt.handler.status, rec.Code)
			assert.Equal(t, tt.handler.body, rec.Body.String())
			if tt.stored {
				assert.Equal(t, 1, store.Len())
			} else {
				assert.Equal(t, 0, store.Len())
			}
		})
	}
}

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (*Entry, bool, error) {
	return nil, false, errStoreDown
}

func (failingStore) Set(context.Context, string, *Entry, time.Duration) error {
	return errStoreDown
}

func (failingStore) InvalidateScope(context.Context, string, string) error {
	return errStoreDown
}

func TestStoreFailuresPassThrough(t *testing.T) {
	next := jsonHandler(`{"ok":true}`)
	h := New(failingStore{}, time.Minute, nil).Handler(next)

	for i := 0; i < 2; i++ {
		rec := serve(h, request(http.MethodGet, "/users", "u1", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"ok":true}`, rec.Body.String())
	}
	rec := serve(h, request(http.MethodDelete, "/users/1", "u1", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), next.calls.Load())
}

func TestEntriesExpire(t *testing.T) {
	store := NewMemoryStore()
	next := jsonHandler(`{}`)
	h := New(store, time.Millisecond, nil).Handler(next)

	serve(h, request(http.MethodGet, "/users", "", ""))
	time.Sleep(5 * time.Millisecond)
	serve(h, request(http.MethodGet, "/users", "", ""))
	assert.Equal(t, int64(2), next.calls.Load())
}

func TestUpgradeRequestsBypassCache(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, time.Minute, nil)
	h := jsonHandler(`{"ok":true}`)
	srv := c.Handler(h)

	for range 2 {
		r := request(http.MethodGet, "/audit-logs/stream", "u1", tenantA)
		r.Header.Set("Upgrade", "websocket")
		serve(srv, r)
	}
	assert.Equal(t, int64(2), h.calls.Load())
	assert.Equal(t, 0, store.Len())
}
