package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/saasforge/internal/domain"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const tenantID = "0123456789abcdef01234567"

func withTenant(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tenancy.WithHandle(r.Context(), domain.TenantHandle(tenantID), &domain.Tenant{ID: tenantID, IsActive: true})
		next(w, r.WithContext(ctx))
	})
}

func TestAuditStreamPushesTenantEntries(t *testing.T) {
	sink, err := audit.NewSink(t.TempDir(), nil)
	require.NoError(t, err)
	h := NewAuditHandler(sink, []string{"http://app.test"}, nil)

	srv := httptest.NewServer(withTenant(h.Stream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://app.test"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Subscription happens right after the upgrade; retry until it is live.
	got := make(chan audit.Entry, 1)
	go func() {
		var e audit.Entry
		if err := conn.ReadJSON(&e); err == nil {
			got <- e
		}
	}()

	ctx := context.Background()
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-got:
			assert.Equal(t, tenantID, e.TenantID)
			assert.Equal(t, "users", e.Entity)
			return
		case <-tick.C:
			require.NoError(t, sink.Record(ctx, audit.Entry{Entity: "host-only", Action: audit.ActionCreate}))
			require.NoError(t, sink.Record(ctx, audit.Entry{Entity: "users", Action: audit.ActionCreate, TenantID: tenantID}))
		case <-deadline:
			t.Fatal("no audit entry received")
		}
	}
}

func TestAuditStreamRejectsForeignOrigin(t *testing.T) {
	sink, err := audit.NewSink(t.TempDir(), nil)
	require.NoError(t, err)
	h := NewAuditHandler(sink, []string{"http://app.test"}, nil)

	srv := httptest.NewServer(withTenant(h.Stream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAuditListValidatesPaging(t *testing.T) {
	sink, err := audit.NewSink(t.TempDir(), nil)
	require.NoError(t, err)
	h := NewAuditHandler(sink, nil, nil)

	for _, q := range []string{"skip=-1", "limit=abc", "limit=5000", "skip=68719476736", "skip=9223372036854775000", "skip=99999999999999999999"} {
		rec := httptest.NewRecorder()
		withTenant(h.List).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit-logs/?"+q, nil))
		assert.Equal(t, http.StatusNotAcceptable, rec.Code, q)
	}

	rec := httptest.NewRecorder()
	withTenant(h.List).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit-logs/?limit=10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		"smtp":     nil,
	}, nil)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"error: connection refused"`)
	assert.Contains(t, rec.Body.String(), `"smtp":"not configured"`)
	assert.Contains(t, rec.Body.String(), `"status":"not_ready"`)
}
