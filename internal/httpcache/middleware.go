package httpcache

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/observability/metrics"
	"github.com/yourorg/saasforge/internal/security/middleware"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const DefaultTTL = 300 * time.Second

// Headers never stored with an entry.
var skippedHeaders = map[string]bool{
	"Content-Length": true,
	"Date":           true,
	"Set-Cookie":     true,
	"X-Request-Id":   true,
}

// Cache is the response cache middleware.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Handler serves repeat GETs of the same principal and tenant from the
// store and invalidates that scope on any other method. Store failures
// degrade to plain pass-through.
func (c *Cache) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogctx.FromCtx(ctx)

		userID := ""
		if p := middleware.GetPrincipalFromContext(ctx); p != nil {
			userID = p.ID
		}
		tenantID := tenancy.TenantIDFromContext(ctx)

		if r.Method != http.MethodGet {
			err := c.store.InvalidateScope(ctx, userID, tenantID)
			metrics.ObserveCacheInvalidation(metrics.Result(err))
			if err != nil {
				log.Warn("response cache invalidation failed", slog.String("error", err.Error()))
			}
			next.ServeHTTP(w, r)
			return
		}

		// Protocol upgrades are streamed, never buffered.
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		key := Key(userID, tenantID, r.URL.Path, r.URL.RawQuery)
		entry, ok, err := c.store.Get(ctx, key)
		if err != nil {
			metrics.ObserveCacheLookup("error")
			log.Warn("response cache read failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		if ok {
			metrics.ObserveCacheLookup("hit")
			replay(w, entry)
			return
		}
		metrics.ObserveCacheLookup("miss")

		buf := newBufferedWriter()
		next.ServeHTTP(buf, r)

		if buf.status == http.StatusOK && isJSON(buf.header.Get("Content-Type")) {
			entry := &Entry{
				Body:      buf.body.Bytes(),
				Status:    buf.status,
				MediaType: buf.header.Get("Content-Type"),
				Headers:   storedHeaders(buf.header),
			}
			if err := c.store.Set(ctx, key, entry, c.ttl); err != nil {
				log.Warn("response cache write failed", slog.String("error", err.Error()))
			}
		}
		buf.flushTo(w)
	})
}

func replay(w http.ResponseWriter, e *Entry) {
	h := w.Header()
	for k, v := range e.Headers {
		h.Set(k, v)
	}
	if e.MediaType != "" {
		h.Set("Content-Type", e.MediaType)
	}
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func storedHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	for k, v := range h {
		if skippedHeaders[k] || k == "Content-Type" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// bufferedWriter captures a response so it can be stored before it is sent.
type bufferedWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: http.Header{}, status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	h := w.Header()
	for k, v := range b.header {
		h[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
