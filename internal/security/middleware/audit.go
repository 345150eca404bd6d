package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strings"

	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/tenancy"
)

// Paths whose audit entries are written by their handlers.
var selfAuditedPaths = map[string]bool{
	"/account/login":  true,
	"/account/logout": true,
}

// AuditMiddleware records an entry for every mutating request, whatever its
// outcome, and for every GET made by an authenticated principal.
func AuditMiddleware(sink *audit.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if selfAuditedPaths[r.URL.Path] || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodGet && GetPrincipalFromContext(r.Context()) == nil {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				rec := recover()
				if rec != nil {
					sw.status = http.StatusInternalServerError
				}
				record(r, sink, sw.status)
				if rec != nil {
					panic(rec)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

func record(r *http.Request, sink *audit.Sink, status int) {
	ctx := r.Context()
	entry := audit.Entry{
		Entity:   entityOf(r.URL.Path),
		Action:   actionOf(r.Method, status),
		TenantID: tenancy.TenantIDFromContext(ctx),
		Changes: map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		},
	}
	if r.URL.RawQuery != "" {
		entry.Changes["query"] = r.URL.RawQuery
	}
	if p := GetPrincipalFromContext(ctx); p != nil {
		entry.UserID = p.ID
	}
	// Failures are logged by the sink and never fail the request.
	_ = sink.Record(ctx, entry)
}

func actionOf(method string, status int) audit.Action {
	if status >= http.StatusInternalServerError {
		return audit.ActionError
	}
	switch method {
	case http.MethodGet:
		return audit.ActionRead
	case http.MethodPost:
		return audit.ActionCreate
	case http.MethodDelete:
		return audit.ActionDelete
	default:
		return audit.ActionUpdate
	}
}

func entityOf(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	entity, _, _ := strings.Cut(path, "/")
	return entity
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets websocket upgrades pass through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
