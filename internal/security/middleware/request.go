package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/infrastructure/logger"
)

const headerRequestID = "X-Request-ID"

// RequestContext attaches logger and a request id to the request context.
// The id comes from X-Request-ID when present and is echoed on the response.
func RequestContext(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(headerRequestID, id)

			ctx := slogctx.NewCtx(r.Context(), base)
			ctx = logger.WithRequestID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs one line per request once it completes.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slogctx.FromCtx(r.Context()).Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// Recover turns panics into the 500 error envelope.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slogctx.FromCtx(r.Context()).Error("panic recovered",
				slog.String("error", fmt.Sprint(rec)),
				slog.String("stacktrace", string(debug.Stack())),
			)
			apperr.WriteJSON(w, http.StatusInternalServerError, apperr.Envelope{
				Error: "Internal server error",
				Code:  http.StatusInternalServerError,
			})
		}()
		next.ServeHTTP(w, r)
	})
}
