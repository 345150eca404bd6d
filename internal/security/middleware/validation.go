package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/apperr"
)

// ValidateJSONContentType rejects POST/PUT/PATCH bodies that are not JSON.
func ValidateJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
			next.ServeHTTP(w, r)
			return
		}
		// Bodyless actions such as /account/logout
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		contentType := r.Header.Get("Content-Type")
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
			slogctx.FromCtx(r.Context()).Warn("invalid content type",
				slog.String("path", r.URL.Path),
				slog.String("content_type", contentType),
				slog.String("method", r.Method),
			)
			apperr.WriteJSON(w, http.StatusUnsupportedMediaType, apperr.Envelope{
				Error: "Content-Type must be application/json",
				Code:  http.StatusUnsupportedMediaType,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RejectSuspiciousPaths refuses traversal and empty path segments before
// they reach routing or the audit entity name.
func RejectSuspiciousPaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
			slogctx.FromCtx(r.Context()).Warn("suspicious path pattern detected",
				slog.String("path", r.URL.Path),
			)
			apperr.WriteJSON(w, http.StatusBadRequest, apperr.Envelope{
				Error: "Invalid path",
				Code:  http.StatusBadRequest,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
