package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourorg/saasforge/internal/apperr"
	"github.com/yourorg/saasforge/internal/security/audit"
	"github.com/yourorg/saasforge/internal/tenancy"
)

const (
	streamBuffer  = 64
	pingInterval  = 15 * time.Second
	pongWait      = 2 * pingInterval
	writeDeadline = 5 * time.Second
	maxAuditLimit = 1000
	maxAuditSkip  = 1_000_000
)

// AuditHandler serves the audit log of the request's tenant, or the host
// log on host requests.
type AuditHandler struct {
	sink           *audit.Sink
	allowedOrigins []string
	logger         *slog.Logger
}

func NewAuditHandler(sink *audit.Sink, allowedOrigins []string, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{sink: sink, allowedOrigins: allowedOrigins, logger: logger}
}

// List handles GET /audit-logs/?skip=&limit=&action=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.ListOptions{Action: audit.Action(q.Get("action"))}
	var err error
	if opts.Skip, err = intParam(q.Get("skip")); err != nil || opts.Skip > maxAuditSkip {
		apperr.Write(w, r, apperr.InvalidOperation("Invalid skip"))
		return
	}
	if opts.Limit, err = intParam(q.Get("limit")); err != nil || opts.Limit > maxAuditLimit {
		apperr.Write(w, r, apperr.InvalidOperation("Invalid limit"))
		return
	}

	page, err := h.sink.List(r.Context(), audit.Scope(tenancy.TenantIDFromContext(r.Context())), opts)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// intParam parses a non-negative query parameter. Empty means zero.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func (h *AuditHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// Stream handles GET /audit-logs/stream. Entries recorded after the upgrade
// are pushed as JSON text messages until the client goes away.
func (h *AuditHandler) Stream(w http.ResponseWriter, r *http.Request) {
	scope := audit.Scope(tenancy.TenantIDFromContext(r.Context()))

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	entries, cancel := h.sink.Subscribe(scope, streamBuffer)
	defer cancel()

	// Reads only serve to notice the client closing. The deadline replaces
	// the one the server set for the upgrade request.
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("audit stream closed", slog.String("scope", scope))
				}
				return
			}
		case <-ticker.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeDeadline))
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
