// Package audit appends audit entries to per-scope, per-day JSONL files and
// lists them newest first.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
	slogctx "github.com/veqryn/slog-context"

	"github.com/yourorg/saasforge/internal/observability/metrics"
)

// Action is the kind of intent recorded.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRead   Action = "read"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
	ActionError  Action = "error"
)

// HostScope names the audit files of requests without a tenant.
const HostScope = "host"

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Entry is one audit record.
type Entry struct {
	Entity    string         `json:"entity"`
	Action    Action         `json:"action"`
	Changes   map[string]any `json:"changes,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListOptions selects a window of entries. An empty Action matches all.
type ListOptions struct {
	Skip   int
	Limit  int
	Action Action
}

// Page is a window of entries, newest first. Total counts every entry that
// passed the action filter.
type Page struct {
	Items []Entry `json:"items"`
	Total int     `json:"total"`
	Skip  int     `json:"skip"`
	Limit int     `json:"limit"`
}

// Scope returns the file scope for a tenant id.
func Scope(tenantID string) string {
	if tenantID == "" {
		return HostScope
	}
	return tenantID
}

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sink appends entries to audit_logs_for{scope}_{YYYYMMDD}.jsonl in dir.
type Sink struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex

	subMu sync.Mutex
	subs  map[string]map[chan Entry]struct{}
}

func NewSink(dir string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, oops.In("audit").Wrapf(err, "create audit directory %s", dir)
	}
	return &Sink{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		subs:   map[string]map[chan Entry]struct{}{},
	}, nil
}

// FileName returns the file an entry of scope at t is appended to.
func FileName(scope string, t time.Time) string {
	return fmt.Sprintf("audit_logs_for%s_%s.jsonl", scope, t.UTC().Format("20060102"))
}

// Record appends e. The timestamp defaults to now.
func (s *Sink) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	err := s.append(e)
	metrics.ObserveAuditWrite(string(e.Action), metrics.Result(err))
	if err != nil {
		slogctx.FromCtx(ctx).Error("failed to write audit entry",
			slog.String("entity", e.Entity),
			slog.String("action", string(e.Action)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.publish(e)
	return nil
}

func (s *Sink) append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return oops.In("audit").Wrapf(err, "encode entry")
	}
	line = append(line, '\n')

	path := filepath.Join(s.dir, FileName(Scope(e.TenantID), e.Timestamp))

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return oops.In("audit").Wrapf(err, "open %s", path)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return oops.In("audit").Wrapf(err, "append to %s", path)
	}
	return f.Close()
}

// Subscribe returns a channel receiving every entry recorded in scope from
// now on. Slow subscribers miss entries. The returned func unsubscribes and
// closes the channel.
func (s *Sink) Subscribe(scope string, buffer int) (<-chan Entry, func()) {
	ch := make(chan Entry, buffer)
	s.subMu.Lock()
	if s.subs[scope] == nil {
		s.subs[scope] = map[chan Entry]struct{}{}
	}
	s.subs[scope][ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs[scope], ch)
			if len(s.subs[scope]) == 0 {
				delete(s.subs, scope)
			}
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Sink) publish(e Entry) {
	scope := Scope(e.TenantID)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[scope] {
		select {
		case ch <- e:
		default:
			s.logger.Debug("audit subscriber lagging, entry dropped", slog.String("scope", scope))
		}
	}
}

var fileDatePattern = regexp.MustCompile(`_\d{8}\.jsonl$`)

// List returns entries of scope, newest first, within [Skip, Skip+Limit).
func (s *Sink) List(ctx context.Context, scope string, opts ListOptions) (*Page, error) {
	if !scopePattern.MatchString(scope) {
		return nil, fmt.Errorf("invalid audit scope %q", scope)
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}

	files, err := filepath.Glob(filepath.Join(s.dir, "audit_logs_for"+scope+"_*.jsonl"))
	if err != nil {
		return nil, oops.In("audit").Wrapf(err, "list audit files")
	}
	sort.Strings(files)

	window := opts.Skip + opts.Limit
	if window < opts.Skip {
		window = math.MaxInt
	}
	r := newRing(window)
	total := 0
	for _, path := range files {
		if !fileDatePattern.MatchString(path) {
			continue
		}
		n, err := s.scanFile(ctx, path, opts.Action, r)
		if err != nil {
			return nil, err
		}
		total += n
	}

	newest := r.newestFirst()
	page := &Page{Items: []Entry{}, Total: total, Skip: opts.Skip, Limit: opts.Limit}
	if opts.Skip < len(newest) {
		end := opts.Skip + opts.Limit
		if end > len(newest) {
			end = len(newest)
		}
		page.Items = newest[opts.Skip:end]
	}
	return page, nil
}

// Prune removes the daily files of every scope dated before cutoff and
// returns how many were removed.
func (s *Sink) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "audit_logs_for*_*.jsonl"))
	if err != nil {
		return 0, oops.In("audit").Wrapf(err, "list audit files")
	}
	limit := cutoff.UTC().Format("20060102")

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		m := fileDatePattern.FindString(path)
		if m == "" {
			continue
		}
		// m is "_YYYYMMDD.jsonl"
		if m[1:9] >= limit {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, oops.In("audit").Wrapf(err, "remove %s", path)
		}
		removed++
	}
	return removed, nil
}

func (s *Sink) scanFile(ctx context.Context, path string, action Action, r *ring) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, oops.In("audit").Wrapf(err, "open %s", path)
	}
	defer f.Close()

	matched := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			slogctx.FromCtx(ctx).Debug("skipping unreadable audit line", slog.String("file", filepath.Base(path)))
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		matched++
		r.push(e)
	}
	if err := scanner.Err(); err != nil {
		return 0, oops.In("audit").Wrapf(err, "read %s", path)
	}
	return matched, nil
}

// ring keeps the last capacity entries pushed. Its buffer grows with the
// entries actually seen, so a large capacity costs nothing up front.
type ring struct {
	buf      []Entry
	capacity int
	next     int
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) push(e Entry) {
	if r.capacity <= 0 {
		return
	}
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, e)
		return
	}
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring) newestFirst() []Entry {
	n := len(r.buf)
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+n)%n])
	}
	return out
}
