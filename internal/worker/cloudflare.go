package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourorg/saasforge/internal/reliability/circuitbreaker"
	"github.com/yourorg/saasforge/internal/reliability/retry"
)

const (
	defaultCloudflareURL = "https://api.cloudflare.com/client/v4"
	cloudflareTimeout    = 10 * time.Second
)

// CloudflareConfig configures CloudflareDNS.
type CloudflareConfig struct {
	APIToken string
	ZoneID   string
	Target   string
	BaseURL  string
}

// CloudflareDNS keeps one proxied CNAME per tenant subdomain host pointing
// at Target.
type CloudflareDNS struct {
	cfg     CloudflareConfig
	http    *http.Client
	retry   *retry.Config
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

func NewCloudflareDNS(cfg CloudflareConfig, logger *slog.Logger) *CloudflareDNS {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCloudflareURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CloudflareDNS{
		cfg:     cfg,
		http:    &http.Client{Timeout: cloudflareTimeout},
		retry:   retry.DefaultConfig(),
		breaker: newBreaker("cloudflare", logger),
		logger:  logger,
	}
}

type cfRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
}

type cfResponse struct {
	Success bool            `json:"success"`
	Errors  []cfError       `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UpsertRecord creates the CNAME for host or points an existing one at Target.
func (d *CloudflareDNS) UpsertRecord(ctx context.Context, host string) error {
	name := strings.ToLower(host)
	existing, err := d.find(ctx, name)
	if err != nil {
		return err
	}
	rec := cfRecord{Type: "CNAME", Name: name, Content: d.cfg.Target, Proxied: true, TTL: 1}
	if existing == nil {
		return d.call(ctx, http.MethodPost, "/dns_records", rec, nil)
	}
	if existing.Content == d.cfg.Target && existing.Proxied {
		return nil
	}
	return d.call(ctx, http.MethodPut, "/dns_records/"+existing.ID, rec, nil)
}

// DeleteRecord removes the CNAME for host. A missing record is not an error.
func (d *CloudflareDNS) DeleteRecord(ctx context.Context, host string) error {
	existing, err := d.find(ctx, strings.ToLower(host))
	if err != nil || existing == nil {
		return err
	}
	return d.call(ctx, http.MethodDelete, "/dns_records/"+existing.ID, nil, nil)
}

func (d *CloudflareDNS) find(ctx context.Context, name string) (*cfRecord, error) {
	var recs []cfRecord
	q := url.Values{"type": {"CNAME"}, "name": {name}}
	if err := d.call(ctx, http.MethodGet, "/dns_records?"+q.Encode(), nil, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// call performs one API request with retries. Client errors are not retried.
func (d *CloudflareDNS) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode cloudflare request: %w", err)
		}
		payload = b
	}
	endpoint := d.cfg.BaseURL + "/zones/" + url.PathEscape(d.cfg.ZoneID) + path

	_, err := retry.Do(ctx, d.retry, d.logger, "cloudflare "+method, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.breaker.Execute(func() error {
			return d.do(ctx, method, endpoint, payload, out)
		})
	})
	return err
}

func (d *CloudflareDNS) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, cloudflareTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("cloudflare request: %w", err)
	}
	defer resp.Body.Close()

	var cf cfResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cf); err != nil {
		return fmt.Errorf("decode cloudflare response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !cf.Success {
		err := fmt.Errorf("cloudflare %s returned %d: %s", method, resp.StatusCode, describe(cf.Errors))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	if out != nil && len(cf.Result) > 0 {
		if err := json.Unmarshal(cf.Result, out); err != nil {
			return retry.Permanent(fmt.Errorf("decode cloudflare result: %w", err))
		}
	}
	return nil
}

func describe(errs []cfError) string {
	if len(errs) == 0 {
		return "no error details"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%d %s", e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}
