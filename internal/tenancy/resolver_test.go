package tenancy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/saasforge/pkg/config"
)

func TestValidateSubdomain(t *testing.T) {
	tests := []struct {
		name string
		host string
		main string
		want bool
	}{
		{"single letter label", "x.fsrapp.com", "fsrapp.com", true},
		{"valid label", "acme.fsrapp.com", "fsrapp.com", true},
		{"leading hyphen", "-x.fsrapp.com", "fsrapp.com", false},
		{"leading hyphen long", "-acme.fsrapp.com", "fsrapp.com", false},
		{"trailing hyphen", "x-.fsrapp.com", "fsrapp.com", false},
		{"trailing hyphen long", "acme-.fsrapp.com", "fsrapp.com", false},
		{"inner hyphen", "ac-me.fsrapp.com", "fsrapp.com", true},
		{"other main domain", "xxx.fsrapp.com", "example.com", false},
		{"main domain itself", "fsrapp.com", "fsrapp.com", false},
		{"63 chars", strings.Repeat("a", 63) + ".fsrapp.com", "fsrapp.com", true},
		{"64 chars", strings.Repeat("a", 64) + ".fsrapp.com", "fsrapp.com", false},
		{"empty label", ".fsrapp.com", "fsrapp.com", false},
		{"no main domain configured", "acme.fsrapp.com", "", false},
		{"nested label", "a.bcd.fsrapp.com", "fsrapp.com", false},
		{"underscore", "ac_me.fsrapp.com", "fsrapp.com", false},
		{"upper case", "ACME.FSRAPP.COM", "fsrapp.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSubdomain(tt.host, tt.main))
		})
	}
}

func TestResolverHeaderStrategy(t *testing.T) {
	res := NewResolver(config.StrategyHeader, "")
	id := "0123456789abcdef01234567"

	tests := []struct {
		name   string
		header []string
		want   Identity
	}{
		{"absent", nil, HostIdentity()},
		{"empty", []string{""}, HostIdentity()},
		{"too short", []string{"0123"}, HostIdentity()},
		{"upper hex", []string{"0123456789ABCDEF01234567"}, HostIdentity()},
		{"not hex", []string{"zzzzzzzzzzzzzzzzzzzzzzzz"}, HostIdentity()},
		{"well formed", []string{id}, Identity{Kind: KindByID, TenantID: id}},
		{"first value wins", []string{id, "bogus"}, Identity{Kind: KindByID, TenantID: id}},
		{"first value malformed", []string{"bogus", id}, HostIdentity()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/users/", nil)
			for _, v := range tt.header {
				r.Header.Add(TenantHeader, v)
			}
			assert.Equal(t, tt.want, res.Resolve(r))
		})
	}
}

func TestResolverSubdomainStrategy(t *testing.T) {
	res := NewResolver(config.StrategySubdomain, "fsrapp.com")

	tests := []struct {
		host string
		want Identity
	}{
		{"acme.fsrapp.com", Identity{Kind: KindBySubdomain, Label: "acme", Host: "acme.fsrapp.com"}},
		{"acme.fsrapp.com:8080", Identity{Kind: KindBySubdomain, Label: "acme", Host: "acme.fsrapp.com"}},
		{"Acme.FSRapp.com", Identity{Kind: KindBySubdomain, Label: "acme", Host: "acme.fsrapp.com"}},
		{"fsrapp.com", HostIdentity()},
		{"-bad.fsrapp.com", HostIdentity()},
		{"bad-.fsrapp.com", HostIdentity()},
		{"acme.other.com", HostIdentity()},
		{"localhost:8080", HostIdentity()},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			assert.Equal(t, tt.want, res.Resolve(r))
		})
	}
}

func TestResolverNoneStrategyIgnoresInputs(t *testing.T) {
	res := NewResolver(config.StrategyNone, "fsrapp.com")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "acme.fsrapp.com"
	r.Header.Set(TenantHeader, "0123456789abcdef01234567")
	assert.True(t, res.Resolve(r).IsHost())
}

func TestResolverMiddlewareStoresIdentity(t *testing.T) {
	res := NewResolver(config.StrategyHeader, "")
	var got Identity
	h := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(TenantHeader, "0123456789abcdef01234567")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, KindByID, got.Kind)
	assert.Equal(t, "0123456789abcdef01234567", got.TenantID)
}
