// Package httpcache caches JSON GET responses per (principal, tenant) and
// drops a principal's entries whenever it sends a mutating request.
package httpcache

import "strings"

const (
	// AnonymousUser keys requests without a principal. Anonymous responses
	// are shared between all unauthenticated clients of a tenant.
	AnonymousUser = "anonymous"
	// DefaultTenant keys host requests.
	DefaultTenant = "default"
)

func scopeParts(userID, tenantID string) (string, string) {
	if userID == "" {
		userID = AnonymousUser
	}
	if tenantID == "" {
		tenantID = DefaultTenant
	}
	return userID, tenantID
}

// ScopePrefix is the prefix shared by every key of one (user, tenant) pair.
func ScopePrefix(userID, tenantID string) string {
	u, t := scopeParts(userID, tenantID)
	return "cache:cu" + u + ":ct" + t + ":"
}

// Key is the cache key of one GET request.
func Key(userID, tenantID, path, rawQuery string) string {
	return ScopePrefix(userID, tenantID) + path + "?" + rawQuery
}

// ScopePattern is the glob matching every key of one (user, tenant) pair.
func ScopePattern(userID, tenantID string) string {
	u, t := scopeParts(userID, tenantID)
	return "cache:cu" + escapeGlob(u) + ":ct" + escapeGlob(t) + ":*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
