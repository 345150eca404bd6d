package featureflags

import (
	"os"
	"strings"

	"github.com/yourorg/saasforge/internal/domain"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// TenantDefaults returns the feature set a new tenant starts with, one
// FLAG_<FEATURE> variable per feature.
func TenantDefaults() domain.Features {
	fs := make(domain.Features, len(domain.AllFeatures))
	for _, f := range domain.AllFeatures {
		fs[f] = Enabled(string(f))
	}
	return fs
}
