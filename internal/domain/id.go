package domain

import (
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// NewID returns a new 24-character lowercase hex identifier.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:12])
}

// IsValidID reports whether id has the identifier shape used for tenants,
// users and roles.
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}
