package database

import (
	"strings"

	"github.com/google/uuid"
)

// NewId returns a random identifier, a UUID with the hyphens stripped.
func NewId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
