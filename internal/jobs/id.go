// Package jobs generates job identifiers.
package jobs

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix marks every job ID.
const Prefix = "job-"

// NewID returns a new random job ID such as "job-3f2c...".
func NewID() string {
	return Prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Normalize accepts an ID with or without Prefix and returns it prefixed.
func Normalize(id string) string {
	if id == "" || strings.HasPrefix(id, Prefix) {
		return id
	}
	return Prefix + id
}
