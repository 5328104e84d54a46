// Package helpers provides validation utilities.
package helpers

import (
	"strings"

	"evalgo.org/dataflowmigrator/internal/domain"
	"github.com/google/uuid"
)

// ValidCatalogID reports whether id looks like something the catalog
// assigned: non-empty after trimming and at least domain.MinIDLength long.
func ValidCatalogID(id string) bool {
	return len(strings.TrimSpace(id)) >= domain.MinIDLength
}

// LooksLikeUUID reports whether s is a UUID literal, in which case callers
// may treat it as an id instead of a display name.
func LooksLikeUUID(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}

// SameID compares two catalog ids case-insensitively, as GUIDs are.
func SameID(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
