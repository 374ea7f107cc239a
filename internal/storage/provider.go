// Package storage persists each user's entity collection as one document.
package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/models"
)

// Provider is the persistence boundary for entity collections.
type Provider interface {
	// Load returns the collection stored for user, or an empty collection if
	// none has been written yet.
	Load(ctx context.Context, user string) ([]models.Entity, error)
	// Save replaces the collection for user. The write either fully succeeds
	// or leaves the previous document in place.
	Save(ctx context.Context, user string, entities []models.Entity) error
	// Close releases resources held by the provider.
	Close() error
}

// Drivers.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
)

var userRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,127}$`)

// ValidUser reports whether user is usable as a document key.
func ValidUser(user string) error {
	if !userRe.MatchString(user) {
		return fmt.Errorf("%w: invalid user id %q", apperr.ErrInvalidInput, user)
	}
	return nil
}

// Open creates the provider for driver rooted at path.
func Open(driver, path string) (Provider, error) {
	switch driver {
	case DriverFS:
		return NewFS(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

// document is the stored shape of a collection.
type document struct {
	Events []models.Entity `json:"events"`
}
