// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/maruel/pantry/internal/advisor"
	"github.com/maruel/pantry/internal/server/ipgeo"
	"github.com/maruel/pantry/internal/storage"
	"github.com/maruel/pantry/internal/storage/git"
	"github.com/maruel/pantry/internal/storage/identity"
	"github.com/maruel/pantry/internal/storage/inventory"
)

// Services holds all service dependencies for handlers.
type Services struct {
	User      *identity.UserService
	Session   *identity.SessionService
	Inventory *inventory.Service
	Advisor   *advisor.Advisor // may be nil
	History   *git.Repo        // may be nil
	Geo       *ipgeo.Checker   // may be nil
}

// Config holds configuration values needed by handlers.
type Config struct {
	storage.ServerConfig

	BaseURL string
	Version string

	// SharedInventory makes every user read and write the global collection
	// instead of their own.
	SharedInventory bool
	// HistoryPrefix is the directory, relative to the history repository,
	// holding the item files. Only changes below it are committed.
	HistoryPrefix string
	// Seed is copied into each new user's pantry. Ignored when
	// SharedInventory is set.
	Seed map[string]int64
}

// ScopeFor returns the collection user reads and writes.
func (c *Config) ScopeFor(user *identity.User) inventory.Scope {
	if c.SharedInventory {
		return inventory.Global()
	}
	return inventory.User(user.ID)
}

// GitAuthor returns the history author for changes made by user.
func GitAuthor(user *identity.User) git.Author {
	if user == nil {
		return git.Author{}
	}
	return git.Author{Name: user.Name, Email: user.Email}
}
