// Package identity stores the accounts and sessions behind sign-in.
//
// Both tables are JSONL files under the data directory's db/ folder:
//   - users.jsonl: accounts linked to OAuth provider identities
//   - sessions.jsonl: one row per issued token
package identity

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/jsonldb"
	"github.com/maruel/pantry/internal/storage"
)

// User is an account. Users are only created through OAuth sign-in.
type User struct {
	ID              ksid.ID         `json:"id" jsonschema:"description=Unique user identifier"`
	Email           string          `json:"email" jsonschema:"description=User email address"`
	Name            string          `json:"name" jsonschema:"description=User display name"`
	OAuthIdentities []OAuthIdentity `json:"oauth_identities,omitempty" jsonschema:"description=Linked OAuth provider accounts"`
	Created         storage.Time    `json:"created" jsonschema:"description=Account creation timestamp"`
	Modified        storage.Time    `json:"modified" jsonschema:"description=Last modification timestamp"`
}

// OAuthIdentity links a user to an account at an OAuth2 provider.
type OAuthIdentity struct {
	Provider   string       `json:"provider" jsonschema:"description=OAuth provider name (google)"`
	ProviderID string       `json:"provider_id" jsonschema:"description=User ID at the OAuth provider"`
	Email      string       `json:"email" jsonschema:"description=Email address from OAuth provider"`
	LastLogin  storage.Time `json:"last_login" jsonschema:"description=Last login timestamp via this provider"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.OAuthIdentities = slices.Clone(u.OAuthIdentities)
	return &c
}

// GetID returns the user's ID.
func (u *User) GetID() ksid.ID {
	return u.ID
}

// Validate checks that the user is valid.
func (u *User) Validate() error {
	if u.ID.IsZero() {
		return errUserIDEmpty
	}
	if u.Email == "" {
		return errEmailEmpty
	}
	return nil
}

// UserService handles user lookup and creation.
type UserService struct {
	table   *jsonldb.Table[*User]
	byEmail *jsonldb.UniqueIndex[string, *User]
	byOAuth *oauthIndex
}

// NewUserService opens the users table at tablePath.
func NewUserService(tablePath string) (*UserService, error) {
	table, err := jsonldb.NewTable[*User](tablePath)
	if err != nil {
		return nil, err
	}
	return &UserService{
		table:   table,
		byEmail: jsonldb.NewUniqueIndex(table, func(u *User) string { return u.Email }),
		byOAuth: newOAuthIndex(table),
	}, nil
}

// Create creates a new user linked to the given identity.
func (s *UserService) Create(email, name string, identity OAuthIdentity) (*User, error) {
	if email == "" {
		return nil, errEmailEmpty
	}
	if identity.Provider == "" || identity.ProviderID == "" {
		return nil, errProviderInfo
	}
	if s.byEmail.Get(email) != nil {
		return nil, errUserExists
	}
	now := storage.Now()
	identity.LastLogin = now
	u := &User{
		ID:              ksid.NewID(),
		Email:           email,
		Name:            name,
		OAuthIdentities: []OAuthIdentity{identity},
		Created:         now,
		Modified:        now,
	}
	if err := s.table.Append(u); err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id ksid.ID) (*User, error) {
	if id.IsZero() {
		return nil, errUserIDEmpty
	}
	u := s.table.Get(id)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(email string) (*User, error) {
	u := s.byEmail.Get(email)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// GetByOAuth retrieves a user by their OAuth identity.
func (s *UserService) GetByOAuth(provider, providerID string) (*User, error) {
	u := s.byOAuth.Get(provider, providerID)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// LinkOAuthIdentity attaches identity to the user, or refreshes its
// LastLogin when already linked.
func (s *UserService) LinkOAuthIdentity(userID ksid.ID, identity OAuthIdentity) (*User, error) {
	if userID.IsZero() {
		return nil, errUserIDEmpty
	}
	if identity.Provider == "" || identity.ProviderID == "" {
		return nil, errProviderInfo
	}
	u, err := s.table.Modify(userID, func(u *User) error {
		now := storage.Now()
		identity.LastLogin = now
		u.Modified = now
		for i := range u.OAuthIdentities {
			if u.OAuthIdentities[i].Provider == identity.Provider && u.OAuthIdentities[i].ProviderID == identity.ProviderID {
				u.OAuthIdentities[i] = identity
				return nil
			}
		}
		u.OAuthIdentities = append(u.OAuthIdentities, identity)
		return nil
	})
	if err != nil {
		if errors.Is(err, jsonldb.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}
	return u, nil
}

// Iter iterates over users with ID greater than startID.
func (s *UserService) Iter(startID ksid.ID) iter.Seq[*User] {
	return s.table.Iter(startID)
}

type oauthKey struct {
	Provider   string
	ProviderID string
}

// oauthIndex indexes users by each of their OAuth identities.
type oauthIndex struct {
	table *jsonldb.Table[*User]
	mu    sync.Mutex
	byKey map[oauthKey]ksid.ID
}

func newOAuthIndex(table *jsonldb.Table[*User]) *oauthIndex {
	idx := &oauthIndex{table: table, byKey: make(map[oauthKey]ksid.ID)}
	table.AddObserver(idx)
	return idx
}

func (idx *oauthIndex) Get(provider, providerID string) *User {
	idx.mu.Lock()
	id, ok := idx.byKey[oauthKey{provider, providerID}]
	idx.mu.Unlock()
	if !ok {
		return nil
	}
	return idx.table.Get(id)
}

func (idx *oauthIndex) OnAppend(row *User) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, ident := range row.OAuthIdentities {
		idx.byKey[oauthKey{ident.Provider, ident.ProviderID}] = row.ID
	}
}

func (idx *oauthIndex) OnUpdate(prev, curr *User) {
	idx.OnDelete(prev)
	idx.OnAppend(curr)
}

func (idx *oauthIndex) OnDelete(row *User) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, ident := range row.OAuthIdentities {
		delete(idx.byKey, oauthKey{ident.Provider, ident.ProviderID})
	}
}
