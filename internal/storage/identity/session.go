// Bearer token sessions, one row per sign-in.

package identity

import (
	"errors"
	"iter"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/jsonldb"
	"github.com/maruel/pantry/internal/storage"
)

// SessionInfo describes the client a session is issued to.
type SessionInfo struct {
	DeviceInfo  string `json:"device_info" jsonschema:"description=User-Agent at sign-in"`
	IPAddress   string `json:"ip_address" jsonschema:"description=Client IP address at sign-in"`
	CountryCode string `json:"country_code,omitempty" jsonschema:"description=ISO 3166-1 alpha-2 country code at sign-in"`
}

// Session is the server side of an issued JWT. The token carries the
// session ID; only its hash is stored.
type Session struct {
	ID        ksid.ID `json:"id" jsonschema:"description=Session identifier, also the sid claim"`
	UserID    ksid.ID `json:"user_id" jsonschema:"description=Owner"`
	TokenHash string  `json:"token_hash" jsonschema:"description=Hex SHA-256 of the JWT"`
	SessionInfo
	Created   storage.Time `json:"created"`
	ExpiresAt storage.Time `json:"expires_at"`
	RevokedAt storage.Time `json:"revoked_at,omitempty" jsonschema:"description=Set on logout"`
}

func (s *Session) Clone() *Session {
	c := *s
	return &c
}

func (s *Session) GetID() ksid.ID {
	return s.ID
}

func (s *Session) Validate() error {
	switch {
	case s.ID.IsZero():
		return errSessionIDRequired
	case s.UserID.IsZero():
		return errSessionUserIDRequired
	case s.TokenHash == "":
		return errSessionTokenHashRequired
	}
	return nil
}

// Usable is false once the session is revoked or past its expiry.
func (s *Session) Usable(now storage.Time) bool {
	return s.RevokedAt.IsZero() && s.ExpiresAt.After(now)
}

// stale is true for a session that stopped being usable before cutoff.
func (s *Session) stale(cutoff storage.Time) bool {
	if !s.RevokedAt.IsZero() {
		return s.RevokedAt.Before(cutoff)
	}
	return s.ExpiresAt.Before(cutoff)
}

// SessionService stores sessions in a JSONL table indexed by owner.
type SessionService struct {
	table   *jsonldb.Table[*Session]
	byOwner *jsonldb.Index[ksid.ID, *Session]
}

// NewSessionService opens the sessions table at tablePath.
func NewSessionService(tablePath string) (*SessionService, error) {
	table, err := jsonldb.NewTable[*Session](tablePath)
	if err != nil {
		return nil, err
	}
	return &SessionService{
		table:   table,
		byOwner: jsonldb.NewIndex(table, func(s *Session) ksid.ID { return s.UserID }),
	}, nil
}

// CreateWithID records a session whose ID was allocated beforehand, since the
// ID is signed into the token that tokenHash is computed from.
//
// It fails with ErrSessionQuotaExceeded when userID already has maxSessions
// usable sessions. maxSessions <= 0 means unlimited.
func (s *SessionService) CreateWithID(id, userID ksid.ID, tokenHash string, info SessionInfo, expiresAt storage.Time, maxSessions int) (*Session, error) {
	session := &Session{
		ID:          id,
		UserID:      userID,
		TokenHash:   tokenHash,
		SessionInfo: info,
		Created:     storage.Now(),
		ExpiresAt:   expiresAt,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if maxSessions > 0 && s.countActive(userID) >= maxSessions {
		return nil, ErrSessionQuotaExceeded
	}
	if err := s.table.Append(session); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

func (s *SessionService) countActive(userID ksid.ID) int {
	n := 0
	for range s.GetActiveByUserID(userID) {
		n++
	}
	return n
}

// Get returns the session id, revoked or not.
func (s *SessionService) Get(id ksid.ID) (*Session, error) {
	if session := s.table.Get(id); session != nil {
		return session, nil
	}
	return nil, ErrSessionNotFound
}

// GetActiveByUserID yields the usable sessions of userID, oldest first.
func (s *SessionService) GetActiveByUserID(userID ksid.ID) iter.Seq[*Session] {
	now := storage.Now()
	return func(yield func(*Session) bool) {
		for session := range s.byOwner.Iter(userID) {
			if !session.Usable(now) {
				continue
			}
			if !yield(session) {
				return
			}
		}
	}
}

// IsValid reports whether the session can still authenticate requests.
func (s *SessionService) IsValid(id ksid.ID) (bool, error) {
	session, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return session.Usable(storage.Now()), nil
}

// Revoke ends a session. It is idempotent; the first revocation time is kept.
func (s *SessionService) Revoke(id ksid.ID) error {
	now := storage.Now()
	_, err := s.table.Modify(id, func(session *Session) error {
		if session.RevokedAt.IsZero() {
			session.RevokedAt = now
		}
		return nil
	})
	if errors.Is(err, jsonldb.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// CleanupExpired deletes the sessions that expired or were revoked more than
// olderThan ago and returns how many were removed.
func (s *SessionService) CleanupExpired(olderThan time.Duration) (int, error) {
	cutoff := storage.ToTime(time.Now().Add(-olderThan))
	var doomed []ksid.ID
	for session := range s.table.Iter(0) {
		if session.stale(cutoff) {
			doomed = append(doomed, session.ID)
		}
	}
	for i, id := range doomed {
		if _, err := s.table.Delete(id); err != nil {
			return i, err
		}
	}
	return len(doomed), nil
}
