package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/server/handlers"
	"github.com/maruel/pantry/internal/storage"
	"github.com/maruel/pantry/internal/storage/identity"
)

var (
	errNoCredentials  = errors.New("missing authorization header")
	errNotBearer      = errors.New("authorization header is not a bearer token")
	errSessionRevoked = errors.New("session revoked or expired")
	errTokenMismatch  = errors.New("token does not match its session")
)

// authenticate resolves the bearer token of r to its user and session. The
// session must belong to the token's subject, hold the token's digest and
// still be usable; logging out invalidates the token even before it expires.
func authenticate(r *http.Request, svc *handlers.Services, secret []byte) (*identity.User, ksid.ID, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return nil, 0, errNoCredentials
	}
	token, ok := strings.CutPrefix(hdr, "Bearer ")
	if !ok || token == "" || strings.ContainsRune(token, ' ') {
		return nil, 0, errNotBearer
	}
	userID, sessionID, err := handlers.ParseToken(secret, token)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid token: %w", err)
	}
	session, err := svc.Session.Get(sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid token: %w", err)
	}
	// The session must have been issued for this very token.
	hash := handlers.HashToken(token)
	if session.UserID != userID || subtle.ConstantTimeCompare([]byte(session.TokenHash), []byte(hash)) != 1 {
		return nil, 0, errTokenMismatch
	}
	if !session.Usable(storage.Now()) {
		return nil, 0, errSessionRevoked
	}
	user, err := svc.User.Get(userID)
	if err != nil {
		return nil, 0, err
	}
	return user, sessionID, nil
}
