// Handles session tokens and the signed-in identity.

package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/server/reqctx"
	"github.com/maruel/pantry/internal/storage"
	"github.com/maruel/pantry/internal/storage/identity"
)

const (
	tokenExpiration = 24 * time.Hour
	maxDeviceInfo   = 200
)

// AuthHandler issues and revokes session tokens.
type AuthHandler struct {
	svc *Services
	cfg *Config
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *Services, cfg *Config) *AuthHandler {
	return &AuthHandler{svc: svc, cfg: cfg}
}

// Claims is the payload of the JWTs issued at sign-in. Subject is the user
// ID and SessionID names the row in the sessions table.
type Claims struct {
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

var errNoSession = errors.New("token names no session")

// ParseToken verifies an HS256 token signed with secret, including its
// expiry, and returns the user and session it names.
func ParseToken(secret []byte, token string) (userID, sessionID ksid.ID, err error) {
	c := &Claims{}
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }
	if _, err = jwt.ParseWithClaims(token, c, keyFunc, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()); err != nil {
		return 0, 0, err
	}
	if userID, err = ksid.Parse(c.Subject); err != nil {
		return 0, 0, fmt.Errorf("subject: %w", err)
	}
	if sessionID, err = ksid.Parse(c.SessionID); err != nil || sessionID.IsZero() {
		return 0, 0, errNoSession
	}
	return userID, sessionID, nil
}

// HashToken returns the digest of a token as stored in the session table.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateTokenWithSession creates a session for user and returns a signed
// JWT carrying its ID.
func (h *AuthHandler) GenerateTokenWithSession(ctx context.Context, user *identity.User) (string, error) {
	now := time.Now()
	expiresAt := now.Add(tokenExpiration)
	// The session ID goes into the token, so it must exist before signing.
	sessionID := ksid.NewID()
	claims := &Claims{
		Email:     user.Email,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.cfg.JWTSecret)
	if err != nil {
		return "", err
	}

	clientIP := reqctx.ClientIP(ctx)
	info := identity.SessionInfo{
		DeviceInfo:  reqctx.UserAgent(ctx),
		IPAddress:   clientIP,
		CountryCode: h.svc.Geo.CountryCode(clientIP),
	}
	if len(info.DeviceInfo) > maxDeviceInfo {
		info.DeviceInfo = info.DeviceInfo[:maxDeviceInfo]
	}
	if _, err := h.svc.Session.CreateWithID(sessionID, user.ID, HashToken(tokenString), info, storage.ToTime(expiresAt), h.cfg.Quotas.MaxSessionsPerUser); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Session created", "user", user.ID, "session", sessionID, "country", info.CountryCode)
	return tokenString, nil
}

// GetMe returns the signed-in user.
func (h *AuthHandler) GetMe(_ context.Context, user *identity.User, _ *dto.GetMeRequest) (*dto.UserResponse, error) {
	return userToResponse(user), nil
}

// Logout revokes the session behind the request's token.
func (h *AuthHandler) Logout(ctx context.Context, _ *identity.User, _ *dto.LogoutRequest) (*dto.LogoutResponse, error) {
	sessionID := reqctx.SessionID(ctx)
	if sessionID.IsZero() {
		return &dto.LogoutResponse{Ok: true}, nil
	}
	if err := h.svc.Session.Revoke(sessionID); err != nil {
		slog.ErrorContext(ctx, "Failed to revoke session", "err", err, "session", sessionID)
		return nil, dto.InternalWithError("Failed to logout", err)
	}
	return &dto.LogoutResponse{Ok: true}, nil
}
