// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/maruel/pantry/internal/storage"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses authenticated user ID as the rate limit key.
	ScopeUser
)

// Tier is a named limiter applied to a class of requests.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Limiters holds one tier per class of requests. A nil tier is unlimited.
type Limiters struct {
	Auth       *Tier
	Write      *Tier
	ReadAuth   *Tier
	ReadUnauth *Tier
}

// NewLimiters builds the tiers from per-minute rates. A rate of 0 disables
// the tier.
func NewLimiters(rl storage.RateLimits) *Limiters {
	return &Limiters{
		Auth:       newTier("auth", rl.AuthRatePerMin, rl.AuthRatePerMin, ScopeIP),
		Write:      newTier("write", rl.WriteRatePerMin, rl.WriteRatePerMin/6, ScopeUser),
		ReadAuth:   newTier("read", rl.ReadAuthRatePerMin, rl.ReadAuthRatePerMin/6, ScopeUser),
		ReadUnauth: newTier("read", rl.ReadUnauthRatePerMin, rl.ReadUnauthRatePerMin/6, ScopeIP),
	}
}

func newTier(name string, perMin, burst int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(burst, 1)), Scope: scope}
}

// MatchUnauth returns the tier for an unauthenticated request, or nil.
func (l *Limiters) MatchUnauth(method, path string) *Tier {
	if l == nil || path == "/api/health" {
		return nil
	}
	if isAuthEndpoint(method, path) {
		return l.Auth
	}
	if method == http.MethodGet {
		return l.ReadUnauth
	}
	return nil
}

// MatchAuth returns the tier for an authenticated request, or nil.
func (l *Limiters) MatchAuth(method, path string) *Tier {
	if l == nil || path == "/api/health" {
		return nil
	}
	switch method {
	case http.MethodPost:
		// Asking for recipes changes nothing.
		if path == "/api/recipes" {
			return l.ReadAuth
		}
		return l.Write
	case http.MethodDelete, http.MethodPut, http.MethodPatch:
		return l.Write
	case http.MethodGet:
		return l.ReadAuth
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (l *Limiters) Close() {
	if l == nil {
		return
	}
	for _, t := range []*Tier{l.Auth, l.Write, l.ReadAuth, l.ReadUnauth} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}

// isAuthEndpoint reports whether the request starts or completes a sign-in.
func isAuthEndpoint(method, path string) bool {
	return method == http.MethodGet && strings.HasPrefix(path, "/api/auth/oauth/")
}
