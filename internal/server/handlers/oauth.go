// Handles sign-in with Google.

package handlers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/storage/identity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	providerGoogle  = "google"
	googleUserInfo  = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateCookieName = "oauth_state"
	stateCookiePath = "/api/auth/oauth"
	stateCookieTTL  = 600 // seconds
)

// oauthUserInfo is the subset of the provider profile used to find the user.
type oauthUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OAuthHandler signs users in through an OAuth2 provider.
type OAuthHandler struct {
	auth        *AuthHandler
	svc         *Services
	cfg         *Config
	oauth       *oauth2.Config
	userInfoURL string
}

// NewOAuthHandler configures Google sign-in. The callback URL is derived from
// cfg.BaseURL.
func NewOAuthHandler(auth *AuthHandler, svc *Services, cfg *Config, clientID, clientSecret string) *OAuthHandler {
	return &OAuthHandler{
		auth: auth,
		svc:  svc,
		cfg:  cfg,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  strings.TrimSuffix(cfg.BaseURL, "/") + "/api/auth/oauth/" + providerGoogle + "/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfo,
	}
}

// LoginRedirect sends the browser to the provider's consent page.
func (h *OAuthHandler) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("provider") != providerGoogle {
		writeErrorResponse(w, dto.InvalidProvider())
		return
	}
	state := rand.Text()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.cfg.BaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the sign-in and redirects to the UI with a token.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := r.PathValue("provider")
	if provider != providerGoogle {
		writeErrorResponse(w, dto.InvalidProvider())
		return
	}

	q := r.URL.Query()
	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		writeErrorResponse(w, dto.OAuthError("invalid state").WithStatus(http.StatusBadRequest))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: stateCookiePath, MaxAge: -1})

	code := q.Get("code")
	if code == "" {
		writeErrorResponse(w, dto.MissingField("code"))
		return
	}
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		slog.WarnContext(ctx, "OAuth code exchange failed", "err", err)
		writeErrorResponse(w, dto.OAuthError("token_exchange").Wrap(err))
		return
	}
	info, err := h.fetchUserInfo(ctx, h.oauth.Client(ctx, token))
	if err != nil {
		slog.WarnContext(ctx, "OAuth user info failed", "err", err)
		writeErrorResponse(w, dto.OAuthError("user_info").Wrap(err))
		return
	}

	user, err := h.findOrCreateUser(ctx, provider, info)
	if err != nil {
		writeErrorResponse(w, dto.InternalWithError("user_creation", err))
		return
	}
	jwtToken, err := h.auth.GenerateTokenWithSession(ctx, user)
	if err != nil {
		if errors.Is(err, identity.ErrSessionQuotaExceeded) {
			writeErrorResponse(w, dto.OAuthError("session_limit").WithStatus(http.StatusForbidden).Wrap(err))
			return
		}
		writeErrorResponse(w, dto.InternalWithError("token_generation", err))
		return
	}
	http.Redirect(w, r, "/?token="+url.QueryEscape(jwtToken), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) fetchUserInfo(ctx context.Context, client *http.Client) (*oauthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info: %s", resp.Status)
	}
	var info oauthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("user info is missing id or email")
	}
	return &info, nil
}

// findOrCreateUser resolves the provider identity to a user: by linked
// identity first, then by email, and creates the account otherwise.
func (h *OAuthHandler) findOrCreateUser(ctx context.Context, provider string, info *oauthUserInfo) (*identity.User, error) {
	oi := identity.OAuthIdentity{Provider: provider, ProviderID: info.ID, Email: info.Email}
	user, err := h.svc.User.GetByOAuth(provider, info.ID)
	if err == nil {
		return h.svc.User.LinkOAuthIdentity(user.ID, oi)
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return nil, err
	}
	user, err = h.svc.User.GetByEmail(info.Email)
	if err == nil {
		slog.InfoContext(ctx, "Linking OAuth identity to existing user", "user", user.ID, "provider", provider)
		return h.svc.User.LinkOAuthIdentity(user.ID, oi)
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return nil, err
	}
	user, err = h.svc.User.Create(info.Email, info.Name, oi)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "User created", "user", user.ID, "provider", provider)
	if !h.cfg.SharedInventory && len(h.cfg.Seed) > 0 {
		if n, err := h.svc.Inventory.Seed(ctx, h.cfg.ScopeFor(user), h.cfg.Seed); err != nil {
			slog.ErrorContext(ctx, "Failed to seed pantry", "user", user.ID, "err", err)
		} else {
			slog.InfoContext(ctx, "Seeded pantry", "user", user.ID, "items", n)
		}
	}
	return user, nil
}
