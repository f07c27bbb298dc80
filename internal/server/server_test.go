package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/pantry/internal/advisor"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/server/handlers"
	"github.com/maruel/pantry/internal/server/ratelimit"
	"github.com/maruel/pantry/internal/storage"
	"github.com/maruel/pantry/internal/storage/git"
	"github.com/maruel/pantry/internal/storage/identity"
	"github.com/maruel/pantry/internal/storage/inventory"
)

var testJWTSecret = []byte("test-secret-key-32-bytes-long!!!")

type fakeGenerator struct {
	prompt string
	answer string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, nil
}

type testOptions struct {
	history    bool
	shared     bool
	rateLimits storage.RateLimits
	gen        advisor.Generator
}

type testEnv struct {
	server *httptest.Server
	svc    *handlers.Services
	cfg    *Config
}

func setupTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()
	dataDir := t.TempDir()

	userService, err := identity.NewUserService(filepath.Join(dataDir, "db", "users.jsonl"))
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	sessionService, err := identity.NewSessionService(filepath.Join(dataDir, "db", "sessions.jsonl"))
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	gw := inventory.NewJSONL(filepath.Join(dataDir, "pantry"))
	t.Cleanup(func() { _ = gw.Close() })

	svc := &handlers.Services{
		User:      userService,
		Session:   sessionService,
		Inventory: inventory.NewService(gw, storage.DefaultQuotas().MaxNameLength),
		Advisor:   advisor.New(opts.gen),
	}
	if opts.history {
		repo, err := git.Open(dataDir, "pantry", "pantry@localhost")
		if err != nil {
			t.Fatalf("git.Open: %v", err)
		}
		svc.History = repo
	}
	cfg := &Config{
		Config: handlers.Config{
			ServerConfig: storage.ServerConfig{
				JWTSecret:  testJWTSecret,
				Quotas:     storage.DefaultQuotas(),
				RateLimits: opts.rateLimits,
			},
			BaseURL:         "http://localhost:8080",
			Version:         "test",
			SharedInventory: opts.shared,
			HistoryPrefix:   "pantry",
		},
	}
	limiters := ratelimit.NewLimiters(opts.rateLimits)
	t.Cleanup(limiters.Close)

	server := httptest.NewServer(NewRouter(svc, cfg, limiters))
	t.Cleanup(server.Close)
	return &testEnv{server: server, svc: svc, cfg: cfg}
}

// signIn creates a user and returns a bearer token for it.
func (e *testEnv) signIn(t *testing.T, email, name string) string {
	t.Helper()
	user, err := e.svc.User.Create(email, name, identity.OAuthIdentity{Provider: "google", ProviderID: "g-" + email, Email: email})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	token, err := handlers.NewAuthHandler(e.svc, &e.cfg.Config).GenerateTokenWithSession(t.Context(), user)
	if err != nil {
		t.Fatalf("GenerateTokenWithSession: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	var out T
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, wantStatus, b)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	got := decode[dto.HealthResponse](t, e.do(t, http.MethodGet, "/api/health", "", nil), http.StatusOK)
	if got.Status != "ok" || got.Version != "test" {
		t.Errorf("health = %+v", got)
	}
}

func TestUnauthenticated(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	for _, tc := range []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"no token list", http.MethodGet, "/api/items", ""},
		{"no token add", http.MethodPost, "/api/items", ""},
		{"no token me", http.MethodGet, "/api/auth/me", ""},
		{"garbage token", http.MethodGet, "/api/items", "not-a-jwt"},
		{"no token recipes", http.MethodPost, "/api/recipes", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := decode[dto.ErrorResponse](t, e.do(t, tc.method, tc.path, tc.token, nil), http.StatusUnauthorized)
			if got.Error.Code != dto.ErrorCodeUnauthorized {
				t.Errorf("code = %q", got.Error.Code)
			}
		})
	}
}

func TestTokenBoundToSession(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	ada := e.signIn(t, "ada@example.com", "Ada")
	bob := e.signIn(t, "bob@example.com", "Bob")
	claims := func(token string) *handlers.Claims {
		c := &handlers.Claims{}
		if _, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) { return testJWTSecret, nil }); err != nil {
			t.Fatal(err)
		}
		return c
	}
	sign := func(c *handlers.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testJWTSecret)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	// Bob's subject with Ada's session.
	otherUser := claims(ada)
	otherUser.Subject = claims(bob).Subject
	// Ada's session with a token it was not issued for.
	reissued := claims(ada)
	reissued.Email = "mallory@example.com"

	for name, token := range map[string]string{"other user": sign(otherUser), "reissued": sign(reissued)} {
		got := decode[dto.ErrorResponse](t, e.do(t, http.MethodGet, "/api/auth/me", token, nil), http.StatusUnauthorized)
		if got.Error.Code != dto.ErrorCodeUnauthorized {
			t.Errorf("%s: code = %q", name, got.Error.Code)
		}
	}
	if got := decode[dto.UserResponse](t, e.do(t, http.MethodGet, "/api/auth/me", ada, nil), http.StatusOK); got.Email != "ada@example.com" {
		t.Errorf("me = %+v", got)
	}
}

func TestMe(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")
	got := decode[dto.UserResponse](t, e.do(t, http.MethodGet, "/api/auth/me", token, nil), http.StatusOK)
	if got.Email != "ada@example.com" || got.Name != "Ada" {
		t.Errorf("me = %+v", got)
	}
	if len(got.Providers) != 1 || got.Providers[0] != "google" {
		t.Errorf("providers = %v", got.Providers)
	}
}

func TestLogout(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")
	got := decode[dto.LogoutResponse](t, e.do(t, http.MethodPost, "/api/auth/logout", token, nil), http.StatusOK)
	if !got.Ok {
		t.Error("logout not ok")
	}
	decode[dto.ErrorResponse](t, e.do(t, http.MethodGet, "/api/auth/me", token, nil), http.StatusUnauthorized)
}

func TestItemsFlow(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")

	steps := []struct {
		name   string
		method string
		path   string
		body   any
		want   dto.DecisionResponse
		items  int
	}{
		{"add default", http.MethodPost, "/api/items", map[string]any{"name": "milk"}, dto.DecisionResponse{Action: "set", Quantity: 1}, 1},
		{"add two", http.MethodPost, "/api/items", map[string]any{"name": "milk", "quantity": 2}, dto.DecisionResponse{Action: "set", Quantity: 3}, 1},
		{"increment", http.MethodPost, "/api/items/eggs/increment", nil, dto.DecisionResponse{Action: "set", Quantity: 1}, 2},
		{"decrement", http.MethodPost, "/api/items/milk/decrement", nil, dto.DecisionResponse{Action: "set", Quantity: 2}, 2},
		{"exhausted", http.MethodPost, "/api/items/eggs/decrement", nil, dto.DecisionResponse{Action: "delete", Reason: "exhausted"}, 1},
		{"not found", http.MethodPost, "/api/items/eggs/decrement", nil, dto.DecisionResponse{Action: "noop", Reason: "not_found"}, 1},
		{"add boxes", http.MethodPost, "/api/items", map[string]any{"name": "boxes", "quantity": 5}, dto.DecisionResponse{Action: "set", Quantity: 5}, 2},
		{"protected", http.MethodPost, "/api/items/boxes/decrement", nil, dto.DecisionResponse{Action: "noop", Reason: "protected"}, 2},
	}
	for _, step := range steps {
		got := decode[dto.MutationResponse](t, e.do(t, step.method, step.path, token, step.body), http.StatusOK)
		if got.Decision != step.want {
			t.Errorf("%s: decision = %+v, want %+v", step.name, got.Decision, step.want)
		}
		if len(got.View.Items) != step.items {
			t.Errorf("%s: items = %+v", step.name, got.View.Items)
		}
	}

	got := decode[dto.ListItemsResponse](t, e.do(t, http.MethodGet, "/api/items?q=MIL", token, nil), http.StatusOK)
	want := []dto.ItemResponse{{Name: "milk", DisplayName: "Milk", Quantity: 2}}
	if len(got.Items) != 1 || got.Items[0] != want[0] {
		t.Errorf("search = %+v, want %+v", got.Items, want)
	}
	if got.Search != "MIL" {
		t.Errorf("search = %q", got.Search)
	}

	// The query carried by a mutation filters the returned view.
	mut := decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/boxes/increment?q=box", token, nil), http.StatusOK)
	if len(mut.View.Items) != 1 || mut.View.Items[0].Name != "boxes" || mut.View.Items[0].Quantity != 6 {
		t.Errorf("filtered view = %+v", mut.View.Items)
	}
}

func TestItemsValidation(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")
	for _, tc := range []struct {
		name string
		body any
		want dto.ErrorCode
	}{
		{"empty name", map[string]any{"name": ""}, dto.ErrorCodeMissingField},
		{"zero quantity", map[string]any{"name": "milk", "quantity": 0}, dto.ErrorCodeValidationFailed},
		{"negative quantity", map[string]any{"name": "milk", "quantity": -3}, dto.ErrorCodeValidationFailed},
		{"name too long", map[string]any{"name": strings.Repeat("a", 201)}, dto.ErrorCodeValidationFailed},
		{"unknown field", map[string]any{"name": "milk", "color": "white"}, dto.ErrorCodeInvalidFormat},
		{"bad json", `{"name":`, dto.ErrorCodeInvalidFormat},
		{"string quantity", `{"name":"milk","quantity":"two"}`, dto.ErrorCodeInvalidFormat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := decode[dto.ErrorResponse](t, e.do(t, http.MethodPost, "/api/items", token, tc.body), http.StatusBadRequest)
			if got.Error.Code != tc.want {
				t.Errorf("code = %q, want %q", got.Error.Code, tc.want)
			}
		})
	}
	// Path segments are unescaped byte for byte; Latin-1 is not UTF-8.
	for _, p := range []string{"/api/items/caf%E9/increment", "/api/items/caf%E9/decrement"} {
		got := decode[dto.ErrorResponse](t, e.do(t, http.MethodPost, p, token, nil), http.StatusBadRequest)
		if got.Error.Code != dto.ErrorCodeValidationFailed {
			t.Errorf("%s: code = %q", p, got.Error.Code)
		}
	}
	got := decode[dto.ListItemsResponse](t, e.do(t, http.MethodGet, "/api/items", token, nil), http.StatusOK)
	if len(got.Items) != 0 {
		t.Errorf("rejected requests changed the pantry: %+v", got.Items)
	}
}

func TestItemsEscapedNames(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")
	decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": "a/b", "quantity": 2}), http.StatusOK)
	decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": "café"}), http.StatusOK)
	mut := decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/a%2Fb/decrement", token, nil), http.StatusOK)
	if mut.Decision.Action != "set" || mut.Decision.Quantity != 1 {
		t.Errorf("a/b decision = %+v", mut.Decision)
	}
	mut = decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/caf%C3%A9/increment", token, nil), http.StatusOK)
	if mut.Decision.Quantity != 2 {
		t.Errorf("café decision = %+v", mut.Decision)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	token := e.signIn(t, "ada@example.com", "Ada")
	body := `{"name":"` + strings.Repeat("a", int(storage.DefaultQuotas().MaxRequestBodyBytes)) + `"}`
	got := decode[dto.ErrorResponse](t, e.do(t, http.MethodPost, "/api/items", token, body), http.StatusRequestEntityTooLarge)
	if got.Error.Code != dto.ErrorCodePayloadTooLarge {
		t.Errorf("code = %q", got.Error.Code)
	}
}

func TestScopeIsolation(t *testing.T) {
	t.Run("user", func(t *testing.T) {
		e := setupTestEnv(t, testOptions{})
		ada := e.signIn(t, "ada@example.com", "Ada")
		bob := e.signIn(t, "bob@example.com", "Bob")
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", ada, map[string]any{"name": "milk"}), http.StatusOK)
		got := decode[dto.ListItemsResponse](t, e.do(t, http.MethodGet, "/api/items", bob, nil), http.StatusOK)
		if len(got.Items) != 0 {
			t.Errorf("bob sees %+v", got.Items)
		}
		mut := decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/milk/decrement", bob, nil), http.StatusOK)
		if mut.Decision.Reason != "not_found" {
			t.Errorf("decision = %+v", mut.Decision)
		}
	})
	t.Run("shared", func(t *testing.T) {
		e := setupTestEnv(t, testOptions{shared: true})
		ada := e.signIn(t, "ada@example.com", "Ada")
		bob := e.signIn(t, "bob@example.com", "Bob")
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", ada, map[string]any{"name": "milk"}), http.StatusOK)
		got := decode[dto.ListItemsResponse](t, e.do(t, http.MethodGet, "/api/items", bob, nil), http.StatusOK)
		if len(got.Items) != 1 || got.Items[0].Name != "milk" {
			t.Errorf("bob sees %+v", got.Items)
		}
	})
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e := setupTestEnv(t, testOptions{})
		token := e.signIn(t, "ada@example.com", "Ada")
		got := decode[dto.ErrorResponse](t, e.do(t, http.MethodGet, "/api/items/history", token, nil), http.StatusNotFound)
		if got.Error.Code != dto.ErrorCodeNotFound {
			t.Errorf("code = %q", got.Error.Code)
		}
	})
	t.Run("enabled", func(t *testing.T) {
		e := setupTestEnv(t, testOptions{history: true})
		ada := e.signIn(t, "ada@example.com", "Ada")
		bob := e.signIn(t, "bob@example.com", "Bob")
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", ada, map[string]any{"name": "milk"}), http.StatusOK)
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/milk/increment", ada, nil), http.StatusOK)
		// A no-op creates no commit.
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items/tea/decrement", ada, nil), http.StatusOK)
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", bob, map[string]any{"name": "tea"}), http.StatusOK)

		got := decode[dto.HistoryResponse](t, e.do(t, http.MethodGet, "/api/items/history", ada, nil), http.StatusOK)
		if len(got.Commits) != 2 {
			t.Fatalf("commits = %+v", got.Commits)
		}
		if got.Commits[0].Message != "POST /api/items/milk/increment" || got.Commits[1].Message != "POST /api/items" {
			t.Errorf("messages = %q, %q", got.Commits[0].Message, got.Commits[1].Message)
		}
		if got.Commits[0].Author != "Ada" || got.Commits[0].AuthorEmail != "ada@example.com" {
			t.Errorf("author = %q <%s>", got.Commits[0].Author, got.Commits[0].AuthorEmail)
		}

		got = decode[dto.HistoryResponse](t, e.do(t, http.MethodGet, "/api/items/history?limit=1", ada, nil), http.StatusOK)
		if len(got.Commits) != 1 {
			t.Errorf("limited commits = %+v", got.Commits)
		}
		got = decode[dto.HistoryResponse](t, e.do(t, http.MethodGet, "/api/items/history", bob, nil), http.StatusOK)
		if len(got.Commits) != 1 || got.Commits[0].Author != "Bob" {
			t.Errorf("bob commits = %+v", got.Commits)
		}
	})
}

func TestRecipes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e := setupTestEnv(t, testOptions{})
		token := e.signIn(t, "ada@example.com", "Ada")
		decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": "rice"}), http.StatusOK)
		got := decode[dto.RecipesResponse](t, e.do(t, http.MethodPost, "/api/recipes", token, nil), http.StatusOK)
		if len(got.Suggestions) != 0 || got.Suggestions == nil {
			t.Errorf("suggestions = %#v", got.Suggestions)
		}
	})
	t.Run("enabled", func(t *testing.T) {
		gen := &fakeGenerator{answer: "1. Fried rice: quick.\n\n- Omelette: eggs.\n"}
		e := setupTestEnv(t, testOptions{gen: gen})
		token := e.signIn(t, "ada@example.com", "Ada")
		for _, name := range []string{"rice", "eggs", "apples", "beans", "corn", "dates", "figs"} {
			decode[dto.MutationResponse](t, e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": name}), http.StatusOK)
		}
		got := decode[dto.RecipesResponse](t, e.do(t, http.MethodPost, "/api/recipes", token, nil), http.StatusOK)
		wantItems := []string{"apples", "beans", "corn", "dates", "eggs"}
		if strings.Join(got.Items, ",") != strings.Join(wantItems, ",") {
			t.Errorf("items = %v, want %v", got.Items, wantItems)
		}
		if len(got.Suggestions) != 2 || got.Suggestions[0] != "Fried rice: quick." || got.Suggestions[1] != "Omelette: eggs." {
			t.Errorf("suggestions = %q", got.Suggestions)
		}
		if strings.Contains(gen.prompt, "figs") {
			t.Errorf("prompt includes more than %d items: %q", advisor.MaxItems, gen.prompt)
		}
	})
}

func TestRateLimit(t *testing.T) {
	e := setupTestEnv(t, testOptions{rateLimits: storage.RateLimits{WriteRatePerMin: 1}})
	token := e.signIn(t, "ada@example.com", "Ada")
	resp := e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": "milk"})
	if resp.Header.Get("X-RateLimit-Limit") != "1" {
		t.Errorf("X-RateLimit-Limit = %q", resp.Header.Get("X-RateLimit-Limit"))
	}
	decode[dto.MutationResponse](t, resp, http.StatusOK)

	resp = e.do(t, http.MethodPost, "/api/items", token, map[string]any{"name": "milk"})
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	got := decode[dto.ErrorResponse](t, resp, http.StatusTooManyRequests)
	if got.Error.Code != dto.ErrorCodeRateLimitExceeded {
		t.Errorf("code = %q", got.Error.Code)
	}
	// Reads use their own tier.
	decode[dto.ListItemsResponse](t, e.do(t, http.MethodGet, "/api/items", token, nil), http.StatusOK)
}

func TestOAuthRoutesDisabled(t *testing.T) {
	e := setupTestEnv(t, testOptions{})
	resp := e.do(t, http.MethodGet, "/api/auth/oauth/google", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSPAHandler(t *testing.T) {
	h := NewSPAHandler(fstest.MapFS{
		"index.html":    {Data: []byte("<html>pantry</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	})
	for _, tc := range []struct {
		path  string
		want  string
		cache string
	}{
		{"/", "<html>pantry</html>", "no-cache, no-store, must-revalidate"},
		{"/settings", "<html>pantry</html>", "no-cache, no-store, must-revalidate"},
		{"/assets/app.js", "console.log(1)", "public, max-age=3600"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, http.NoBody))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if w.Body.String() != tc.want {
				t.Errorf("body = %q", w.Body.String())
			}
			if got := w.Header().Get("Cache-Control"); got != tc.cache {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
	w := httptest.NewRecorder()
	NewSPAHandler(fstest.MapFS{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("empty fs status = %d", w.Code)
	}
}
