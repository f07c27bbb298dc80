package identity

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/storage"
)

func newUserService(t *testing.T) (*UserService, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "users.jsonl")
	s, err := NewUserService(path)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return s, path
}

func TestUserService(t *testing.T) {
	s, path := newUserService(t)
	g := OAuthIdentity{Provider: "google", ProviderID: "g-1", Email: "a@example.com"}

	u, err := s.Create("a@example.com", "Alice", g)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID.IsZero() || u.Created.IsZero() || u.OAuthIdentities[0].LastLogin.IsZero() {
		t.Errorf("incomplete user: %+v", u)
	}
	if _, err := s.Create("a@example.com", "Again", OAuthIdentity{Provider: "google", ProviderID: "g-2"}); !errors.Is(err, errUserExists) {
		t.Errorf("duplicate email: got %v", err)
	}
	if _, err := s.Create("b@example.com", "Bob", OAuthIdentity{}); !errors.Is(err, errProviderInfo) {
		t.Errorf("missing identity: got %v", err)
	}

	t.Run("lookups", func(t *testing.T) {
		if got, err := s.GetByOAuth("google", "g-1"); err != nil || got.ID != u.ID {
			t.Errorf("GetByOAuth = %+v, %v", got, err)
		}
		if got, err := s.GetByEmail("a@example.com"); err != nil || got.ID != u.ID {
			t.Errorf("GetByEmail = %+v, %v", got, err)
		}
		if _, err := s.GetByOAuth("google", "nope"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("GetByOAuth missing: %v", err)
		}
		if _, err := s.Get(0); !errors.Is(err, errUserIDEmpty) {
			t.Errorf("Get(0): %v", err)
		}
	})

	t.Run("link identity", func(t *testing.T) {
		other := OAuthIdentity{Provider: "google", ProviderID: "g-9", Email: "a@example.com"}
		got, err := s.LinkOAuthIdentity(u.ID, other)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.OAuthIdentities) != 2 {
			t.Fatalf("identities = %+v", got.OAuthIdentities)
		}
		// Re-linking updates in place.
		got, err = s.LinkOAuthIdentity(u.ID, other)
		if err != nil || len(got.OAuthIdentities) != 2 {
			t.Fatalf("relink = %+v, %v", got, err)
		}
		if byNew, err := s.GetByOAuth("google", "g-9"); err != nil || byNew.ID != u.ID {
			t.Errorf("index not updated: %+v, %v", byNew, err)
		}
		if _, err := s.LinkOAuthIdentity(ksid.NewID(), other); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("unknown user: %v", err)
		}
	})

	t.Run("reload", func(t *testing.T) {
		reloaded, err := NewUserService(path)
		if err != nil {
			t.Fatal(err)
		}
		if got, err := reloaded.GetByOAuth("google", "g-9"); err != nil || got.Email != "a@example.com" {
			t.Errorf("after reload: %+v, %v", got, err)
		}
		n := 0
		for range reloaded.Iter(0) {
			n++
		}
		if n != 1 {
			t.Errorf("got %d users", n)
		}
	})
}

func TestSessionService(t *testing.T) {
	s, err := NewSessionService(filepath.Join(t.TempDir(), "sessions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	userID := ksid.NewID()
	future := storage.ToTime(time.Now().Add(time.Hour))
	info := SessionInfo{DeviceInfo: "test", IPAddress: "127.0.0.1"}

	first, err := s.CreateWithID(ksid.NewID(), userID, "h1", info, future, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateWithID(ksid.NewID(), userID, "h2", info, future, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateWithID(ksid.NewID(), userID, "h3", info, future, 2); !errors.Is(err, ErrSessionQuotaExceeded) {
		t.Errorf("quota: got %v", err)
	}
	if _, err := s.CreateWithID(ksid.NewID(), userID, "", info, future, 0); !errors.Is(err, errSessionTokenHashRequired) {
		t.Errorf("empty hash: got %v", err)
	}

	if ok, err := s.IsValid(first.ID); err != nil || !ok {
		t.Errorf("IsValid = %v, %v", ok, err)
	}
	if err := s.Revoke(first.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(first.ID); err != nil {
		t.Errorf("second revoke: %v", err)
	}
	if ok, _ := s.IsValid(first.ID); ok {
		t.Error("revoked session still valid")
	}
	if _, err := s.IsValid(ksid.NewID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: %v", err)
	}
	if err := s.Revoke(ksid.NewID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("revoke unknown: %v", err)
	}

	// Revocation frees a slot.
	if _, err := s.CreateWithID(ksid.NewID(), userID, "h4", info, future, 2); err != nil {
		t.Errorf("after revoke: %v", err)
	}

	old := storage.ToTime(time.Now().Add(-30 * 24 * time.Hour))
	stale, err := s.CreateWithID(ksid.NewID(), ksid.NewID(), "h5", info, old, 0)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.CleanupExpired(7 * 24 * time.Hour)
	if err != nil || n != 1 {
		t.Errorf("CleanupExpired = %d, %v", n, err)
	}
	if _, err := s.Get(stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session survived: %v", err)
	}
}
