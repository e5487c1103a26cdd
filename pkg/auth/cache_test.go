package auth

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSessionCacheRoundtrip(t *testing.T) {
	cache := NewSessionCache(filepath.Join(t.TempDir(), "nested", "session.cbor"))

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	session := &Session{
		UserID:               "u1",
		Email:                "dev@example.com",
		BearerToken:          "bearer-1",
		ProviderAccessToken:  "access",
		ProviderRefreshToken: "refresh",
		ProviderTokenExpiry:  now.Add(time.Hour),
		CreatedAt:            now,
	}
	if err := cache.Save(session); err != nil {
		t.Fatal(err)
	}

	loaded, err := cache.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("no session loaded")
	}
	if loaded.UserID != session.UserID || loaded.BearerToken != session.BearerToken {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.ProviderTokenExpiry.Equal(session.ProviderTokenExpiry) {
		t.Errorf("expiry = %v, want %v", loaded.ProviderTokenExpiry, session.ProviderTokenExpiry)
	}
}

func TestSessionCacheLoadMissing(t *testing.T) {
	cache := NewSessionCache(filepath.Join(t.TempDir(), "absent.cbor"))

	session, err := cache.Load()
	if err != nil {
		t.Fatalf("missing cache file is not an error, got %v", err)
	}
	if session != nil {
		t.Fatalf("session = %+v, want nil", session)
	}
}

func TestSessionCacheClear(t *testing.T) {
	cache := NewSessionCache(filepath.Join(t.TempDir(), "session.cbor"))

	if err := cache.Clear(); err != nil {
		t.Fatalf("clearing an absent cache is not an error, got %v", err)
	}

	if err := cache.Save(&Session{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Clear(); err != nil {
		t.Fatal(err)
	}
	session, err := cache.Load()
	if err != nil || session != nil {
		t.Fatalf("after clear: session = %+v, err = %v", session, err)
	}
}
