package storage

import (
	"path/filepath"
	"testing"

	"github.com/xelth-com/stocktakego/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, ok := store.UID(); ok {
		t.Error("Fresh store should have no uid")
	}

	store.SetUID(42)
	store.SetSessionToken("tok-1")
	store.SetSessionCookie("session_id=abc")

	uid, ok := store.UID()
	if !ok || uid != 42 {
		t.Errorf("Expected uid 42, got %d (present=%v)", uid, ok)
	}
	cookie, ok := store.SessionCookie()
	if !ok || cookie != "session_id=abc" {
		t.Errorf("Expected stored cookie, got %q (present=%v)", cookie, ok)
	}

	// Cookies rotate per-request; last write wins
	store.SetSessionCookie("session_id=def")
	if cookie, _ := store.SessionCookie(); cookie != "session_id=def" {
		t.Errorf("Expected rotated cookie, got %q", cookie)
	}
}

func TestStoreSessionAggregate(t *testing.T) {
	store := newTestStore(t)

	// A partial session must read as absent
	store.SetUID(7)
	store.SetSessionToken("tok")
	if _, ok := store.Session(); ok {
		t.Error("Session without cookie should read as absent")
	}

	store.SetSessionCookie("session_id=xyz")
	sess, ok := store.Session()
	if !ok {
		t.Fatal("Complete session should be present")
	}
	if sess.UID != 7 || sess.Token != "tok" || sess.Cookie != "session_id=xyz" {
		t.Errorf("Unexpected session: %+v", sess)
	}
}

func TestClearSessionRetainsConfig(t *testing.T) {
	store := newTestStore(t)

	cfg := &models.ConnectionConfig{
		URL:      "https://erp.example.com",
		Database: "prod",
		Username: "counter",
		Password: "secret",
	}
	store.SetConfig(cfg)
	store.SetSession(&models.Session{UID: 9, Token: "t", Cookie: "c"})

	store.ClearSession()

	if _, ok := store.Session(); ok {
		t.Error("Session should be gone after ClearSession")
	}
	got, ok := store.Config()
	if !ok {
		t.Fatal("Connection config should survive ClearSession")
	}
	if got.URL != cfg.URL || got.Username != cfg.Username {
		t.Errorf("Config mismatch after clear: %+v", got)
	}

	store.ClearAll()
	if _, ok := store.Config(); ok {
		t.Error("Config should be gone after ClearAll")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	store.SetUID(11)
	store.SetSessionToken("tok")
	store.SetSessionCookie("session_id=keep")

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	sess, ok := reopened.Session()
	if !ok || sess.UID != 11 || sess.Cookie != "session_id=keep" {
		t.Errorf("Session did not survive reopen: %+v (present=%v)", sess, ok)
	}
}
