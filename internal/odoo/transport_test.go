package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo/odootest"
	"github.com/xelth-com/stocktakego/internal/storage"
)

func newTestTransport(t *testing.T) (*Transport, *odootest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	srv := odootest.New()
	t.Cleanup(srv.Close)

	rpc := NewTransport(store)
	rpc.SetBaseURL(srv.URL)
	return rpc, srv, store
}

func TestCallPersistsRotatedCookie(t *testing.T) {
	rpc, srv, store := newTestTransport(t)
	srv.Cookie = "first"

	if _, err := rpc.Call(context.Background(), "/web/session/destroy", map[string]interface{}{}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if cookie, _ := store.SessionCookie(); cookie != "session_id=first" {
		t.Errorf("Expected captured cookie session_id=first, got %q", cookie)
	}

	srv.Cookie = "second"
	if _, err := rpc.Call(context.Background(), "/web/session/destroy", map[string]interface{}{}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if cookie, _ := store.SessionCookie(); cookie != "session_id=second" {
		t.Errorf("Expected rotated cookie session_id=second, got %q", cookie)
	}
}

func TestCallNetworkError(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	rpc := NewTransport(store)
	rpc.SetBaseURL("http://127.0.0.1:1")

	_, err = rpc.Call(context.Background(), "/web/session/destroy", map[string]interface{}{})
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestCallUnconfigured(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	rpc := NewTransport(store)

	if _, err := rpc.Call(context.Background(), "/web/session/destroy", nil); err == nil {
		t.Error("Expected error when no base URL is configured")
	}
}

func TestSessionExpiryClearsStorage(t *testing.T) {
	rpc, srv, store := newTestTransport(t)
	store.SetSession(&models.Session{UID: 2, Token: "tok", Cookie: "session_id=old"})
	srv.ExpireSession = true

	err := rpc.CallKw(context.Background(), models.ModelResUsers, "read",
		[]interface{}{[]int64{2}, []string{"name"}}, nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}

	// The session aggregate must be gone regardless of which call
	// triggered the expiry.
	if _, ok := store.UID(); ok {
		t.Error("uid should be cleared after session expiry")
	}
	if _, ok := store.SessionToken(); ok {
		t.Error("session token should be cleared after session expiry")
	}
}

func TestApplicationErrorPropagates(t *testing.T) {
	rpc, _, _ := newTestTransport(t)

	err := rpc.CallKw(context.Background(), "res.partner", "frobnicate", nil, nil, nil)
	if err == nil {
		t.Fatal("Expected an application error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected *RPCError, got %T: %v", err, err)
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNetwork) {
		t.Error("Application error must not match the transport sentinels")
	}
}

func TestSessionExpiryDetectionShapes(t *testing.T) {
	payloads := []string{
		`{"code":100,"message":"Odoo Session Expired","data":{"name":"odoo.http.SessionExpiredException"}}`,
		`{"code":100,"message":"Session expired","data":{}}`,
		`{"code":200,"message":"Server error","data":{"message":"session expired, please log in again"}}`,
	}
	for _, p := range payloads {
		var e RPCError
		if err := json.Unmarshal([]byte(p), &e); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if !e.isSessionExpired() {
			t.Errorf("Payload should read as session expiry: %s", p)
		}
	}

	var plain RPCError
	if err := json.Unmarshal([]byte(`{"code":200,"message":"Access Denied","data":{"name":"odoo.exceptions.AccessDenied"}}`), &plain); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if plain.isSessionExpired() {
		t.Error("Access Denied must not read as session expiry")
	}
}

func TestDatabaseList(t *testing.T) {
	rpc, srv, _ := newTestTransport(t)
	srv.Databases = []string{"prod", "staging"}

	databases, err := DatabaseList(rpc.BaseURL())
	if err != nil {
		t.Fatalf("DatabaseList failed: %v", err)
	}
	if len(databases) != 2 || databases[0] != "prod" || databases[1] != "staging" {
		t.Errorf("Unexpected database list: %v", databases)
	}
}
