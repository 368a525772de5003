package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xelth-com/stocktakego/internal/app"
	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo"
	"github.com/xelth-com/stocktakego/internal/odoo/odootest"
	"github.com/xelth-com/stocktakego/internal/storage"
	"github.com/xelth-com/stocktakego/internal/websocket"
)

func newTestRouter(t *testing.T) (*Router, *app.App, *odootest.Server) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	srv := odootest.New()
	t.Cleanup(srv.Close)
	srv.Users[2] = odootest.Record{
		"name":       "Mitchell Admin",
		"login":      "counter",
		"email":      "counter@example.com",
		"company_id": []interface{}{int64(1), "YourCompany"},
	}

	application := app.New(odoo.NewClient(store), store, nil)
	return NewRouter(application, websocket.NewHub()), application, srv
}

// The state endpoint is readable by any page in the device browser, so
// the credential entered at login must never travel back out of it.
func TestStateEndpointRedactsPassword(t *testing.T) {
	router, application, srv := newTestRouter(t)

	_, err := application.Login(context.Background(), &models.ConnectionConfig{
		URL:      srv.URL,
		Database: "prod",
		Username: "counter",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Errorf("State response must not carry the password: %s", body)
	}
	// The rest of the config stays visible for the login form re-fill.
	if !strings.Contains(body, `"database":"prod"`) {
		t.Errorf("Redaction must not drop the config itself: %s", body)
	}
}
