package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo"
	"github.com/xelth-com/stocktakego/internal/odoo/odootest"
	"github.com/xelth-com/stocktakego/internal/storage"
)

type recordingNotifier struct {
	scopes []string
}

func (n *recordingNotifier) Notify(scope string) { n.scopes = append(n.scopes, scope) }

func newTestApp(t *testing.T) (*App, *odootest.Server, *storage.Store) {
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

	client := odoo.NewClient(store)
	return New(client, store, nil), srv, store
}

func testConfig(srv *odootest.Server) *models.ConnectionConfig {
	return &models.ConnectionConfig{
		URL:      srv.URL,
		Database: "prod",
		Username: "counter",
		Password: "secret",
	}
}

func TestLoginTransitionsToLoggedIn(t *testing.T) {
	a, srv, _ := newTestApp(t)

	if a.Auth().Authenticated {
		t.Fatal("Must start logged out")
	}

	user, err := a.Login(context.Background(), testConfig(srv))
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	auth := a.Auth()
	if !auth.Authenticated || auth.Loading || auth.Error != "" {
		t.Errorf("Unexpected auth state after login: %+v", auth)
	}
	if auth.User == nil || auth.User.Login != user.Login {
		t.Errorf("Auth state should hold the user, got %+v", auth.User)
	}
	if auth.Config == nil || auth.Config.Password != "" {
		t.Errorf("State must hold the config redacted, got %+v", auth.Config)
	}
}

func TestLoginFailureResetsToLoggedOut(t *testing.T) {
	a, srv, _ := newTestApp(t)
	srv.AuthFail = true

	if _, err := a.Login(context.Background(), testConfig(srv)); err == nil {
		t.Fatal("Expected login to fail")
	}

	auth := a.Auth()
	if auth.Authenticated || auth.User != nil || auth.Config != nil {
		t.Errorf("Failed login must reset auth state, got %+v", auth)
	}
	if auth.Error == "" {
		t.Error("User-initiated login failure must carry a visible error")
	}
}

func TestLogout(t *testing.T) {
	a, srv, store := newTestApp(t)
	if _, err := a.Login(context.Background(), testConfig(srv)); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	a.Logout(context.Background())

	if a.Auth().Authenticated {
		t.Error("Must be logged out after Logout")
	}
	if _, ok := store.Session(); ok {
		t.Error("Session storage must be cleared on logout")
	}
	if _, ok := store.Config(); !ok {
		t.Error("Connection config should survive logout for re-fill")
	}
}

func TestRestoreSessionColdStartEmpty(t *testing.T) {
	a, _, _ := newTestApp(t)

	if a.RestoreSession(context.Background()) {
		t.Fatal("Restore with no stored session must fail")
	}

	// The failure path is silent: logged out, no visible error
	auth := a.Auth()
	if auth.Authenticated || auth.Error != "" {
		t.Errorf("Cold start must be silent, got %+v", auth)
	}
}

func TestRestoreSessionServerInvalidated(t *testing.T) {
	a, srv, store := newTestApp(t)

	store.SetSession(&models.Session{UID: 2, Token: "tok", Cookie: "session_id=stale"})
	store.SetConfig(testConfig(srv))
	srv.ExpireSession = true

	if a.RestoreSession(context.Background()) {
		t.Fatal("Restore with a server-invalidated session must fail")
	}

	auth := a.Auth()
	if auth.Authenticated || auth.Error != "" {
		t.Errorf("Invalidated restore must be silent, got %+v", auth)
	}
	if _, ok := store.Session(); ok {
		t.Error("Local session storage must be cleared after a dead restore")
	}
}

func TestRestoreSessionSuccess(t *testing.T) {
	a, srv, store := newTestApp(t)

	store.SetSession(&models.Session{UID: 2, Token: "tok", Cookie: "session_id=live"})
	store.SetConfig(testConfig(srv))

	if !a.RestoreSession(context.Background()) {
		t.Fatal("Restore with a live session should succeed")
	}
	auth := a.Auth()
	if !auth.Authenticated || auth.User == nil || auth.User.Login != "counter" {
		t.Errorf("Unexpected auth state after restore: %+v", auth)
	}
	if auth.Config == nil || auth.Config.Password != "" {
		t.Errorf("Restored state must hold the config redacted, got %+v", auth.Config)
	}
}

func TestSearchProductsDomainShape(t *testing.T) {
	a, srv, _ := newTestApp(t)
	if _, err := a.Login(context.Background(), testConfig(srv)); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Empty term: no name clause at all
	if _, err := a.SearchProducts(context.Background(), ""); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	searches := srv.CallsTo("product.product", "search")
	if len(searches) != 1 {
		t.Fatalf("Expected one search, got %d", len(searches))
	}
	if domain, _ := searches[0].Args[0].([]interface{}); len(domain) != 0 {
		t.Errorf("Empty term must not filter, got %#v", searches[0].Args[0])
	}

	// Non-empty term: case-insensitive substring on name
	if _, err := a.SearchProducts(context.Background(), "screw"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	searches = srv.CallsTo("product.product", "search")
	if len(searches) != 2 {
		t.Fatalf("Expected two searches, got %d", len(searches))
	}
	domain, _ := searches[1].Args[0].([]interface{})
	if len(domain) != 1 {
		t.Fatalf("Expected one domain clause, got %#v", domain)
	}
	clause, _ := domain[0].([]interface{})
	if len(clause) != 3 || clause[0] != "name" || clause[1] != "ilike" || clause[2] != "screw" {
		t.Errorf("Expected [name ilike screw], got %#v", clause)
	}
}

func TestScanPrependsNewProduct(t *testing.T) {
	a, srv, _ := newTestApp(t)
	srv.Products = []odootest.Record{
		{
			"id": int64(10), "name": "Wood Screw", "default_code": "WS",
			"barcode": "111", "qty_available": 1.0,
			"uom_id": false, "categ_id": false, "image_128": false,
		},
	}
	if _, err := a.Login(context.Background(), testConfig(srv)); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	product, err := a.SearchProductByBarcode(context.Background(), "111")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if product == nil {
		t.Fatal("Expected a product")
	}

	inv := a.Inventory()
	if len(inv.Products) != 1 || inv.Products[0].ID != 10 {
		t.Errorf("Scanned product should be prepended, got %+v", inv.Products)
	}

	// Scanning the same barcode again must not duplicate it
	if _, err := a.SearchProductByBarcode(context.Background(), "111"); err != nil {
		t.Fatalf("Second scan failed: %v", err)
	}
	if inv := a.Inventory(); len(inv.Products) != 1 {
		t.Errorf("Duplicate scan must not grow the list, got %d", len(a.Inventory().Products))
	}

	// A miss is soft: nil product, no error state
	missing, err := a.SearchProductByBarcode(context.Background(), "000")
	if err != nil {
		t.Fatalf("Miss must not error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown barcode, got %+v", missing)
	}
	if inv := a.Inventory(); inv.Error != "" {
		t.Errorf("Miss must not set an error, got %q", inv.Error)
	}
}

func TestOperationErrorCaptured(t *testing.T) {
	a, srv, _ := newTestApp(t)
	if _, err := a.Login(context.Background(), testConfig(srv)); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	srv.ExpireSession = true
	if _, err := a.SearchProducts(context.Background(), "x"); err == nil {
		t.Fatal("Expected search to fail")
	}

	inv := a.Inventory()
	if inv.Loading || inv.Error == "" {
		t.Errorf("Failure must clear loading and set error, got %+v", inv)
	}
	// Session expiry also drops authentication so the UI re-routes
	if a.Auth().Authenticated {
		t.Error("Session expiry must reset auth state")
	}
}

func TestInventoryLineLifecycle(t *testing.T) {
	a, srv, _ := newTestApp(t)
	if _, err := a.Login(context.Background(), testConfig(srv)); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	a.SetCurrentLocation(&models.Location{ID: 5, Name: "WH/Stock"})

	line, err := a.AddInventoryLine(context.Background(), models.InventoryLine{
		ProductID: 10, LocationID: 5, TheoreticalQty: 8, ProductQty: 6,
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := a.Inventory().InventoryLines; len(got) != 1 || got[0].ID != line.ID {
		t.Fatalf("Line should be held in state, got %+v", got)
	}

	// Re-counting the same pair replaces the held line
	if _, err := a.AddInventoryLine(context.Background(), models.InventoryLine{
		ProductID: 10, LocationID: 5, TheoreticalQty: 8, ProductQty: 9,
	}); err != nil {
		t.Fatalf("Re-count failed: %v", err)
	}
	held := a.Inventory().InventoryLines
	if len(held) != 1 {
		t.Fatalf("Upsert must not duplicate held lines, got %d", len(held))
	}
	if held[0].ProductQty != 9 || held[0].DifferenceQty != 1 {
		t.Errorf("Held line should reflect the re-count, got %+v", held[0])
	}

	qty := 12.0
	if err := a.UpdateInventoryLine(context.Background(), line.ID, &qty, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	held = a.Inventory().InventoryLines
	if held[0].ProductQty != 12 || held[0].DifferenceQty != 4 {
		t.Errorf("Difference must be recomputed on update, got %+v", held[0])
	}

	if err := a.DeleteInventoryLine(context.Background(), line.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if held := a.Inventory().InventoryLines; len(held) != 0 {
		t.Errorf("Deleted line must leave the held state, got %+v", held)
	}
}

func TestNotifierReceivesScopes(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	n := &recordingNotifier{}
	a := New(odoo.NewClient(store), store, n)

	a.SetScanMode(true)
	a.ClearError()

	if len(n.scopes) == 0 {
		t.Fatal("Notifier should have been called")
	}
	seen := map[string]bool{}
	for _, s := range n.scopes {
		seen[s] = true
	}
	if !seen["inventory"] || !seen["auth"] {
		t.Errorf("Expected auth and inventory notifications, got %v", n.scopes)
	}
}
