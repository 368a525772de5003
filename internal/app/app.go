// Package app holds the client's application state and the asynchronous
// operations that mutate it. Each operation brackets a domain-client call
// with loading/error state the way the original store's thunks did; UI
// collaborators observe the state over the HTTP API and the event stream.
package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo"
	"github.com/xelth-com/stocktakego/internal/storage"
)

// AuthState is the authentication slice of the client state. Config is
// held redacted; the password never enters state, only the store.
type AuthState struct {
	User          *models.User             `json:"user"`
	Authenticated bool                     `json:"is_authenticated"`
	Loading       bool                     `json:"loading"`
	Error         string                   `json:"error,omitempty"`
	Config        *models.ConnectionConfig `json:"config,omitempty"`
}

// InventoryState is the inventory slice of the client state.
type InventoryState struct {
	Products        []models.Product       `json:"products"`
	InventoryLines  []models.InventoryLine `json:"inventory_lines"`
	Locations       []models.Location      `json:"locations"`
	CurrentLocation *models.Location       `json:"current_location"`
	Loading         bool                   `json:"loading"`
	Error           string                 `json:"error,omitempty"`
	ScanMode        bool                   `json:"scan_mode"`
}

// Notifier receives state-change events. The websocket hub implements it;
// tests use a no-op.
type Notifier interface {
	Notify(scope string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

// App orchestrates the named operations against the domain client and
// exposes the derived view state.
type App struct {
	client   *odoo.Client
	store    *storage.Store
	notifier Notifier

	mu   sync.RWMutex
	auth AuthState
	inv  InventoryState
}

// New creates the application state layer.
func New(client *odoo.Client, store *storage.Store, notifier Notifier) *App {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &App{
		client:   client,
		store:    store,
		notifier: notifier,
		inv: InventoryState{
			Products:       []models.Product{},
			InventoryLines: []models.InventoryLine{},
			Locations:      []models.Location{},
		},
	}
}

// Auth returns a snapshot of the authentication state.
func (a *App) Auth() AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.auth
}

// Inventory returns a snapshot of the inventory state.
func (a *App) Inventory() InventoryState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inv
}

func (a *App) setAuth(mutate func(*AuthState)) {
	a.mu.Lock()
	mutate(&a.auth)
	a.mu.Unlock()
	a.notifier.Notify("auth")
}

func (a *App) setInventory(mutate func(*InventoryState)) {
	a.mu.Lock()
	mutate(&a.inv)
	a.mu.Unlock()
	a.notifier.Notify("inventory")
}

// errorMessage renders an operation failure for display.
func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

// Login authenticates against Odoo and transitions to logged-in. On
// failure the auth state resets to logged-out with a visible error.
func (a *App) Login(ctx context.Context, cfg *models.ConnectionConfig) (*models.User, error) {
	a.setAuth(func(s *AuthState) { s.Loading = true; s.Error = "" })

	user, err := a.client.Authenticate(ctx, cfg)
	if err != nil {
		a.setAuth(func(s *AuthState) {
			*s = AuthState{Error: errorMessage(err, "login failed")}
		})
		return nil, err
	}

	a.setAuth(func(s *AuthState) {
		s.Loading = false
		s.Error = ""
		s.User = user
		s.Config = cfg.Redacted()
		s.Authenticated = true
	})
	log.Printf("✅ Logged in as %s (%s)", user.Name, user.Login)
	return user, nil
}

// RestoreSession attempts the cold-start path: rehydrate the persisted
// session and verify it against the server. An absent or invalidated
// session is expected, not exceptional — the failure path is silent and
// leaves the client logged out with no visible error.
func (a *App) RestoreSession(ctx context.Context) bool {
	if !a.client.InitializeFromStorage() {
		a.setAuth(func(s *AuthState) { *s = AuthState{} })
		return false
	}

	user, err := a.client.VerifySession(ctx)
	if err != nil {
		log.Printf("🔒 Stored session is no longer valid, starting logged out")
		a.setAuth(func(s *AuthState) { *s = AuthState{} })
		return false
	}

	var cfg *models.ConnectionConfig
	if stored, ok := a.store.Config(); ok {
		cfg = stored.Redacted()
	}
	a.setAuth(func(s *AuthState) {
		*s = AuthState{User: user, Config: cfg, Authenticated: true}
	})
	log.Printf("✅ Session restored for %s", user.Login)
	return true
}

// Logout destroys the session and resets both state slices.
func (a *App) Logout(ctx context.Context) {
	if err := a.client.Logout(ctx); err != nil {
		log.Printf("⚠️ Logout: server-side destroy failed: %v", err)
	}
	a.setAuth(func(s *AuthState) { *s = AuthState{} })
	a.setInventory(func(s *InventoryState) {
		*s = InventoryState{
			Products:       []models.Product{},
			InventoryLines: []models.InventoryLine{},
			Locations:      []models.Location{},
		}
	})
}

// onError captures an operation failure into the inventory slice. A
// session-expired error also drops the auth state so the UI can route to
// re-login.
func (a *App) onError(err error, fallback string) {
	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		s.Error = errorMessage(err, fallback)
	})
	if errors.Is(err, odoo.ErrSessionExpired) {
		a.setAuth(func(s *AuthState) { *s = AuthState{Error: err.Error()} })
	}
}

// ListDatabases enumerates the databases of a server for the login
// screen. Pre-authentication; does not touch the held state.
func (a *App) ListDatabases(serverURL string) ([]string, error) {
	return a.client.DatabaseList(serverURL)
}

// SearchProducts searches by name substring; an empty term returns the
// unfiltered first page.
func (a *App) SearchProducts(ctx context.Context, term string) ([]models.Product, error) {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	domain := models.Domain{}
	if term != "" {
		domain = models.Domain{models.Cond("name", "ilike", term)}
	}
	products, err := a.client.SearchProducts(ctx, domain)
	if err != nil {
		a.onError(err, "product search failed")
		return nil, err
	}

	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		s.Products = products
	})
	return products, nil
}

// SearchProductByBarcode looks up a scanned barcode. A hit is prepended
// to the product list if not already present; a miss returns nil, nil.
func (a *App) SearchProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	product, err := a.client.SearchProductByBarcode(ctx, barcode)
	if err != nil {
		a.onError(err, "barcode lookup failed")
		return nil, err
	}

	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		if product == nil {
			return
		}
		for _, p := range s.Products {
			if p.ID == product.ID {
				return
			}
		}
		s.Products = append([]models.Product{*product}, s.Products...)
	})
	return product, nil
}

// AddInventoryLine records a count for a product at the current location.
func (a *App) AddInventoryLine(ctx context.Context, line models.InventoryLine) (*models.InventoryLine, error) {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	created, err := a.client.CreateInventoryLine(ctx, line)
	if err != nil {
		a.onError(err, "failed to record count")
		return nil, err
	}

	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		for i := range s.InventoryLines {
			if s.InventoryLines[i].ID == created.ID {
				s.InventoryLines[i] = *created
				return
			}
		}
		s.InventoryLines = append(s.InventoryLines, *created)
	})
	return created, nil
}

// UpdateInventoryLine edits a recorded count.
func (a *App) UpdateInventoryLine(ctx context.Context, id int64, productQty, theoreticalQty *float64) error {
	if err := a.client.UpdateInventoryLine(ctx, id, productQty, theoreticalQty); err != nil {
		a.onError(err, "failed to update count")
		return err
	}

	a.setInventory(func(s *InventoryState) {
		s.Error = ""
		for i := range s.InventoryLines {
			if s.InventoryLines[i].ID != id {
				continue
			}
			if productQty != nil {
				s.InventoryLines[i].ProductQty = *productQty
			}
			if theoreticalQty != nil {
				s.InventoryLines[i].TheoreticalQty = *theoreticalQty
			}
			s.InventoryLines[i].RecomputeDifference()
		}
	})
	return nil
}

// LoadInventoryLines loads the counted lines at a location.
func (a *App) LoadInventoryLines(ctx context.Context, locationID int64) ([]models.InventoryLine, error) {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	lines, err := a.client.GetInventoryLines(ctx, locationID)
	if err != nil {
		a.onError(err, "failed to load inventory lines")
		return nil, err
	}

	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		s.InventoryLines = lines
	})
	return lines, nil
}

// LoadLocations loads the internal stock locations.
func (a *App) LoadLocations(ctx context.Context) ([]models.Location, error) {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	locations, err := a.client.GetLocations(ctx)
	if err != nil {
		a.onError(err, "failed to load locations")
		return nil, err
	}

	a.setInventory(func(s *InventoryState) {
		s.Loading = false
		s.Locations = locations
	})
	return locations, nil
}

// DeleteInventoryLine retracts a count and drops the line from view.
func (a *App) DeleteInventoryLine(ctx context.Context, id int64) error {
	if err := a.client.DeleteInventoryLine(ctx, id); err != nil {
		a.onError(err, "failed to delete count")
		return err
	}
	a.RemoveInventoryLine(id)
	return nil
}

// ValidateInventoryLines makes the given counts authoritative.
func (a *App) ValidateInventoryLines(ctx context.Context, ids []int64) error {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	if err := a.client.ValidateInventoryLines(ctx, ids); err != nil {
		a.onError(err, "failed to apply inventory")
		return err
	}

	a.setInventory(func(s *InventoryState) { s.Loading = false })
	return nil
}

// ValidateAllInventory applies a whole named adjustment.
func (a *App) ValidateAllInventory(ctx context.Context, name string, ids []int64) error {
	a.setInventory(func(s *InventoryState) { s.Loading = true; s.Error = "" })

	if err := a.client.ValidateAllInventory(ctx, name, ids); err != nil {
		a.onError(err, "failed to apply adjustment")
		return err
	}

	a.setInventory(func(s *InventoryState) { s.Loading = false })
	return nil
}

// SetScanMode toggles the scanning mode flag.
func (a *App) SetScanMode(on bool) {
	a.setInventory(func(s *InventoryState) { s.ScanMode = on })
}

// SetCurrentLocation selects the operating location for inventory-line
// operations.
func (a *App) SetCurrentLocation(loc *models.Location) {
	a.setInventory(func(s *InventoryState) { s.CurrentLocation = loc })
}

// RemoveInventoryLine drops a line from the held state without a remote
// call.
func (a *App) RemoveInventoryLine(id int64) {
	a.setInventory(func(s *InventoryState) {
		out := s.InventoryLines[:0]
		for _, l := range s.InventoryLines {
			if l.ID != id {
				out = append(out, l)
			}
		}
		s.InventoryLines = out
	})
}

// ClearInventoryLines empties the held line list.
func (a *App) ClearInventoryLines() {
	a.setInventory(func(s *InventoryState) { s.InventoryLines = []models.InventoryLine{} })
}

// ClearError dismisses the current error of both slices.
func (a *App) ClearError() {
	a.setAuth(func(s *AuthState) { s.Error = "" })
	a.setInventory(func(s *InventoryState) { s.Error = "" })
}
