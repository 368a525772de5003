package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/stocktakego/internal/app"
	"github.com/xelth-com/stocktakego/internal/buildinfo"
	"github.com/xelth-com/stocktakego/internal/middleware"
	"github.com/xelth-com/stocktakego/internal/websocket"
)

// Router wraps the mux router and the application state layer.
type Router struct {
	*mux.Router
	app *app.App
	hub *websocket.Hub
}

// NewRouter creates the HTTP router exposing every application operation.
func NewRouter(a *app.App, hub *websocket.Hub) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		app:    a,
		hub:    hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(middleware.RequestLogger, middleware.CORS)
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")
	auth.HandleFunc("/restore", r.restoreSession).Methods("POST")

	// API routes. The websocket route stays outside the middleware chain
	// so the upgrade handshake keeps the raw ResponseWriter.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequestLogger, middleware.CORS)
	api.HandleFunc("/state", r.getState).Methods("GET")
	api.HandleFunc("/databases", r.listDatabases).Methods("GET")
	api.HandleFunc("/products", r.searchProducts).Methods("GET")
	api.HandleFunc("/products/barcode/{code}", r.scanBarcode).Methods("GET")
	api.HandleFunc("/products/labels", r.printLabels).Methods("POST")
	api.HandleFunc("/locations", r.listLocations).Methods("GET")
	api.HandleFunc("/locations/current", r.setCurrentLocation).Methods("PUT")
	api.HandleFunc("/scan-mode", r.setScanMode).Methods("PUT")

	inventory := r.PathPrefix("/api/inventory").Subrouter()
	inventory.Use(middleware.RequestLogger, middleware.CORS)
	inventory.HandleFunc("", r.listInventoryLines).Methods("GET")
	inventory.HandleFunc("", r.addInventoryLine).Methods("POST")
	inventory.HandleFunc("/validate", r.validateInventoryLines).Methods("POST")
	inventory.HandleFunc("/validate-all", r.validateAllInventory).Methods("POST")
	inventory.HandleFunc("/{id}", r.updateInventoryLine).Methods("PUT")
	inventory.HandleFunc("/{id}", r.deleteInventoryLine).Methods("DELETE")

	// Event stream for UI collaborators
	r.HandleFunc("/ws", hub.ServeWS)

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"server": "stocktake",
		"build":  buildinfo.Current(),
	})
}

// getState returns both state slices in one snapshot.
func (r *Router) getState(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"auth":      r.app.Auth(),
		"inventory": r.app.Inventory(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
