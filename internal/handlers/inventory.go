package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/stocktakego/internal/models"
)

// searchProducts searches products by name; an empty query returns the
// unfiltered first page.
func (r *Router) searchProducts(w http.ResponseWriter, req *http.Request) {
	products, err := r.app.SearchProducts(req.Context(), req.URL.Query().Get("q"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

// scanBarcode resolves a scanned barcode. A miss is a 404, not an error
// payload surfaced into state.
func (r *Router) scanBarcode(w http.ResponseWriter, req *http.Request) {
	code := mux.Vars(req)["code"]
	product, err := r.app.SearchProductByBarcode(req.Context(), code)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	if product == nil {
		respondError(w, http.StatusNotFound, "No product with barcode "+code)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"product": product})
}

// listLocations loads the internal stock locations.
func (r *Router) listLocations(w http.ResponseWriter, req *http.Request) {
	locations, err := r.app.LoadLocations(req.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

// setCurrentLocation selects the operating location.
func (r *Router) setCurrentLocation(w http.ResponseWriter, req *http.Request) {
	var loc models.Location
	if err := json.NewDecoder(req.Body).Decode(&loc); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	r.app.SetCurrentLocation(&loc)
	respondJSON(w, http.StatusOK, map[string]interface{}{"current_location": loc})
}

// setScanMode toggles scan mode.
func (r *Router) setScanMode(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	r.app.SetScanMode(body.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"scan_mode": body.Enabled})
}

// listInventoryLines loads the counted lines at a location.
func (r *Router) listInventoryLines(w http.ResponseWriter, req *http.Request) {
	locationID, err := strconv.ParseInt(req.URL.Query().Get("location_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "location_id is required")
		return
	}
	lines, err := r.app.LoadInventoryLines(req.Context(), locationID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"inventory_lines": lines})
}

// addInventoryLine records a count.
func (r *Router) addInventoryLine(w http.ResponseWriter, req *http.Request) {
	var line models.InventoryLine
	if err := json.NewDecoder(req.Body).Decode(&line); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if line.ProductID == 0 || line.LocationID == 0 {
		respondError(w, http.StatusBadRequest, "product_id and location_id are required")
		return
	}

	created, err := r.app.AddInventoryLine(req.Context(), line)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"inventory_line": created})
}

// updateInventoryLine edits a recorded count. Only the counted and
// theoretical quantities are persisted remotely.
func (r *Router) updateInventoryLine(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid line id")
		return
	}

	var updates struct {
		ProductQty     *float64 `json:"product_qty"`
		TheoreticalQty *float64 `json:"theoretical_qty"`
	}
	if err := json.NewDecoder(req.Body).Decode(&updates); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := r.app.UpdateInventoryLine(req.Context(), id, updates.ProductQty, updates.TheoreticalQty); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// deleteInventoryLine retracts a count (soft delete on the Odoo side).
func (r *Router) deleteInventoryLine(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid line id")
		return
	}
	if err := r.app.DeleteInventoryLine(req.Context(), id); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// validateInventoryLines applies the given counts.
func (r *Router) validateInventoryLines(w http.ResponseWriter, req *http.Request) {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if err := r.app.ValidateInventoryLines(req.Context(), body.IDs); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// validateAllInventory applies a whole named adjustment.
func (r *Router) validateAllInventory(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string  `json:"name"`
		IDs  []int64 `json:"ids"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if body.Name == "" {
		body.Name = "Stock take"
	}
	if err := r.app.ValidateAllInventory(req.Context(), body.Name, body.IDs); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
