package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/printer"
)

// printLabels renders a PDF label sheet for the requested products. The
// product list comes from the request so the UI can print exactly the
// shelf it is counting.
func (r *Router) printLabels(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Products []models.Product     `json:"products"`
		Config   *printer.LabelConfig `json:"config"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Products) == 0 {
		respondError(w, http.StatusBadRequest, "products are required")
		return
	}

	cfg := printer.DefaultLabelConfig()
	if body.Config != nil {
		cfg = *body.Config
	}

	pdf, err := printer.GenerateProductLabelsPDF(body.Products, cfg)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=product-labels.pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
