package models

// Product mirrors the fields this client reads from 'product.product'.
// ImageURL, when present, is a base64 data URI built from Odoo's binary
// image field.
type Product struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	DefaultCode       string  `json:"default_code"`
	Barcode           string  `json:"barcode"`
	QuantityAvailable float64 `json:"qty_available"`
	UnitName          string  `json:"uom_name"`
	CategoryID        int64   `json:"categ_id"`
	CategoryName      string  `json:"categ_name"`
	ImageURL          string  `json:"image_url,omitempty"`
}

// Location is one of Odoo's internal stock locations, selected as the
// operating context for inventory-line operations.
type Location struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// InventoryLine is one stock-count record, backed 1:1 by the
// 'stock.quant' row for its (product, location) pair.
type InventoryLine struct {
	ID             int64   `json:"id,omitempty"`
	ProductID      int64   `json:"product_id"`
	ProductName    string  `json:"product_name"`
	ProductBarcode string  `json:"product_barcode"`
	TheoreticalQty float64 `json:"theoretical_qty"`
	ProductQty     float64 `json:"product_qty"`
	DifferenceQty  float64 `json:"difference_qty"`
	LocationID     int64   `json:"location_id"`
	LocationName   string  `json:"location_name"`
}

// RecomputeDifference re-establishes the difference invariant after either
// quantity changes.
func (l *InventoryLine) RecomputeDifference() {
	l.DifferenceQty = l.ProductQty - l.TheoreticalQty
}
