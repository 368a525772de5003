package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/storage"
)

// Caps on search results.
const (
	productSearchLimit  = 100
	locationSearchLimit = 50
)

// maxConflictRetries bounds the inventory-apply reconciliation loop. The
// original protocol retried forever; a server persistently answering with
// the conflict envelope would have looped unboundedly.
const maxConflictRetries = 5

// ErrConflictUnresolved is returned when the apply-inventory call still
// reports concurrent stock movements after the retry budget is spent.
var ErrConflictUnresolved = errors.New("inventory conflict could not be resolved")

// Sentinel defaults for products with no unit or category configured.
const (
	defaultUnitName     = "Unit"
	defaultCategoryName = "No Category"
)

// Client builds the domain-specific Odoo calls on top of the JSON-RPC
// transport. It is session-aware: Authenticate arms it, and every call
// rides the session cookie the transport persists.
type Client struct {
	rpc   *Transport
	store *storage.Store
}

// NewClient creates a domain client backed by the given session store.
func NewClient(store *storage.Store) *Client {
	return &Client{
		rpc:   NewTransport(store),
		store: store,
	}
}

// Transport exposes the underlying RPC transport.
func (c *Client) Transport() *Transport { return c.rpc }

// authResult is the subset of /web/session/authenticate's reply we use.
// The response carries only identity; profile fields require a follow-up
// read on res.users.
type authResult struct {
	UID       int64      `json:"uid"`
	SessionID string     `json:"session_id"`
	Username  string     `json:"username"`
	Name      OdooString `json:"name"`
}

// OdooString aliases the models type for brevity in the wire structs below.
type OdooString = models.OdooString

// userRecord is the res.users projection read after authentication.
type userRecord struct {
	ID        int64           `json:"id"`
	Name      OdooString      `json:"name"`
	Login     OdooString      `json:"login"`
	Email     OdooString      `json:"email"`
	CompanyID models.Many2One `json:"company_id"`
}

// Authenticate opens a session and returns the acting user. On success the
// session aggregate and the connection config are persisted; on any
// failure, partial session state is cleared before the error propagates.
func (c *Client) Authenticate(ctx context.Context, cfg *models.ConnectionConfig) (*models.User, error) {
	cfg.Normalize()
	if !cfg.Valid() {
		return nil, errors.New("invalid connection config: absolute http(s) url and database required")
	}
	c.rpc.SetBaseURL(cfg.URL)

	result, err := c.rpc.Call(ctx, "/web/session/authenticate", map[string]interface{}{
		"db":       cfg.Database,
		"login":    cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		c.store.ClearSession()
		return nil, err
	}

	var auth authResult
	if err := json.Unmarshal(result, &auth); err != nil || auth.UID == 0 {
		c.store.ClearSession()
		return nil, errors.New("authentication failed: no uid in response")
	}

	c.store.SetUID(auth.UID)
	c.store.SetSessionToken(auth.SessionID)
	c.store.SetConfig(cfg)

	user, err := c.readUser(ctx, auth.UID)
	if err != nil {
		c.store.ClearSession()
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	return user, nil
}

// readUser loads the display fields of a user.
func (c *Client) readUser(ctx context.Context, uid int64) (*models.User, error) {
	var records []userRecord
	err := c.rpc.CallKw(ctx, models.ModelResUsers, "read",
		[]interface{}{[]int64{uid}, []string{"name", "login", "email", "company_id"}},
		nil, &records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("user record not found")
	}
	r := records[0]
	return &models.User{
		ID:          r.ID,
		Name:        r.Name.String(),
		Login:       r.Login.String(),
		Email:       r.Email.String(),
		CompanyID:   r.CompanyID.ID,
		CompanyName: r.CompanyID.Name,
	}, nil
}

// InitializeFromStorage rehydrates the client from a previously persisted
// session. It returns true only when the full aggregate (uid, token,
// cookie, config) is present; liveness must be verified separately with
// VerifySession.
func (c *Client) InitializeFromStorage() bool {
	sess, ok := c.store.Session()
	if !ok {
		return false
	}
	cfg, ok := c.store.Config()
	if !ok || !cfg.Valid() {
		return false
	}
	c.rpc.SetBaseURL(cfg.URL)
	log.Printf("🔑 Session restored from storage (uid %d)", sess.UID)
	return true
}

// VerifySession checks a rehydrated session against the server by reading
// the stored user. On any failure it clears local session storage.
func (c *Client) VerifySession(ctx context.Context) (*models.User, error) {
	uid, ok := c.store.UID()
	if !ok {
		return nil, errors.New("no stored session")
	}
	user, err := c.readUser(ctx, uid)
	if err != nil {
		c.store.ClearSession()
		return nil, err
	}
	return user, nil
}

// Logout destroys the server-side session and clears local storage. The
// local clear happens regardless of the server call's outcome.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.rpc.Call(ctx, "/web/session/destroy", map[string]interface{}{})
	c.store.ClearSession()
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}
	return nil
}

// DatabaseList enumerates databases on a server, defaulting to the
// configured one when no URL is given.
func (c *Client) DatabaseList(serverURL string) ([]string, error) {
	if serverURL == "" {
		serverURL = c.rpc.BaseURL()
	}
	if serverURL == "" {
		return nil, errors.New("odoo connection not configured")
	}
	return DatabaseList(serverURL)
}

// productRecord is the product.product projection used by searches.
type productRecord struct {
	ID           int64           `json:"id"`
	Name         OdooString      `json:"name"`
	DefaultCode  OdooString      `json:"default_code"`
	Barcode      OdooString      `json:"barcode"`
	QtyAvailable float64         `json:"qty_available"`
	UomID        models.Many2One `json:"uom_id"`
	CategID      models.Many2One `json:"categ_id"`
	Image128     OdooString      `json:"image_128"`
}

func (r productRecord) toProduct() models.Product {
	p := models.Product{
		ID:                r.ID,
		Name:              r.Name.String(),
		DefaultCode:       r.DefaultCode.String(),
		Barcode:           r.Barcode.String(),
		QuantityAvailable: r.QtyAvailable,
		UnitName:          defaultUnitName,
		CategoryName:      defaultCategoryName,
	}
	if !r.UomID.IsZero() {
		p.UnitName = r.UomID.Name
	}
	if !r.CategID.IsZero() {
		p.CategoryID = r.CategID.ID
		p.CategoryName = r.CategID.Name
	}
	if img := r.Image128.String(); img != "" {
		p.ImageURL = "data:image/png;base64," + img
	}
	return p
}

// SearchProducts runs the two-step search/read idiom: search returns
// matching ids (capped at 100), read fetches the fixed field projection.
// Zero ids short-circuits without the read round trip.
func (c *Client) SearchProducts(ctx context.Context, domain models.Domain) ([]models.Product, error) {
	var ids []int64
	err := c.rpc.CallKw(ctx, models.ModelProductProduct, "search",
		[]interface{}{domain.ToRPC()},
		map[string]interface{}{"limit": productSearchLimit}, &ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var records []productRecord
	err = c.rpc.CallKw(ctx, models.ModelProductProduct, "read",
		[]interface{}{ids, []string{"name", "default_code", "barcode", "qty_available", "uom_id", "categ_id", "image_128"}},
		nil, &records)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(records))
	for _, r := range records {
		products = append(products, r.toProduct())
	}
	return products, nil
}

// SearchProductByBarcode returns the first product with an exact barcode
// match, or nil when none exists. Barcode uniqueness is assumed, not
// enforced here.
func (c *Client) SearchProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	products, err := c.SearchProducts(ctx, models.Domain{models.Cond("barcode", "=", barcode)})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

// quantRecord is the stock.quant projection used by inventory reads.
type quantRecord struct {
	ID                    int64           `json:"id"`
	ProductID             models.Many2One `json:"product_id"`
	LocationID            models.Many2One `json:"location_id"`
	Quantity              float64         `json:"quantity"`
	InventoryQuantity     float64         `json:"inventory_quantity"`
	InventoryDiffQuantity float64         `json:"inventory_diff_quantity"`
}

// findQuant returns the id of the quant for a (product, location) pair,
// or 0 when none exists.
func (c *Client) findQuant(ctx context.Context, productID, locationID int64) (int64, error) {
	var ids []int64
	err := c.rpc.CallKw(ctx, models.ModelStockQuant, "search",
		[]interface{}{models.Domain{
			models.Cond("product_id", "=", productID),
			models.Cond("location_id", "=", locationID),
		}.ToRPC()},
		map[string]interface{}{"limit": 1}, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// CreateInventoryLine records a count with upsert semantics keyed on
// (product, location): the quant is Odoo's unique ledger entry for the
// pair, so an existing one is written rather than duplicated.
func (c *Client) CreateInventoryLine(ctx context.Context, line models.InventoryLine) (*models.InventoryLine, error) {
	quantID, err := c.findQuant(ctx, line.ProductID, line.LocationID)
	if err != nil {
		return nil, err
	}

	if quantID != 0 {
		err = c.rpc.CallKw(ctx, models.ModelStockQuant, "write",
			[]interface{}{[]int64{quantID}, map[string]interface{}{
				"quantity":           line.TheoreticalQty,
				"inventory_quantity": line.ProductQty,
			}}, nil, nil)
		if err != nil {
			return nil, err
		}
	} else {
		err = c.rpc.CallKw(ctx, models.ModelStockQuant, "create",
			[]interface{}{map[string]interface{}{
				"product_id":         line.ProductID,
				"location_id":        line.LocationID,
				"quantity":           0,
				"inventory_quantity": line.ProductQty,
			}}, nil, &quantID)
		if err != nil {
			return nil, err
		}
	}

	line.ID = quantID
	line.RecomputeDifference()
	return &line, nil
}

// GetInventoryLines returns the counted quants at a location, joined
// client-side with product names/barcodes and the location name. A quant
// whose product record is missing yields an empty barcode, never an error.
func (c *Client) GetInventoryLines(ctx context.Context, locationID int64) ([]models.InventoryLine, error) {
	var ids []int64
	err := c.rpc.CallKw(ctx, models.ModelStockQuant, "search",
		[]interface{}{models.Domain{
			models.Cond("location_id", "=", locationID),
			models.Cond("inventory_quantity_set", "=", true),
		}.ToRPC()}, nil, &ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.InventoryLine{}, nil
	}

	var quants []quantRecord
	err = c.rpc.CallKw(ctx, models.ModelStockQuant, "read",
		[]interface{}{ids, []string{"product_id", "location_id", "quantity", "inventory_quantity", "inventory_diff_quantity"}},
		nil, &quants)
	if err != nil {
		return nil, err
	}

	// Batched joins: one read for all product barcodes, one for the
	// location name.
	productIDs := make([]int64, 0, len(quants))
	seen := make(map[int64]bool)
	for _, q := range quants {
		if id := q.ProductID.ID; id != 0 && !seen[id] {
			seen[id] = true
			productIDs = append(productIDs, id)
		}
	}

	barcodes := make(map[int64]string)
	if len(productIDs) > 0 {
		var prods []productRecord
		err = c.rpc.CallKw(ctx, models.ModelProductProduct, "read",
			[]interface{}{productIDs, []string{"name", "barcode"}}, nil, &prods)
		if err != nil {
			return nil, err
		}
		for _, p := range prods {
			barcodes[p.ID] = p.Barcode.String()
		}
	}

	locationName := ""
	var locs []struct {
		ID   int64      `json:"id"`
		Name OdooString `json:"name"`
	}
	err = c.rpc.CallKw(ctx, models.ModelStockLocation, "read",
		[]interface{}{[]int64{locationID}, []string{"name"}}, nil, &locs)
	if err != nil {
		return nil, err
	}
	if len(locs) > 0 {
		locationName = locs[0].Name.String()
	}

	lines := make([]models.InventoryLine, 0, len(quants))
	for _, q := range quants {
		line := models.InventoryLine{
			ID:             q.ID,
			ProductID:      q.ProductID.ID,
			ProductName:    q.ProductID.Name,
			ProductBarcode: barcodes[q.ProductID.ID],
			TheoreticalQty: q.Quantity,
			ProductQty:     q.InventoryQuantity,
			LocationID:     locationID,
			LocationName:   locationName,
		}
		line.RecomputeDifference()
		lines = append(lines, line)
	}
	return lines, nil
}

// UpdateInventoryLine writes a partial update onto a quant. Only the
// counted and theoretical quantities map onto remote fields; the other
// line fields are display-only.
func (c *Client) UpdateInventoryLine(ctx context.Context, id int64, productQty, theoreticalQty *float64) error {
	values := map[string]interface{}{}
	if productQty != nil {
		values["inventory_quantity"] = *productQty
	}
	if theoreticalQty != nil {
		values["quantity"] = *theoreticalQty
	}
	if len(values) == 0 {
		return nil
	}
	return c.rpc.CallKw(ctx, models.ModelStockQuant, "write",
		[]interface{}{[]int64{id}, values}, nil, nil)
}

// DeleteInventoryLine retracts a count without touching the underlying
// quant: the quant is an authoritative stock fact and must survive a
// miscount. Only the counted quantity and the count flag are cleared.
func (c *Client) DeleteInventoryLine(ctx context.Context, id int64) error {
	return c.rpc.CallKw(ctx, models.ModelStockQuant, "write",
		[]interface{}{[]int64{id}, map[string]interface{}{
			"inventory_quantity":     0,
			"inventory_quantity_set": false,
		}}, nil, nil)
}

// conflictEnvelope is the navigation directive Odoo returns instead of a
// plain result when on-hand quantity changed concurrently with the count.
type conflictEnvelope struct {
	ResModel string `json:"res_model"`
	Context  struct {
		QuantToFixIDs []int64 `json:"default_quant_to_fix_ids"`
	} `json:"context"`
}

// parseConflict extracts the conflict envelope from an apply result, if
// the result has that shape.
func parseConflict(result json.RawMessage) ([]int64, bool) {
	if len(result) == 0 {
		return nil, false
	}
	var env conflictEnvelope
	if err := json.Unmarshal(result, &env); err != nil {
		return nil, false
	}
	if models.Model(env.ResModel) != models.ModelInventoryConflict {
		return nil, false
	}
	return env.Context.QuantToFixIDs, true
}

// resolveConflicts re-bases the conflicting counts on the server's new
// quantities, preserving the user's intended delta rather than their
// absolute counted number: counted becomes quantity+diff, theoretical
// becomes the new quantity.
func (c *Client) resolveConflicts(ctx context.Context, quantIDs []int64) error {
	var quants []quantRecord
	err := c.rpc.CallKw(ctx, models.ModelStockQuant, "read",
		[]interface{}{quantIDs, []string{"quantity", "inventory_diff_quantity"}},
		nil, &quants)
	if err != nil {
		return err
	}

	for _, q := range quants {
		counted := q.Quantity + q.InventoryDiffQuantity
		err = c.rpc.CallKw(ctx, models.ModelStockQuant, "write",
			[]interface{}{[]int64{q.ID}, map[string]interface{}{
				"inventory_quantity": counted,
				"quantity":           q.Quantity,
			}}, nil, nil)
		if err != nil {
			return err
		}
		log.Printf("🔧 Conflict on quant %d: re-based count to %.2f (theoretical %.2f)", q.ID, counted, q.Quantity)
	}
	return nil
}

// ValidateInventoryLines applies the counted quantities of the given
// quants as the new on-hand truth. Irreversible from the client's
// perspective. Conflicts are consumed by the retry loop and never surface
// unless the retry budget is exhausted.
func (c *Client) ValidateInventoryLines(ctx context.Context, ids []int64) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var result json.RawMessage
		err := c.rpc.CallKw(ctx, models.ModelStockQuant, "action_apply_inventory",
			[]interface{}{ids}, nil, &result)
		if err != nil {
			return err
		}

		fixIDs, conflicted := parseConflict(result)
		if !conflicted {
			return nil
		}
		log.Printf("⚠️ Inventory apply conflicted on %d quant(s), reconciling (attempt %d/%d)", len(fixIDs), attempt+1, maxConflictRetries)
		if err := c.resolveConflicts(ctx, fixIDs); err != nil {
			return err
		}
	}
	return ErrConflictUnresolved
}

// ValidateAllInventory applies a whole named adjustment through Odoo's
// adjustment-name wizard, with the same conflict-retry protocol. Each
// retry restarts from the top, wizard creation included.
func (c *Client) ValidateAllInventory(ctx context.Context, name string, ids []int64) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var wizardID int64
		err := c.rpc.CallKw(ctx, models.ModelInventoryAdjName, "create",
			[]interface{}{map[string]interface{}{"inventory_adjustment_name": name}},
			map[string]interface{}{"context": map[string]interface{}{"default_quant_ids": ids}},
			&wizardID)
		if err != nil {
			return err
		}

		var result json.RawMessage
		err = c.rpc.CallKw(ctx, models.ModelInventoryAdjName, "action_apply",
			[]interface{}{[]int64{wizardID}},
			map[string]interface{}{"context": map[string]interface{}{"default_quant_ids": ids}},
			&result)
		if err != nil {
			return err
		}

		fixIDs, conflicted := parseConflict(result)
		if !conflicted {
			return nil
		}
		log.Printf("⚠️ Adjustment %q conflicted on %d quant(s), reconciling (attempt %d/%d)", name, len(fixIDs), attempt+1, maxConflictRetries)
		if err := c.resolveConflicts(ctx, fixIDs); err != nil {
			return err
		}
	}
	return ErrConflictUnresolved
}

// GetLocations lists the internal stock locations, capped at 50.
func (c *Client) GetLocations(ctx context.Context) ([]models.Location, error) {
	var ids []int64
	err := c.rpc.CallKw(ctx, models.ModelStockLocation, "search",
		[]interface{}{models.Domain{models.Cond("usage", "=", "internal")}.ToRPC()},
		map[string]interface{}{"limit": locationSearchLimit}, &ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Location{}, nil
	}

	var records []struct {
		ID   int64      `json:"id"`
		Name OdooString `json:"name"`
	}
	err = c.rpc.CallKw(ctx, models.ModelStockLocation, "read",
		[]interface{}{ids, []string{"name"}}, nil, &records)
	if err != nil {
		return nil, err
	}

	locations := make([]models.Location, 0, len(records))
	for _, r := range records {
		locations = append(locations, models.Location{ID: r.ID, Name: r.Name.String()})
	}
	return locations, nil
}
