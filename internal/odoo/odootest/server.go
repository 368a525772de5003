// Package odootest provides an in-process fake of the Odoo endpoints this
// client talks to, backed by mutable in-memory fixtures. It speaks just
// enough JSON-RPC and XML-RPC for the test suites; anything else returns
// an application error the way a real server would.
package odootest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Quant is the mutable server-side state of one stock.quant record.
type Quant struct {
	ID                    int64
	ProductID             int64
	LocationID            int64
	Quantity              float64
	InventoryQuantity     float64
	InventoryDiffQuantity float64
	InventoryQuantitySet  bool
}

// Record is a generic fixture row keyed by Odoo field name.
type Record map[string]interface{}

// Call is one recorded /web/dataset/call_kw invocation.
type Call struct {
	Model  string
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Server fakes the Odoo endpoints used by the client.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Fixtures.
	Databases []string
	Users     map[int64]Record
	Products  []Record
	Locations []Record
	Quants    map[int64]*Quant

	// Behavior knobs.
	AuthFail       bool    // authenticate responds without a uid
	ExpireSession  bool    // every call_kw answers with the session-expired envelope
	ConflictRounds int     // apply-inventory answers the conflict envelope this many times
	ConflictIDs    []int64 // quant ids carried in the conflict envelope
	Cookie         string  // session cookie value set on every response

	// Recorded traffic.
	Calls       []Call
	QuantWrites []map[string]interface{} // values of every stock.quant write, in order

	nextID int64
}

// New starts a fake server with empty fixtures.
func New() *Server {
	s := &Server{
		Users:  map[int64]Record{},
		Quants: map[int64]*Quant{},
		Cookie: "test-session-cookie",
		nextID: 1000,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/session/authenticate", s.handleAuthenticate)
	mux.HandleFunc("/web/session/destroy", s.handleDestroy)
	mux.HandleFunc("/web/dataset/call_kw", s.handleCallKw)
	mux.HandleFunc("/xmlrpc/db", s.handleXMLRPCDB)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddQuant registers a quant fixture and returns its id.
func (s *Server) AddQuant(q Quant) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		s.nextID++
		q.ID = s.nextID
	}
	s.Quants[q.ID] = &q
	return q.ID
}

// CallsTo returns the recorded calls matching a model and method.
func (s *Server) CallsTo(model, method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.Calls {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type rpcEnvelope struct {
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

func (s *Server) respond(w http.ResponseWriter, result interface{}) {
	if s.Cookie != "" {
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: s.Cookie, Path: "/"})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      nil,
		"result":  result,
	})
}

func (s *Server) respondError(w http.ResponseWriter, code int, message, dataName string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"data": map[string]interface{}{
				"name":    dataName,
				"message": message,
			},
		},
	})
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var env rpcEnvelope
	json.NewDecoder(r.Body).Decode(&env)

	if s.AuthFail {
		s.respond(w, map[string]interface{}{"uid": false})
		return
	}

	var uid int64 = 2
	for id := range s.Users {
		uid = id
		break
	}
	s.respond(w, map[string]interface{}{
		"uid":        uid,
		"session_id": "sess-" + s.Cookie,
	})
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.respond(w, true)
}

func (s *Server) handleCallKw(w http.ResponseWriter, r *http.Request) {
	var env rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.respondError(w, 200, "invalid request", "builtins.ValueError")
		return
	}
	var call struct {
		Model  string                 `json:"model"`
		Method string                 `json:"method"`
		Args   []interface{}          `json:"args"`
		Kwargs map[string]interface{} `json:"kwargs"`
	}
	if err := json.Unmarshal(env.Params, &call); err != nil {
		s.respondError(w, 200, "invalid params", "builtins.ValueError")
		return
	}

	s.mu.Lock()
	s.Calls = append(s.Calls, Call{Model: call.Model, Method: call.Method, Args: call.Args, Kwargs: call.Kwargs})
	expired := s.ExpireSession
	s.mu.Unlock()

	if expired {
		s.respondError(w, 100, "Odoo Session Expired", "odoo.http.SessionExpiredException")
		return
	}

	switch call.Model + "." + call.Method {
	case "res.users.read":
		s.readRecords(w, s.userRecords(), call.Args)
	case "product.product.search":
		s.search(w, s.Products, call.Args, call.Kwargs)
	case "product.product.read":
		s.readRecords(w, s.Products, call.Args)
	case "stock.location.search":
		s.search(w, s.Locations, call.Args, call.Kwargs)
	case "stock.location.read":
		s.readRecords(w, s.Locations, call.Args)
	case "stock.quant.search":
		s.search(w, s.quantRecords(), call.Args, call.Kwargs)
	case "stock.quant.read":
		s.readRecords(w, s.quantRecords(), call.Args)
	case "stock.quant.write":
		s.writeQuants(w, call.Args)
	case "stock.quant.create":
		s.createQuant(w, call.Args)
	case "stock.quant.action_apply_inventory":
		s.applyInventory(w, idsArg(call.Args, 0))
	case "stock.inventory.adjustment.name.create":
		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.mu.Unlock()
		s.respond(w, id)
	case "stock.inventory.adjustment.name.action_apply":
		s.applyInventory(w, contextQuantIDs(call.Kwargs))
	default:
		s.respondError(w, 200, fmt.Sprintf("unsupported call %s.%s", call.Model, call.Method), "builtins.AttributeError")
	}
}

func (s *Server) userRecords() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.Users))
	for id, u := range s.Users {
		rec := Record{"id": id}
		for k, v := range u {
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out
}

func (s *Server) quantRecords() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.Quants))
	for _, q := range s.Quants {
		out = append(out, Record{
			"id":                      q.ID,
			"product_id":              []interface{}{q.ProductID, fmt.Sprintf("product-%d", q.ProductID)},
			"location_id":             []interface{}{q.LocationID, fmt.Sprintf("location-%d", q.LocationID)},
			"quantity":                q.Quantity,
			"inventory_quantity":      q.InventoryQuantity,
			"inventory_diff_quantity": q.InventoryDiffQuantity,
			"inventory_quantity_set":  q.InventoryQuantitySet,
		})
	}
	return out
}

// search evaluates a domain against fixture records and returns ids.
func (s *Server) search(w http.ResponseWriter, records []Record, args []interface{}, kwargs map[string]interface{}) {
	domain, _ := argAt(args, 0).([]interface{})
	limit := 0
	if l, ok := kwargs["limit"].(float64); ok {
		limit = int(l)
	}

	var ids []int64
	for _, rec := range records {
		if matchesDomain(rec, domain) {
			ids = append(ids, toID(rec["id"]))
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	if ids == nil {
		ids = []int64{}
	}
	s.respond(w, ids)
}

// readRecords projects the requested fields of the requested ids.
func (s *Server) readRecords(w http.ResponseWriter, records []Record, args []interface{}) {
	ids := idsArg(args, 0)
	fields := stringsArg(args, 1)

	byID := make(map[int64]Record, len(records))
	for _, rec := range records {
		byID[toID(rec["id"])] = rec
	}

	out := []Record{}
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			continue
		}
		proj := Record{"id": id}
		for _, f := range fields {
			if v, ok := rec[f]; ok {
				proj[f] = v
			} else {
				proj[f] = false
			}
		}
		out = append(out, proj)
	}
	s.respond(w, out)
}

func (s *Server) writeQuants(w http.ResponseWriter, args []interface{}) {
	ids := idsArg(args, 0)
	values, _ := argAt(args, 1).(map[string]interface{})

	s.mu.Lock()
	s.QuantWrites = append(s.QuantWrites, values)
	for _, id := range ids {
		q, ok := s.Quants[id]
		if !ok {
			continue
		}
		if v, ok := values["quantity"].(float64); ok {
			q.Quantity = v
		}
		if v, ok := values["inventory_quantity"].(float64); ok {
			q.InventoryQuantity = v
			q.InventoryQuantitySet = true
		}
		if v, ok := values["inventory_quantity_set"].(bool); ok {
			q.InventoryQuantitySet = v
		}
	}
	s.mu.Unlock()
	s.respond(w, true)
}

func (s *Server) createQuant(w http.ResponseWriter, args []interface{}) {
	values, _ := argAt(args, 0).(map[string]interface{})

	s.mu.Lock()
	s.nextID++
	q := &Quant{ID: s.nextID}
	if v, ok := values["product_id"].(float64); ok {
		q.ProductID = int64(v)
	}
	if v, ok := values["location_id"].(float64); ok {
		q.LocationID = int64(v)
	}
	if v, ok := values["quantity"].(float64); ok {
		q.Quantity = v
	}
	if v, ok := values["inventory_quantity"].(float64); ok {
		q.InventoryQuantity = v
		q.InventoryQuantitySet = true
	}
	s.Quants[q.ID] = q
	id := q.ID
	s.mu.Unlock()
	s.respond(w, id)
}

// applyInventory commits counted quantities, or answers the conflict
// envelope while rounds remain.
func (s *Server) applyInventory(w http.ResponseWriter, ids []int64) {
	s.mu.Lock()
	if s.ConflictRounds > 0 {
		s.ConflictRounds--
		fix := s.ConflictIDs
		s.mu.Unlock()
		s.respond(w, map[string]interface{}{
			"res_model": "stock.inventory.conflict",
			"type":      "ir.actions.act_window",
			"context": map[string]interface{}{
				"default_quant_to_fix_ids": fix,
			},
		})
		return
	}
	for _, id := range ids {
		if q, ok := s.Quants[id]; ok {
			q.Quantity = q.InventoryQuantity
			q.InventoryDiffQuantity = 0
			q.InventoryQuantitySet = false
		}
	}
	s.mu.Unlock()
	s.respond(w, true)
}

// handleXMLRPCDB serves the pre-auth database discovery method.
func (s *Server) handleXMLRPCDB(w http.ResponseWriter, r *http.Request) {
	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\"?><methodResponse><params><param><value><array><data>")
	for _, db := range s.Databases {
		sb.WriteString("<value><string>" + db + "</string></value>")
	}
	sb.WriteString("</data></array></value></param></params></methodResponse>")
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(sb.String()))
}

// --- domain and argument helpers ---

func argAt(args []interface{}, i int) interface{} {
	if i >= len(args) {
		return nil
	}
	return args[i]
}

func idsArg(args []interface{}, i int) []int64 {
	raw, _ := argAt(args, i).([]interface{})
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, toID(v))
	}
	return ids
}

func stringsArg(args []interface{}, i int) []string {
	raw, _ := argAt(args, i).([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contextQuantIDs(kwargs map[string]interface{}) []int64 {
	ctx, _ := kwargs["context"].(map[string]interface{})
	raw, _ := ctx["default_quant_ids"].([]interface{})
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, toID(v))
	}
	return ids
}

func toID(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case []interface{}:
		if len(n) > 0 {
			return toID(n[0])
		}
	}
	return 0
}

// matchesDomain evaluates the conjunctive subset of Odoo domains the
// client emits: [field, "=", value] and [field, "ilike", value] triples.
func matchesDomain(rec Record, domain []interface{}) bool {
	for _, raw := range domain {
		cond, ok := raw.([]interface{})
		if !ok || len(cond) != 3 {
			continue
		}
		field, _ := cond[0].(string)
		op, _ := cond[1].(string)
		want := cond[2]
		got := rec[field]

		switch op {
		case "=":
			if !valueEqual(got, want) {
				return false
			}
		case "ilike":
			gs, _ := got.(string)
			ws, _ := want.(string)
			if !strings.Contains(strings.ToLower(gs), strings.ToLower(ws)) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func valueEqual(got, want interface{}) bool {
	if gid, wid := toID(got), toID(want); gid != 0 && gid == wid {
		return true
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}
