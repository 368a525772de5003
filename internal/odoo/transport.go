package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/storage"
)

// requestTimeout is the hard per-call deadline. There is no aggregate
// deadline across multi-call domain operations.
const requestTimeout = 10 * time.Second

// Distinguished error classes. Domain and application errors are carried
// as *RPCError instead.
var (
	// ErrNetwork marks transport-level failures: unreachable host, DNS,
	// timeout. The response was never decodable as an application reply.
	ErrNetwork = errors.New("network error: unable to reach Odoo server")

	// ErrSessionExpired is raised after the server rejects the session.
	// Local session storage has already been cleared when callers see it.
	ErrSessionExpired = errors.New("odoo session expired")
)

// RPCError is a well-formed JSON-RPC error envelope from Odoo.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Debug   string `json:"debug"`
	} `json:"data"`
}

func (e *RPCError) Error() string {
	if e.Data.Message != "" && e.Data.Message != e.Message {
		return fmt.Sprintf("odoo: %s: %s", e.Message, e.Data.Message)
	}
	return fmt.Sprintf("odoo: %s", e.Message)
}

// isSessionExpired pattern-matches the envelope for Odoo's session-expiry
// signal, which arrives as a generic error rather than an HTTP status.
func (e *RPCError) isSessionExpired() bool {
	for _, s := range []string{e.Message, e.Data.Name, e.Data.Message} {
		if strings.Contains(strings.ToLower(s), "session expired") {
			return true
		}
	}
	return e.Data.Name == "odoo.http.SessionExpiredException"
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Transport issues JSON-RPC 2.0 calls against one Odoo base URL. Session
// continuity is cookie-based: the stored cookie rides on every request and
// is refreshed from every Set-Cookie response header, because Odoo ties
// method dispatch to a server-side session.
type Transport struct {
	store  *storage.Store
	client *http.Client

	mu      sync.RWMutex
	baseURL string

	nextID atomic.Int64
}

// NewTransport creates a transport backed by the given session store.
func NewTransport(store *storage.Store) *Transport {
	t := &Transport{
		store:  store,
		client: &http.Client{Timeout: requestTimeout},
	}
	// Time-seeded so ids stay unique across restarts.
	t.nextID.Store(time.Now().UnixMilli())
	return t
}

// SetBaseURL re-arms the transport for a server. The URL must be an
// absolute HTTP(S) base with no trailing path.
func (t *Transport) SetBaseURL(url string) {
	t.mu.Lock()
	t.baseURL = strings.TrimRight(url, "/")
	t.mu.Unlock()
}

// BaseURL returns the currently configured server base.
func (t *Transport) BaseURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseURL
}

// Call POSTs a JSON-RPC 2.0 envelope to baseURL+endpoint and returns the
// raw result. Error classification follows the taxonomy above.
func (t *Transport) Call(ctx context.Context, endpoint string, params interface{}) (json.RawMessage, error) {
	base := t.BaseURL()
	if base == "" {
		return nil, errors.New("odoo connection not configured")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      t.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie, ok := t.store.SessionCookie(); ok {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	// Cookies rotate per-request; persist the latest one.
	if cookie := sessionCookieFrom(resp); cookie != "" {
		t.store.SetSessionCookie(cookie)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrNetwork, err)
	}

	if decoded.Error != nil {
		if decoded.Error.isSessionExpired() {
			t.store.ClearSession()
			return nil, ErrSessionExpired
		}
		return nil, decoded.Error
	}

	return decoded.Result, nil
}

// callKwParams is the generic dispatch payload of /web/dataset/call_kw.
type callKwParams struct {
	Model  models.Model           `json:"model"`
	Method string                 `json:"method"`
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// CallKw dispatches a model method through /web/dataset/call_kw and
// decodes the result into out (skipped when out is nil).
func (t *Transport) CallKw(ctx context.Context, model models.Model, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	result, err := t.Call(ctx, "/web/dataset/call_kw", callKwParams{
		Model:  model,
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s.%s result: %w", model, method, err)
	}
	return nil
}

// sessionCookieFrom extracts the session cookie pair from a response,
// dropping the attributes (Path, HttpOnly, ...) so it can be echoed back
// verbatim in a Cookie header.
func sessionCookieFrom(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c.Name + "=" + c.Value
		}
	}
	// Fall back to the first cookie pair if Odoo is fronted by a proxy
	// that renames the session cookie.
	if raw := resp.Header.Get("Set-Cookie"); raw != "" {
		if pair, _, _ := strings.Cut(raw, ";"); pair != "" {
			return strings.TrimSpace(pair)
		}
	}
	return ""
}
