// Package suiclient is a thin JSON-RPC client for the chain's full node API,
// shaped the way go-ethereum's ethclient.Client wraps an *rpc.Client: one
// struct holding a raw caller, exposing typed, context-aware methods for the
// handful of calls the sponsor service, gas meter and coin manager need (object
// lookup, reference gas price, dry-run, execute, paginated coin listing).
package suiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a JSON-RPC 2.0 client bound to one chain full node endpoint.
type Client struct {
	endpoint string
	httpc    *http.Client
	nextID   uint64
}

// Dial constructs a Client against endpoint (spec §6 SUI_RPC).
func Dial(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// CallContext invokes method with params and decodes the result into out.
// A non-nil rpc-level error is returned verbatim so callers can classify it
// as a ChainError (spec §7).
func (c *Client) CallContext(ctx context.Context, out any, method string, params ...any) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("suiclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("suiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("suiclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("suiclient: %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("suiclient: %s: decode result: %w", method, err)
	}
	return nil
}
