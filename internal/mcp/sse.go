package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// sseRequestTimeout bounds a single HTTP round trip to a remote MCP server.
const sseRequestTimeout = 30 * time.Second

// sseCandidatePaths is probed in order to discover which endpoint a remote
// MCP server answers JSON-RPC on, since the spec allows a bare base URL.
var sseCandidatePaths = []string{"/mcp", "/sse", "/"}

// SSETransport speaks JSON-RPC over plain HTTP POST to a remote MCP server
// (§4.7). Despite the name it does not require a persistent event stream:
// servers that answer synchronous POSTs at a discovered endpoint are
// sufficient for the request/response contract this package needs.
type SSETransport struct {
	baseURL  string
	endpoint string
	client   *http.Client
	nextID   int64
	running  atomic.Bool
}

func NewSSETransport(rawURL string) (*SSETransport, error) {
	if err := validateSSEURL(rawURL); err != nil {
		return nil, err
	}
	return &SSETransport{
		baseURL: strings.TrimRight(rawURL, "/"),
		client:  &http.Client{Timeout: sseRequestTimeout},
	}, nil
}

// Start discovers the working endpoint and performs the initialize
// handshake.
func (t *SSETransport) Start(ctx context.Context) error {
	endpoint, err := t.discoverEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("discover endpoint: %w", err)
	}
	t.endpoint = endpoint
	t.running.Store(true)

	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      clientInfo{Name: "nanobot", Version: "0.1.0"},
	}
	if _, err := t.Call(ctx, "initialize", params); err != nil {
		t.running.Store(false)
		return fmt.Errorf("initialize: %w", err)
	}
	_ = t.Notify(ctx, "notifications/initialized", nil)
	return nil
}

// discoverEndpoint probes each candidate path with a minimal ping call
// and returns the first one that answers with a well-formed JSON-RPC body.
func (t *SSETransport) discoverEndpoint(ctx context.Context) (string, error) {
	probe := request{JSONRPC: "2.0", ID: idPtr(0), Method: "ping", Params: nil}
	body, _ := json.Marshal(probe)

	var lastErr error
	for _, path := range sseCandidatePaths {
		url := t.baseURL + path
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && looksLikeJSONRPC(respBody) {
			return url, nil
		}
		lastErr = fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return "", lastErr
}

func looksLikeJSONRPC(body []byte) bool {
	var resp response
	return json.Unmarshal(body, &resp) == nil && resp.JSONRPC != ""
}

func idPtr(v int64) *int64 { return &v }

// Call posts one JSON-RPC request and decodes its response.
func (t *SSETransport) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	req := request{JSONRPC: "2.0", ID: &id, Method: method, Params: paramsJSON}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sseRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mcp sse call %q: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mcp sse call %q: status %d", method, resp.StatusCode)
	}

	var rpcResp response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("mcp sse call %q: decode: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Notify posts a request without an id and discards the response.
func (t *SSETransport) Notify(ctx context.Context, method string, params interface{}) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}
	req := request{JSONRPC: "2.0", Method: method, Params: paramsJSON}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Stop marks the transport as no longer running. HTTP has no persistent
// connection to tear down.
func (t *SSETransport) Stop(ctx context.Context) error {
	t.running.Store(false)
	return nil
}

func (t *SSETransport) IsRunning() bool { return t.running.Load() }
