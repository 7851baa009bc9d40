package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the shared contract stdio and SSE transports implement
// (§4.7). Call performs a request/response JSON-RPC round trip; Notify sends
// a fire-and-forget message (no id, no reply expected).
type Transport interface {
	Start(ctx context.Context) error
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params interface{}) error
	Stop(ctx context.Context) error
	IsRunning() bool
}
