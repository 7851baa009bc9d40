package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

// echoServerScript is a minimal JSON-RPC 2.0 stdio server: it answers
// "initialize" with an empty result and any other method by echoing its
// params back as the result, letting tests exercise the real
// request/response multiplexing path end to end without a network.
const echoServerScript = `
import sys, json

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    try:
        msg = json.loads(line)
    except Exception:
        continue
    if "id" not in msg:
        continue  # notification
    method = msg.get("method")
    if method == "initialize":
        result = {"protocolVersion": "2024-11-05"}
    else:
        result = msg.get("params") or {}
    resp = {"jsonrpc": "2.0", "id": msg["id"], "result": result}
    sys.stdout.write(json.dumps(resp) + "\n")
    sys.stdout.flush()
`

func newEchoTransport(t *testing.T) *StdioTransport {
	t.Helper()
	transport, err := NewStdioTransport("python3", []string{"-c", echoServerScript}, nil)
	if err != nil {
		t.Fatalf("NewStdioTransport: %v", err)
	}
	return transport
}

func TestStdioTransportInitializeAndRequestResponseRoundTrip(t *testing.T) {
	transport := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer transport.Stop(ctx)

	if !transport.IsRunning() {
		t.Fatal("expected transport to report running after a successful Start")
	}

	raw, err := transport.Call(ctx, "tools/list", map[string]interface{}{"hello": "world"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got["hello"] != "world" {
		t.Fatalf("expected echoed params back as result, got %+v", got)
	}
}

func TestStdioTransportStopMarksNotRunning(t *testing.T) {
	transport := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := transport.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if transport.IsRunning() {
		t.Fatal("expected IsRunning to be false after Stop")
	}
}

func TestStdioTransportConcurrentRequestsGetMatchingResponses(t *testing.T) {
	transport := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer transport.Stop(ctx)

	type out struct {
		idx int
		val string
		err error
	}
	results := make(chan out, 5)
	for i := 0; i < 5; i++ {
		go func(i int) {
			raw, err := transport.Call(ctx, "echo", map[string]interface{}{"n": i})
			if err != nil {
				results <- out{i, "", err}
				return
			}
			var got map[string]interface{}
			_ = json.Unmarshal(raw, &got)
			n, _ := got["n"].(float64)
			if int(n) != i {
				results <- out{i, "", fmt.Errorf("got response for n=%v", got["n"])}
				return
			}
			results <- out{i, "", nil}
		}(i)
	}
	for i := 0; i < 5; i++ {
		r := <-results
		if r.err != nil {
			t.Errorf("call %d failed: %v", r.idx, r.err)
		}
	}
}
