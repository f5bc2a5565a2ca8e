package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vegardlu/homelab-core/internal/logging"
	"github.com/vegardlu/homelab-core/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	registry := tools.NewRegistry()
	registry.Register(tools.Tool{
		Name:        "get_state",
		Description: "Get the state of an entity",
		InputSchema: tools.JSONSchema{
			Type: "object",
			Properties: map[string]tools.JSONSchema{
				"entity_id": {Type: "string"},
			},
			Required: []string{"entity_id"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		id, ok := tools.StringArg(args, "entity_id")
		if !ok {
			return "", errors.New("entity_id is required")
		}
		return "state of " + id + ": on", nil
	})

	return NewServer(registry, 0, logging.New(logging.LevelError))
}

// rpc posts a raw JSON-RPC body and returns the recorder.
func rpc(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleMCP(rec, req)
	return rec
}

// decodeResponse parses the recorder body into a generic envelope.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func errorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", resp)
	}
	return errObj["code"].(float64)
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)

	rec := rpc(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client","version":"0.1"}}}`)
	resp := decodeResponse(t, rec)

	if resp["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v", resp["jsonrpc"])
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v, want %s", result["protocolVersion"], ProtocolVersion)
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != ServerName || info["version"] != ServerVersion {
		t.Errorf("serverInfo = %v", info)
	}
	caps := result["capabilities"].(map[string]any)
	if _, ok := caps["tools"]; !ok {
		t.Errorf("capabilities missing tools: %v", caps)
	}
}

func TestInitializedNotificationGetsNoResponse(t *testing.T) {
	s := newTestServer(t)

	rec := rpc(t, s, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	if rec.Body.Len() != 0 {
		t.Errorf("notification got a response body: %s", rec.Body.String())
	}
	if !s.IsInitialized() {
		t.Error("server should be marked initialized")
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":5,"method":"ping"}`))

	if _, ok := resp["result"]; !ok {
		t.Errorf("ping missing result: %v", resp)
	}
	if resp["error"] != nil {
		t.Errorf("ping returned error: %v", resp["error"])
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	result := resp["result"].(map[string]any)
	list := result["tools"].([]any)
	if len(list) != 1 {
		t.Fatalf("tools count = %d, want 1", len(list))
	}
	tool := list[0].(map[string]any)
	if tool["name"] != "get_state" {
		t.Errorf("tool name = %v", tool["name"])
	}
	schema := tool["inputSchema"].(map[string]any)
	if schema["type"] != "object" {
		t.Errorf("inputSchema type = %v", schema["type"])
	}
}

func TestToolsCall(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_state","arguments":{"entity_id":"light.kitchen"}}}`))

	result := resp["result"].(map[string]any)
	content := result["content"].([]any)
	block := content[0].(map[string]any)
	if block["type"] != "text" {
		t.Errorf("content type = %v", block["type"])
	}
	if block["text"] != "state of light.kitchen: on" {
		t.Errorf("content text = %v", block["text"])
	}
	if result["isError"] != nil {
		t.Errorf("isError should be omitted on success: %v", result["isError"])
	}
}

func TestToolsCallHandlerFailureFlaggedAsError(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"get_state","arguments":{}}}`))

	result := resp["result"].(map[string]any)
	if result["isError"] != true {
		t.Errorf("isError = %v, want true", result["isError"])
	}
	block := result["content"].([]any)[0].(map[string]any)
	if !strings.HasPrefix(block["text"].(string), "Error executing tool get_state:") {
		t.Errorf("content text = %v", block["text"])
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope"}}`))

	if got := errorCode(t, resp); got != float64(ToolNotFound) {
		t.Errorf("error code = %v, want %d", got, ToolNotFound)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`))

	if got := errorCode(t, resp); got != float64(MethodNotFound) {
		t.Errorf("error code = %v, want %d", got, MethodNotFound)
	}
}

func TestInvalidJSON(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{not json`))

	if got := errorCode(t, resp); got != float64(ParseError) {
		t.Errorf("error code = %v, want %d", got, ParseError)
	}
}

func TestWrongJSONRPCVersion(t *testing.T) {
	s := newTestServer(t)

	resp := decodeResponse(t, rpc(t, s, `{"jsonrpc":"1.0","id":8,"method":"ping"}`))

	if got := errorCode(t, resp); got != float64(InvalidRequest) {
		t.Errorf("error code = %v, want %d", got, InvalidRequest)
	}
}

func TestGetMethodRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleMCP(rec, req)

	resp := decodeResponse(t, rec)
	if got := errorCode(t, resp); got != float64(InvalidRequest) {
		t.Errorf("error code = %v, want %d", got, InvalidRequest)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}
