package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JDelott/auctionfans-sub000/internal/assist"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
	"github.com/JDelott/auctionfans-sub000/internal/store"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// cannedProvider answers by prompt substring, like a completion service
// wired to a script.
type cannedProvider struct {
	responses map[string]string
	fallback  string
}

func (p *cannedProvider) Complete(_ context.Context, prompt string, _ llm.CompletionOpts) (string, error) {
	for key, resp := range p.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return p.fallback, nil
}

func (p *cannedProvider) Name() string { return "canned" }

func setupServer(t *testing.T, provider llm.Provider) (*server.MCPServer, store.Store) {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine := assist.NewEngine(provider, assist.DefaultOptions())
	return NewServer(ServerConfig{Engine: engine, Store: st, Version: "test"}), st
}

// callTool invokes an MCP tool through the server's JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestNewServer(t *testing.T) {
	srv, _ := setupServer(t, &cannedProvider{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestProcessToolPersistsSession(t *testing.T) {
	srv, _ := setupServer(t, &cannedProvider{responses: map[string]string{
		"one of: new, like-new": "mint",
	}})

	result := callTool(t, srv, "listing_process", map[string]interface{}{
		"utterance":  "the condition is mint",
		"form":       `{}`,
		"session_id": "sess-1",
	})
	if result.IsError {
		t.Fatalf("tool error: %s", getTextContent(t, result))
	}

	var res assist.Result
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &res); err != nil {
		t.Fatalf("parsing process result: %v", err)
	}
	if res.Updates["condition"] != "new" {
		t.Fatalf("condition = %q, want new", res.Updates["condition"])
	}

	// The persisted context grounds the next call.
	ctxResult := callTool(t, srv, "listing_context", map[string]interface{}{
		"session_id": "sess-1",
	})
	if ctxResult.IsError {
		t.Fatalf("context error: %s", getTextContent(t, ctxResult))
	}
	if text := getTextContent(t, ctxResult); !strings.Contains(text, "the condition is mint") {
		t.Fatalf("context missing interaction:\n%s", text)
	}

	histResult := callTool(t, srv, "listing_history", map[string]interface{}{
		"session_id": "sess-1",
	})
	if histResult.IsError {
		t.Fatalf("history error: %s", getTextContent(t, histResult))
	}
	var events []store.InteractionEvent
	if err := json.Unmarshal([]byte(getTextContent(t, histResult)), &events); err != nil {
		t.Fatalf("parsing history: %v", err)
	}
	if len(events) != 1 || events[0].Tag != "field_update" {
		t.Fatalf("events = %+v", events)
	}
}

func TestProcessToolRejectsBadForm(t *testing.T) {
	srv, _ := setupServer(t, &cannedProvider{})

	result := callTool(t, srv, "listing_process", map[string]interface{}{
		"utterance": "anything",
		"form":      `{not json`,
	})
	if !result.IsError {
		t.Fatal("expected an error for invalid form JSON")
	}
}

func TestSessionsToolListsPersisted(t *testing.T) {
	srv, st := setupServer(t, &cannedProvider{responses: map[string]string{
		"one of: new, like-new": "mint",
	}})

	callTool(t, srv, "listing_process", map[string]interface{}{
		"utterance":           "the condition is mint",
		"session_id":          "sess-1",
		"initial_description": "vintage omega watch",
	})

	result := callTool(t, srv, "listing_sessions", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("sessions error: %s", getTextContent(t, result))
	}
	var sessions []struct {
		ID                 string `json:"id"`
		InitialDescription string `json:"initial_description"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &sessions); err != nil {
		t.Fatalf("parsing sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sess-1" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].InitialDescription != "vintage omega watch" {
		t.Fatalf("initial description = %q", sessions[0].InitialDescription)
	}

	saved, err := st.GetSession(context.Background(), "sess-1")
	if err != nil || saved == nil {
		t.Fatalf("GetSession: %v, %v", saved, err)
	}
}

func TestItemToolInfersAttributes(t *testing.T) {
	srv, _ := setupServer(t, &cannedProvider{})

	result := callTool(t, srv, "listing_item", map[string]interface{}{
		"session_id":     "sess-1",
		"item_id":        "item-1",
		"image_analysis": "vintage omega watch with leather strap",
		"description":    "inherited from my grandfather, signed on the back",
	})
	if result.IsError {
		t.Fatalf("item error: %s", getTextContent(t, result))
	}

	var payload struct {
		ItemID     string                 `json:"item_id"`
		Attributes map[string]interface{} `json:"attributes"`
		Confidence map[string]float64     `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing item payload: %v", err)
	}
	if payload.ItemID != "item-1" {
		t.Fatalf("item_id = %q", payload.ItemID)
	}
	if payload.Attributes["era"] != "vintage" || payload.Attributes["brand"] != "omega" {
		t.Fatalf("attributes = %+v", payload.Attributes)
	}

	// The item now grounds context rendering.
	ctxResult := callTool(t, srv, "listing_context", map[string]interface{}{
		"session_id": "sess-1",
		"item_id":    "item-1",
	})
	if ctxResult.IsError {
		t.Fatalf("context error: %s", getTextContent(t, ctxResult))
	}
	if text := getTextContent(t, ctxResult); !strings.Contains(text, "vintage omega watch") {
		t.Fatalf("context missing item detail:\n%s", text)
	}
}

func TestContextToolMissingSession(t *testing.T) {
	srv, _ := setupServer(t, &cannedProvider{})

	result := callTool(t, srv, "listing_context", map[string]interface{}{
		"session_id": "nope",
	})
	if !result.IsError {
		t.Fatal("expected an error for a missing session")
	}
}
