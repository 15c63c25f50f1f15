// Package mcp provides a Model Context Protocol server for the listing
// assistant.
//
// It exposes the inference engine (process an utterance against a form) and
// the session persistence layer (context rendering, session listing, the
// interaction log) as MCP tools over stdio transport, plus a recent-sessions
// resource.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JDelott/auctionfans-sub000/internal/assist"
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/session"
	"github.com/JDelott/auctionfans-sub000/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *assist.Engine
	Store   store.Store // optional; session_id arguments need it
	Version string      // version string for MCP server info
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and a process
// call must persist its updated context before the next call loads it.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all listing tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Listing Assistant",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerProcessTool(s, cfg.Engine, cfg.Store)
	registerItemTool(s, cfg.Store)
	registerContextTool(s, cfg.Store)
	registerSessionsTool(s, cfg.Store)
	registerHistoryTool(s, cfg.Store)

	registerRecentSessionsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerProcessTool(s *server.MCPServer, engine *assist.Engine, st store.Store) {
	tool := mcp.NewTool("listing_process",
		mcp.WithDescription("Process a seller utterance against the current listing form. Returns validated field updates and the updated session context. When session_id is given and persistence is configured, the context is loaded and saved server-side."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("utterance",
			mcp.Required(),
			mcp.Description("What the seller said"),
		),
		mcp.WithString("form",
			mcp.Description("Current form state as a JSON object of field name to value"),
		),
		mcp.WithString("categories",
			mcp.Description(`Available categories as a JSON array of {"id", "name"} objects`),
		),
		mcp.WithString("session_id",
			mcp.Description("Persisted session to load context from and save context to"),
		),
		mcp.WithString("item_id",
			mcp.Description("Item to ground extraction against"),
		),
		mcp.WithString("target_field",
			mcp.Description("Force extraction of this single field, skipping relevance detection"),
		),
		mcp.WithString("initial_description",
			mcp.Description("Seller's free-form description, used when starting a new session"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		utterance, err := req.RequireString("utterance")
		if err != nil {
			return mcp.NewToolResultError("utterance is required"), nil
		}

		request := assist.Request{
			Utterance: utterance,
			Form:      form.Snapshot{},
		}

		if raw, err := req.RequireString("form"); err == nil && raw != "" {
			if err := json.Unmarshal([]byte(raw), &request.Form); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid form JSON: %v", err)), nil
			}
		}
		if raw, err := req.RequireString("categories"); err == nil && raw != "" {
			if err := json.Unmarshal([]byte(raw), &request.Categories); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid categories JSON: %v", err)), nil
			}
		}
		if v, err := req.RequireString("item_id"); err == nil {
			request.ItemID = v
		}
		if v, err := req.RequireString("target_field"); err == nil {
			request.TargetField = v
		}
		if v, err := req.RequireString("initial_description"); err == nil {
			request.InitialDescription = v
		}

		sessionID := ""
		if v, err := req.RequireString("session_id"); err == nil && v != "" {
			sessionID = v
			if st == nil {
				return mcp.NewToolResultError("session_id given but persistence is not configured"), nil
			}
			saved, err := st.GetSession(ctx, sessionID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
			}
			if saved != nil {
				request.Context = saved.Context
			}
		}

		res, err := engine.Process(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("process error: %v", err)), nil
		}

		if sessionID != "" {
			if err := persistResult(ctx, st, sessionID, request, res); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("saving session: %v", err)), nil
			}
		}

		data, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// persistResult saves the updated context under the session id and appends
// this call's interaction, when one was recorded, to the event log.
func persistResult(ctx context.Context, st store.Store, sessionID string, req assist.Request, res *assist.Result) error {
	if err := st.SaveSession(ctx, &store.Session{
		ID:                 sessionID,
		InitialDescription: req.InitialDescription,
		Context:            res.Context,
	}); err != nil {
		return err
	}

	sess, err := session.Deserialize(res.Context)
	if err != nil || len(sess.History) == 0 {
		return nil
	}
	last := sess.History[len(sess.History)-1]
	if last.Input != req.Utterance {
		// This call recorded nothing; the tail belongs to a prior call.
		return nil
	}

	changes, _ := json.Marshal(last.FieldChanges)
	_, err = st.LogInteraction(ctx, &store.InteractionEvent{
		SessionID:     sessionID,
		InteractionID: last.ID,
		Tag:           string(last.Tag),
		Input:         last.Input,
		FieldChanges:  string(changes),
	})
	return err
}

func registerItemTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("listing_item",
		mcp.WithDescription("Attach an item context (image analysis plus seller description) to a persisted session, creating the session if needed. Returns the item's inferred attributes."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Persisted session id"),
		),
		mcp.WithString("item_id",
			mcp.Required(),
			mcp.Description("Item id, unique within the session"),
		),
		mcp.WithString("image_analysis",
			mcp.Description("Vision analysis text of the item's photos"),
		),
		mcp.WithString("description",
			mcp.Description("Seller's description of the item"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return mcp.NewToolResultError("persistence is not configured"), nil
		}

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		itemID, err := req.RequireString("item_id")
		if err != nil {
			return mcp.NewToolResultError("item_id is required"), nil
		}
		imageAnalysis := ""
		if v, err := req.RequireString("image_analysis"); err == nil {
			imageAnalysis = v
		}
		description := ""
		if v, err := req.RequireString("description"); err == nil {
			description = v
		}

		var sess *session.Context
		saved, err := st.GetSession(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
		}
		if saved != nil {
			sess, err = session.Deserialize(saved.Context)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("corrupt session context: %v", err)), nil
			}
		} else {
			sess = session.New(description)
		}

		item := sess.AddItem(itemID, imageAnalysis, description)
		sess.RecordInteraction(fmt.Sprintf("uploaded item %s", itemID), "", nil, session.TagUpload)

		blob, err := sess.Serialize()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("serializing session: %v", err)), nil
		}
		if err := st.SaveSession(ctx, &store.Session{
			ID:                 sessionID,
			InitialDescription: sess.InitialDescription,
			Context:            blob,
		}); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saving session: %v", err)), nil
		}

		payload := map[string]interface{}{
			"item_id":    item.ItemID,
			"attributes": item.Attributes,
			"confidence": item.Confidence,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerContextTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("listing_context",
		mcp.WithDescription("Render the grounding summary of a persisted listing session, optionally focused on one item."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Persisted session id"),
		),
		mcp.WithString("item_id",
			mcp.Description("Item to include detail for"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return mcp.NewToolResultError("persistence is not configured"), nil
		}

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		itemID := ""
		if v, err := req.RequireString("item_id"); err == nil {
			itemID = v
		}

		saved, err := st.GetSession(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
		}
		if saved == nil {
			return mcp.NewToolResultError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		sess, err := session.Deserialize(saved.Context)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("corrupt session context: %v", err)), nil
		}

		return mcp.NewToolResultText(sess.ContextForAI(itemID)), nil
	})
}

func registerSessionsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("listing_sessions",
		mcp.WithDescription("List persisted listing sessions, most recently updated first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of sessions (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return mcp.NewToolResultError("persistence is not configured"), nil
		}

		limit := 20
		if v, err := req.RequireFloat("limit"); err == nil && int(v) > 0 {
			limit = int(v)
			if limit > 100 {
				limit = 100
			}
		}

		sessions, err := st.ListSessions(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing sessions: %v", err)), nil
		}

		type sessionInfo struct {
			ID                 string `json:"id"`
			InitialDescription string `json:"initial_description,omitempty"`
			CreatedAt          string `json:"created_at"`
			UpdatedAt          string `json:"updated_at"`
		}
		out := make([]sessionInfo, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, sessionInfo{
				ID:                 sess.ID,
				InitialDescription: sess.InitialDescription,
				CreatedAt:          sess.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
				UpdatedAt:          sess.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
			})
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerHistoryTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("listing_history",
		mcp.WithDescription("Show the recorded interaction log of a persisted session, oldest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Persisted session id"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events (default: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return mcp.NewToolResultError("persistence is not configured"), nil
		}

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		limit := 50
		if v, err := req.RequireFloat("limit"); err == nil && int(v) > 0 {
			limit = int(v)
		}

		events, err := st.ListInteractions(ctx, sessionID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing interactions: %v", err)), nil
		}

		data, _ := json.MarshalIndent(events, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerRecentSessionsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"listing://sessions/recent",
		"Recent Listing Sessions",
		mcp.WithResourceDescription("The most recently updated listing sessions with their initial descriptions."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return nil, fmt.Errorf("recent sessions resource requires persistence")
		}

		sessions, err := st.ListSessions(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("querying recent sessions: %w", err)
		}

		type sessionInfo struct {
			ID                 string `json:"id"`
			InitialDescription string `json:"initial_description,omitempty"`
			UpdatedAt          string `json:"updated_at"`
		}
		recent := make([]sessionInfo, 0, len(sessions))
		for _, sess := range sessions {
			recent = append(recent, sessionInfo{
				ID:                 sess.ID,
				InitialDescription: sess.InitialDescription,
				UpdatedAt:          sess.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
			})
		}

		payload := map[string]interface{}{
			"sessions": recent,
			"count":    len(recent),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
