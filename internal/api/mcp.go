package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/dashboard"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Dashboard Dashboard
	Version   string
}

// NewMCPServer creates an MCP server exposing the editing sessions.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"folio",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("folio edits portfolio content. Pull a kind, change fields, review changes, then save."),
		server.WithRecovery(),
	)

	kindArg := mcp.WithString("kind", mcp.Description("Resource kind: "+strings.Join(resource.Names(), ", ")), mcp.Required())
	idArg := mcp.WithString("id", mcp.Description("Entity id; omit for singletons"))

	s.AddTool(
		mcp.NewTool("pull",
			mcp.WithDescription("Fetch the latest content of a kind from the backend, replacing local sessions."),
			kindArg,
		),
		mcpPull(deps),
	)

	s.AddTool(
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List local editing sessions of a kind with their changed fields."),
			kindArg,
		),
		mcpListSessions(deps),
	)

	s.AddTool(
		mcp.NewTool("show_changes",
			mcp.WithDescription("Show the fields that differ from the last saved state."),
			kindArg,
			idArg,
		),
		mcpShowChanges(deps),
	)

	s.AddTool(
		mcp.NewTool("set_field",
			mcp.WithDescription("Replace one field value. Lists are given as JSON arrays, images as URLs."),
			kindArg,
			idArg,
			mcp.WithString("field", mcp.Description("Field name"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpSetField(deps),
	)

	s.AddTool(
		mcp.NewTool("save_session",
			mcp.WithDescription("Send the changed fields of a session to the backend."),
			kindArg,
			idArg,
		),
		mcpSaveSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"folio://kinds",
			"Resource Kinds",
			mcp.WithResourceDescription("Editable kinds and their fields"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceKinds(),
	)

	return s
}

func mcpKind(req mcp.CallToolRequest) (*resource.Kind, *mcp.CallToolResult) {
	name, err := req.RequireString("kind")
	if err != nil {
		return nil, mcpError("kind is required")
	}
	kind, err := resource.Lookup(name)
	if err != nil {
		return nil, mcpError(err.Error())
	}
	return kind, nil
}

func mcpPull(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, res := mcpKind(req)
		if res != nil {
			return res, nil
		}
		entities, err := deps.Dashboard.Pull(ctx, kind)
		if err != nil {
			return mcpError(describe("pull failed", err)), nil
		}
		return mcpText(fmt.Sprintf("Pulled %d %s", len(entities), kind.Name)), nil
	}
}

func mcpListSessions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, res := mcpKind(req)
		if res != nil {
			return res, nil
		}
		entities, err := deps.Dashboard.List(kind)
		if err != nil {
			return mcpError(describe("listing sessions failed", err)), nil
		}
		views := make([]EntityView, len(entities))
		for i, e := range entities {
			views[i] = viewOf(e)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpShowChanges(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, res := mcpKind(req)
		if res != nil {
			return res, nil
		}
		delta, err := deps.Dashboard.Changes(kind, req.GetString("id", ""))
		if err != nil {
			return mcpError(describe("reading changes failed", err)), nil
		}
		if len(delta) == 0 {
			return mcpText("No changes"), nil
		}
		b, err := json.Marshal(delta)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal changes: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetField(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, res := mcpKind(req)
		if res != nil {
			return res, nil
		}
		field, err := req.RequireString("field")
		if err != nil {
			return mcpError("field is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		v, err := kind.ParseValue(field, value)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := tracker.EnsureResolved(map[string]any{field: v}); err != nil {
			return mcpError("local files cannot be attached over MCP"), nil
		}

		e, err := deps.Dashboard.Edit(kind, req.GetString("id", ""), func(rec tracker.Record) error {
			rec[field] = v
			return nil
		})
		if err != nil {
			return mcpError(describe("setting field failed", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s on %s %s (%d unsaved)", field, kind.Name, e.ID, len(e.Delta()))), nil
	}
}

func mcpSaveSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, res := mcpKind(req)
		if res != nil {
			return res, nil
		}
		e, err := deps.Dashboard.Save(ctx, kind, req.GetString("id", ""))
		if errors.Is(err, dashboard.ErrNoChanges) {
			return mcpText("No changes to save"), nil
		}
		if err != nil {
			return mcpError(describe("save failed", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved %s %s", kind.Name, e.ID)), nil
	}
}

func mcpResourceKinds() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type fieldInfo struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		}
		type kindInfo struct {
			Name      string      `json:"name"`
			Singleton bool        `json:"singleton"`
			Fields    []fieldInfo `json:"fields"`
		}

		var out []kindInfo
		for _, name := range resource.Names() {
			k, _ := resource.Lookup(name)
			info := kindInfo{Name: k.Name, Singleton: k.Singleton}
			for _, f := range k.Fields {
				info.Fields = append(info.Fields, fieldInfo{Name: f.Name, Kind: f.Kind.String()})
			}
			out = append(out, info)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal kinds: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// describe prefers the backend's own message when there is one.
func describe(prefix string, err error) string {
	var be *backend.BackendError
	if errors.As(err, &be) {
		return fmt.Sprintf("%s: %s", prefix, backend.Message(err, be.Error()))
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
