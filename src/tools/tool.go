package tools

import (
	"context"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
)

// ToolInputSchema mirrors the JSON schema a server publishes for a tool's input.
type ToolInputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

// Tool holds the metadata for a single tool discovered on a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// FromMCP converts a tool definition returned by tools/list.
func FromMCP(t mcpapi.Tool) Tool {
	return Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: ToolInputSchema{
			Type:       t.InputSchema.Type,
			Properties: t.InputSchema.Properties,
			Required:   t.InputSchema.Required,
		},
	}
}

// Parameters returns the schema handed to a model for this tool. Missing
// pieces default to an empty object schema and extra properties are refused.
func (s ToolInputSchema) Parameters() map[string]interface{} {
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	props := s.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	params := map[string]interface{}{
		"type":                 typ,
		"properties":           props,
		"additionalProperties": false,
	}
	if len(s.Required) > 0 {
		params["required"] = s.Required
	}
	return params
}

// CallFunc performs a tool call on the owning server.
type CallFunc func(ctx context.Context, toolName string, input map[string]any) *mcpapi.CallToolResult

// MCPTool is an invocable wrapper around a discovered tool. The origin
// fields are filled in by the registry when it flattens tools from many
// servers into one namespace.
type MCPTool struct {
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`

	OriginToolName string `json:"_originToolName,omitempty"`
	ServerName     string `json:"_mcpServerName,omitempty"`
	ServerID       string `json:"_mcpServerId,omitempty"`

	call CallFunc
}

// NewMCPTool builds the wrapper for t that delegates to call.
func NewMCPTool(t Tool, call CallFunc) *MCPTool {
	return &MCPTool{
		Description:    t.Description,
		Parameters:     t.InputSchema.Parameters(),
		OriginToolName: t.Name,
		call:           call,
	}
}

// Execute invokes the tool. An already-cancelled ctx is reported before any
// request is sent; every other failure is carried in the returned result.
func (t *MCPTool) Execute(ctx context.Context, input map[string]any) (*mcpapi.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.call(ctx, t.OriginToolName, input), nil
}

// WithOrigin returns a copy of t tagged with the registry entry it came from.
func (t *MCPTool) WithOrigin(serverID, serverName string) *MCPTool {
	cp := *t
	cp.ServerID = serverID
	cp.ServerName = serverName
	return &cp
}
