// Package mcptest runs real MCP servers for tests: streamable HTTP and SSE
// servers in-process, and stdio servers by re-executing the test binary.
package mcptest

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

// EnvStdioMode switches a re-executed test binary into a stdio server.
const EnvStdioMode = "MCPMANAGER_TEST_STDIO"

// Stdio server modes.
const (
	// ModeServe serves the default tool set.
	ModeServe = "serve"
	// ModeEmpty serves no tools.
	ModeEmpty = "empty"
	// ModeSilent reads stdin and never answers.
	ModeSilent = "silent"
)

// NewServer builds an MCP server exposing echo, fail and sleep tools.
func NewServer(name string) *server.MCPServer {
	srv := server.NewMCPServer(name, "1.0.0", server.WithToolCapabilities(true))
	AddDefaultTools(srv)
	return srv
}

// NewEmptyServer builds an MCP server without tools.
func NewEmptyServer(name string) *server.MCPServer {
	return server.NewMCPServer(name, "1.0.0", server.WithToolCapabilities(true))
}

// AddDefaultTools registers the tool set every test server carries.
func AddDefaultTools(srv *server.MCPServer) {
	srv.AddTool(mcpapi.NewTool("echo",
		mcpapi.WithDescription("Echo the given text"),
		mcpapi.WithString("text", mcpapi.Required()),
	), func(ctx context.Context, req mcpapi.CallToolRequest) (*mcpapi.CallToolResult, error) {
		return mcpapi.NewToolResultText(cast.ToString(req.GetArguments()["text"])), nil
	})

	srv.AddTool(mcpapi.NewTool("fail",
		mcpapi.WithDescription("Always reports a tool error"),
	), func(ctx context.Context, req mcpapi.CallToolRequest) (*mcpapi.CallToolResult, error) {
		return mcpapi.NewToolResultError("tool failed on purpose"), nil
	})

	srv.AddTool(mcpapi.NewTool("sleep",
		mcpapi.WithDescription("Sleep for ms milliseconds"),
		mcpapi.WithNumber("ms"),
	), func(ctx context.Context, req mcpapi.CallToolRequest) (*mcpapi.CallToolResult, error) {
		d := time.Duration(cast.ToInt64(req.GetArguments()["ms"])) * time.Millisecond
		select {
		case <-time.After(d):
			return mcpapi.NewToolResultText(fmt.Sprintf("slept %s", d)), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// StartStreamable serves srv over streamable HTTP and returns its endpoint.
func StartStreamable(tb testing.TB, srv *server.MCPServer) string {
	tb.Helper()
	ts := httptest.NewServer(server.NewStreamableHTTPServer(srv))
	tb.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

// StartSSE serves srv over the legacy SSE transport and returns its endpoint.
func StartSSE(tb testing.TB, srv *server.MCPServer) string {
	tb.Helper()
	ts := server.NewTestServer(srv)
	tb.Cleanup(ts.Close)
	return ts.URL + "/sse"
}

// StdioConfig returns a config that re-executes the running test binary in
// the given mode. The package's TestMain must call MaybeServeStdio.
func StdioConfig(mode string) *mcpprov.StdioServerConfig {
	return mcpprov.NewStdioServerConfig(os.Args[0], "-test.run=^$").
		WithEnv(EnvStdioMode, mode)
}

// MaybeServeStdio turns the process into a stdio server when EnvStdioMode is
// set, and exits once stdin closes. It returns immediately otherwise.
func MaybeServeStdio() {
	mode := os.Getenv(EnvStdioMode)
	if mode == "" {
		return
	}
	switch mode {
	case ModeSilent:
		_, _ = io.Copy(io.Discard, os.Stdin)
	case ModeEmpty:
		_ = server.ServeStdio(NewEmptyServer("empty"))
	default:
		_ = server.ServeStdio(NewServer("stdio"))
	}
	os.Exit(0)
}
