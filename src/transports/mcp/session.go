package mcp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpapi "github.com/mark3labs/mcp-go/mcp"

	. "github.com/mcp-chatbot/mcp-manager/src/providers/base"
	"github.com/mcp-chatbot/mcp-manager/src/tools"
)

const (
	// DefaultClientName is announced to servers during initialization.
	DefaultClientName = "mcp-manager"
	// ClientVersion is announced alongside DefaultClientName.
	ClientVersion = "1.0.0"
)

// processExitGrace bounds how long Close waits for a stdio server to exit
// after its pipes are closed before killing it.
const processExitGrace = 2 * time.Second

// Session is an initialized connection to a single MCP server.
type Session interface {
	ListTools(ctx context.Context) ([]tools.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpapi.CallToolResult, error)
	Transport() TransportKind
	Close() error
}

type mcpSession struct {
	client *mcpclient.Client
	kind   TransportKind
	cmd    *exec.Cmd

	// cancel ends the long-lived context the transport was started with.
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newSession(cli *mcpclient.Client, kind TransportKind) *mcpSession {
	return &mcpSession{client: cli, kind: kind, cancel: func() {}}
}

// start launches the transport on a context that outlives ctx. ctx only
// bounds the start itself; cancelling it midway tears the session down.
func (s *mcpSession) start(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := s.client.Start(sessCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *mcpSession) initialize(ctx context.Context, name string) error {
	req := mcpapi.InitializeRequest{}
	req.Params.ProtocolVersion = mcpapi.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpapi.Implementation{
		Name:    name,
		Version: ClientVersion,
	}
	_, err := s.client.Initialize(ctx, req)
	return err
}

// ListTools follows pagination cursors until the server stops returning one.
func (s *mcpSession) ListTools(ctx context.Context) ([]tools.Tool, error) {
	var out []tools.Tool
	req := mcpapi.ListToolsRequest{}
	for {
		res, err := s.client.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		for _, t := range res.Tools {
			out = append(out, tools.FromMCP(t))
		}
		if res.NextCursor == "" {
			return out, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcpapi.CallToolResult, error) {
	req := mcpapi.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *mcpSession) Transport() TransportKind { return s.kind }

// Close shuts the client down. A stdio server gets a short grace period to
// exit on its own once stdin is closed, then it is killed.
func (s *mcpSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
		s.cancel()
		if s.cmd != nil && s.cmd.Process != nil {
			if err := waitOrKill(s.cmd, processExitGrace); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func waitOrKill(cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit after stdin closed is expected.
			return nil
		}
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
		return nil
	}
}
