package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	. "github.com/mcp-chatbot/mcp-manager/src/providers/base"
	. "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

// ErrStdioDisabled is returned when a stdio server is dialled while the
// transport only allows remote servers.
var ErrStdioDisabled = fmt.Errorf("%w: stdio transport is not supported", ErrInvalidConfig)

// Dialer opens a Session to the server described by cfg.
type Dialer interface {
	Dial(ctx context.Context, cfg ServerConfig) (Session, error)
}

// StdioConnector opens a session to a local process.
type StdioConnector func(ctx context.Context, cfg *StdioServerConfig) (Session, error)

// RemoteConnector opens a session to an HTTP endpoint.
type RemoteConnector func(ctx context.Context, cfg *RemoteServerConfig) (Session, error)

// MCPTransport selects and establishes the transport for a server config.
// Stdio configs spawn a process; remote configs try streamable HTTP first
// and fall back to the legacy SSE transport.
type MCPTransport struct {
	stdio      StdioConnector
	streamable RemoteConnector
	sse        RemoteConnector
	remoteOnly bool
	clientInfo string
	logger     func(format string, args ...interface{})
}

// Option customizes an MCPTransport.
type Option func(*MCPTransport)

// WithRemoteOnly refuses stdio servers.
func WithRemoteOnly(remoteOnly bool) Option {
	return func(t *MCPTransport) { t.remoteOnly = remoteOnly }
}

// WithStdioConnector replaces the process transport.
func WithStdioConnector(c StdioConnector) Option {
	return func(t *MCPTransport) { t.stdio = c }
}

// WithStreamableConnector replaces the streamable HTTP transport.
func WithStreamableConnector(c RemoteConnector) Option {
	return func(t *MCPTransport) { t.streamable = c }
}

// WithSSEConnector replaces the SSE transport.
func WithSSEConnector(c RemoteConnector) Option {
	return func(t *MCPTransport) { t.sse = c }
}

// WithClientName sets the client name sent during initialization.
func WithClientName(name string) Option {
	return func(t *MCPTransport) { t.clientInfo = name }
}

// NewMCPTransport constructs a new MCPTransport.
func NewMCPTransport(logger func(format string, args ...interface{}), opts ...Option) *MCPTransport {
	if logger == nil {
		logger = func(format string, args ...interface{}) {}
	}
	t := &MCPTransport{
		clientInfo: DefaultClientName,
		logger:     logger,
	}
	t.stdio = t.dialStdio
	t.streamable = t.dialStreamable
	t.sse = t.dialSSE
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial establishes and initializes a session for cfg.
func (t *MCPTransport) Dial(ctx context.Context, cfg ServerConfig) (Session, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case *StdioServerConfig:
		if t.remoteOnly {
			return nil, ErrStdioDisabled
		}
		t.logger("Starting MCP server with command: %s %v", c.Command, c.Args)
		return t.stdio(ctx, c)
	case *RemoteServerConfig:
		sess, err := t.streamable(ctx, c)
		if err == nil {
			return sess, nil
		}
		t.logger("Streamable HTTP connection to %s failed, falling back to SSE transport: %v", c.URL, err)
		sess, sseErr := t.sse(ctx, c)
		if sseErr != nil {
			return nil, fmt.Errorf("streamable http: %v; sse: %w", err, sseErr)
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unsupported config type %T", ErrInvalidConfig, cfg)
	}
}

// dialStdio spawns the server process and speaks MCP over its pipes.
func (t *MCPTransport) dialStdio(ctx context.Context, cfg *StdioServerConfig) (Session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = MergeEnv(os.Environ(), cfg.Env)
	if cfg.WorkingDir != "" {
		cmd.Dir = cfg.WorkingDir
	} else if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	// The client transport never reads stderr; drain it so a chatty server
	// cannot block on a full pipe.
	go t.drainStderr(cfg.Command, stderr)

	cli := mcpclient.NewClient(transport.NewIO(stdout, stdin, stderr))
	sess := newSession(cli, TransportStdio)
	sess.cmd = cmd

	if err := sess.start(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}
	if err := sess.initialize(ctx, t.clientInfo); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to initialize MCP connection: %w", err)
	}
	return sess, nil
}

func (t *MCPTransport) drainStderr(command string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			t.logger("[%s stderr] %s", command, line)
		}
	}
}

func (t *MCPTransport) dialStreamable(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
	cli, err := mcpclient.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP HTTP client: %w", err)
	}
	return t.handshake(ctx, newSession(cli, TransportStreamable))
}

func (t *MCPTransport) dialSSE(ctx context.Context, cfg *RemoteServerConfig) (Session, error) {
	cli, err := mcpclient.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP SSE client: %w", err)
	}
	return t.handshake(ctx, newSession(cli, TransportSSE))
}

func (t *MCPTransport) handshake(ctx context.Context, sess *mcpSession) (Session, error) {
	if err := sess.start(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to start MCP %s client: %w", sess.kind, err)
	}
	if err := sess.initialize(ctx, t.clientInfo); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to initialize MCP %s client: %w", sess.kind, err)
	}
	t.logger("Connected over %s", sess.kind)
	return sess, nil
}

// MergeEnv overlays overrides on top of a KEY=VALUE environment. Overrides
// win on collision; malformed base entries are dropped. Base ordering is kept
// and new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(base))
	for _, kv := range base {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if v, override := overrides[key]; override {
			val = v
		}
		out = append(out, key+"="+val)
	}

	extra := make([]string, 0, len(overrides))
	for key := range overrides {
		if !seen[key] && key != "" {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		out = append(out, key+"="+overrides[key])
	}
	return out
}

// IsConfigError reports whether err was caused by an unusable configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
