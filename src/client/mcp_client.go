package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/mcp-chatbot/mcp-manager/src/helpers"
	"github.com/mcp-chatbot/mcp-manager/src/locker"
	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
	"github.com/mcp-chatbot/mcp-manager/src/tools"
	mcptransport "github.com/mcp-chatbot/mcp-manager/src/transports/mcp"
)

// Status is the connection state of a client.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	// StatusConnecting is reported while a connect attempt holds the gate.
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusErrored    Status = "errored"
)

// wireConnecting is how StatusConnecting is encoded for UI consumers.
const wireConnecting = "loading"

// MarshalText encodes StatusConnecting as "loading"; the other states keep
// their names.
func (s Status) MarshalText() ([]byte, error) {
	if s == StatusConnecting {
		return []byte(wireConnecting), nil
	}
	return []byte(s), nil
}

// UnmarshalText accepts both "loading" and "connecting".
func (s *Status) UnmarshalText(text []byte) error {
	switch v := Status(text); v {
	case wireConnecting:
		*s = StatusConnecting
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusErrored:
		*s = v
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultAutoDisconnect = 5 * time.Minute

	slowConnectThreshold = 5 * time.Second
	slowCallThreshold    = 2 * time.Second
)

// Info is a point-in-time snapshot of a client.
type Info struct {
	Name     string               `json:"name"`
	Config   mcpprov.ServerConfig `json:"config"`
	Status   Status               `json:"status"`
	Error    string               `json:"error,omitempty"`
	ToolInfo []tools.Tool         `json:"toolInfo"`
}

// Option customizes an MCPClient.
type Option func(*MCPClient)

// WithDialer replaces the transport used to open sessions.
func WithDialer(d mcptransport.Dialer) Option {
	return func(c *MCPClient) { c.dialer = d }
}

// WithAutoDisconnect sets the idle period after which the session is
// closed. Zero disables it.
func WithAutoDisconnect(d time.Duration) Option {
	return func(c *MCPClient) { c.autoDisconnect = d }
}

// WithConnectTimeout bounds a single connect attempt. Zero disables it.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *MCPClient) { c.connectTimeout = d }
}

// WithRemoteOnly refuses stdio servers when the default dialer is used.
func WithRemoteOnly(remoteOnly bool) Option {
	return func(c *MCPClient) { c.remoteOnly = remoteOnly }
}

// WithLogger sets the logger; entries are tagged with the server name.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *MCPClient) { c.log = l }
}

// MCPClient owns the connection to one MCP server. Connects are serialized
// by a gate; every other field is guarded by mu.
type MCPClient struct {
	name   string
	cfg    mcpprov.ServerConfig
	dialer mcptransport.Dialer
	log    logrus.FieldLogger

	connectTimeout time.Duration
	autoDisconnect time.Duration
	remoteOnly     bool

	gate locker.Locker
	idle helpers.Debouncer

	mu       sync.Mutex
	session  mcptransport.Session
	lastErr  error
	toolInfo []tools.Tool
	tools    map[string]*tools.MCPTool
}

// NewMCPClient creates a disconnected client for cfg.
func NewMCPClient(name string, cfg mcpprov.ServerConfig, opts ...Option) *MCPClient {
	c := &MCPClient{
		name:           name,
		cfg:            cfg,
		log:            logrus.StandardLogger(),
		connectTimeout: DefaultConnectTimeout,
		autoDisconnect: DefaultAutoDisconnect,
		tools:          map[string]*tools.MCPTool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithFields(logrus.Fields{"component": "mcp-client", "server": name})
	if c.dialer == nil {
		c.dialer = mcptransport.NewMCPTransport(c.log.Debugf, mcptransport.WithRemoteOnly(c.remoteOnly))
	}
	return c
}

// Name returns the server name the client was created with.
func (c *MCPClient) Name() string { return c.name }

// Config returns the server configuration.
func (c *MCPClient) Config() mcpprov.ServerConfig { return c.cfg }

// Status reports the current connection state.
func (c *MCPClient) Status() Status {
	if c.gate.IsLocked() {
		return StatusConnecting
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *MCPClient) statusLocked() Status {
	switch {
	case c.session != nil:
		return StatusConnected
	case c.lastErr != nil:
		return StatusErrored
	default:
		return StatusDisconnected
	}
}

// LastError returns the error recorded by the last failed connect.
func (c *MCPClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Info returns a snapshot of the client.
func (c *MCPClient) Info() Info {
	status := c.Status()
	c.mu.Lock()
	defer c.mu.Unlock()
	info := Info{
		Name:     c.name,
		Config:   c.cfg,
		Status:   status,
		ToolInfo: append([]tools.Tool(nil), c.toolInfo...),
	}
	if c.lastErr != nil {
		info.Error = c.lastErr.Error()
	}
	return info
}

// Tools returns the tools discovered on the last successful connect, keyed
// by their name on the server.
func (c *MCPClient) Tools() map[string]*tools.MCPTool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*tools.MCPTool, len(c.tools))
	for name, t := range c.tools {
		out[name] = t
	}
	return out
}

type connection struct {
	session mcptransport.Session
	tools   []tools.Tool
}

// Connect establishes the session and loads the tool list. It never fails;
// the outcome is reported through the returned status and LastError. A
// caller arriving while another connect is in flight waits for its outcome.
func (c *MCPClient) Connect(ctx context.Context) Status {
	if !c.gate.TryLock() {
		// On cancellation the in-flight attempt is still running.
		_ = c.gate.WaitContext(ctx)
		return c.Status()
	}
	defer c.gate.Unlock()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return StatusConnected
	}
	c.mu.Unlock()

	c.log.Infof("Attempting to connect to %s...", c.name)
	startedAt := time.Now()

	conn, err := c.dial(ctx)
	elapsed := time.Since(startedAt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// The caller gave up; the server is not at fault.
			c.log.Warnf("Connect to %s cancelled: %v", c.name, err)
			return c.statusLocked()
		}
		c.log.WithError(err).Errorf("Failed to connect to %s", c.name)
		c.lastErr = err
		return StatusErrored
	}

	c.session = conn.session
	c.lastErr = nil
	c.setToolsLocked(conn.tools)

	c.log.Infof("Connected to MCP server in %.2fs over %s, loaded %d tools",
		elapsed.Seconds(), conn.session.Transport(), len(conn.tools))
	if elapsed > slowConnectThreshold {
		c.log.Warnf("Slow connection detected: %s took %.2fs to connect", c.name, elapsed.Seconds())
	}
	c.scheduleAutoDisconnect()
	return StatusConnected
}

func (c *MCPClient) dial(ctx context.Context) (connection, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	return helpers.RaceTimeout(c.connectTimeout, "Connection", func() (connection, error) {
		sess, err := c.dialer.Dial(dialCtx, c.cfg)
		if err != nil {
			return connection{}, err
		}
		list, err := sess.ListTools(dialCtx)
		if err != nil {
			_ = sess.Close()
			return connection{}, err
		}
		return connection{session: sess, tools: list}, nil
	}, func(conn connection, err error) {
		if conn.session != nil {
			c.log.Warnf("Closing session to %s that arrived after the connect timeout", c.name)
			_ = conn.session.Close()
		}
	})
}

func (c *MCPClient) setToolsLocked(list []tools.Tool) {
	c.toolInfo = list
	c.tools = make(map[string]*tools.MCPTool, len(list))
	for _, t := range list {
		c.tools[t.Name] = tools.NewMCPTool(t, c.CallTool)
	}
}

func (c *MCPClient) scheduleAutoDisconnect() {
	if c.autoDisconnect <= 0 {
		return
	}
	c.idle.Call(c.autoDisconnect, func() {
		c.log.Infof("Idle for %s, disconnecting", c.autoDisconnect)
		c.Disconnect(context.Background())
	})
}

// Disconnect waits for an in-flight connect, then closes the session.
// Close failures are logged.
func (c *MCPClient) Disconnect(ctx context.Context) {
	c.log.Info("Disconnecting from MCP server")
	if err := c.gate.WaitContext(ctx); err != nil {
		c.log.WithError(err).Warn("Gave up waiting for pending connect")
	}
	c.idle.Stop()

	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.lastErr = nil
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			c.log.WithError(err).Error("Failed to close MCP session")
		}
	}
}

// CallTool invokes a tool and never fails: transport errors, empty results
// and tool-reported errors all come back as an error result.
func (c *MCPClient) CallTool(ctx context.Context, toolName string, input map[string]any) *mcpapi.CallToolResult {
	callStart := time.Now()
	c.log.Infof("Tool call started: %s", toolName)

	res, err := c.callTool(ctx, toolName, input)
	elapsed := time.Since(callStart)
	if err != nil {
		c.log.WithError(err).Errorf("Tool call failed after %dms: %s", elapsed.Milliseconds(), toolName)
		return helpers.ErrorResult(err, elapsed)
	}

	c.log.Infof("Tool call completed: %s in %dms", toolName, elapsed.Milliseconds())
	if elapsed > slowCallThreshold {
		c.log.Warnf("Slow tool call detected: %s took %dms", toolName, elapsed.Milliseconds())
	}
	return res
}

func (c *MCPClient) callTool(ctx context.Context, toolName string, input map[string]any) (*mcpapi.CallToolResult, error) {
	if c.Status() == StatusErrored {
		return nil, ErrServerErrorState
	}
	c.scheduleAutoDisconnect()

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		if status := c.Connect(ctx); status != StatusConnected {
			if err := c.LastError(); err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNotConnected
		}
		c.mu.Lock()
		sess = c.session
		c.mu.Unlock()
		if sess == nil {
			return nil, ErrNotConnected
		}
	}

	res, err := sess.CallTool(ctx, toolName, input)
	c.scheduleAutoDisconnect()
	switch {
	case err != nil:
		return nil, fmt.Errorf("tool %s: %w", toolName, err)
	case res == nil:
		return nil, ErrNullResult
	case res.IsError:
		return nil, &ToolExecutionError{Tool: toolName, Message: helpers.ResultText(res)}
	}
	return res, nil
}
