package manager

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	mcpapi "github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/mcp-chatbot/mcp-manager/src/client"
	"github.com/mcp-chatbot/mcp-manager/src/helpers"
	"github.com/mcp-chatbot/mcp-manager/src/locker"
	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
	"github.com/mcp-chatbot/mcp-manager/src/repository"
	"github.com/mcp-chatbot/mcp-manager/src/toolid"
	"github.com/mcp-chatbot/mcp-manager/src/tools"
	mcptransport "github.com/mcp-chatbot/mcp-manager/src/transports/mcp"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrToolNotFound   = errors.New("tool not found")
	ErrAddNotAllowed  = errors.New("not allowed to add MCP servers")
	ErrInvalidName    = errors.New("name must contain only alphanumeric characters (A-Z, a-z, 0-9) and hyphens (-)")
)

const (
	DefaultAddTimeout = 20 * time.Second

	slowAddThreshold = 10 * time.Second
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// ClientEntry pairs a registry id with its client.
type ClientEntry struct {
	ID     string
	Client *client.MCPClient
}

type entry struct {
	id     string
	name   string
	client *client.MCPClient
}

// Option customizes a Manager.
type Option func(*Manager)

// WithAutoDisconnect sets the idle period of every client.
func WithAutoDisconnect(d time.Duration) Option {
	return func(m *Manager) { m.autoDisconnect = d }
}

// WithConnectTimeout sets the per-client connect ceiling.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithAddTimeout sets the ceiling around AddClient's connect.
func WithAddTimeout(d time.Duration) Option {
	return func(m *Manager) { m.addTimeout = d }
}

// WithDialer replaces the transport used by every client.
func WithDialer(d mcptransport.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithRemoteOnly refuses stdio servers.
func WithRemoteOnly(remoteOnly bool) Option {
	return func(m *Manager) { m.remoteOnly = remoteOnly }
}

// WithAllowAddServers toggles PersistClient.
func WithAllowAddServers(allow bool) Option {
	return func(m *Manager) { m.allowAdd = allow }
}

// WithSignalHandling toggles the SIGINT/SIGTERM drain hooks.
func WithSignalHandling(enabled bool) Option {
	return func(m *Manager) { m.handleSignals = enabled }
}

// WithLogger sets the logger shared with the clients.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.baseLog = l }
}

// Manager owns every MCP client, keyed by a stable id, and flattens their
// tools into one namespace.
type Manager struct {
	storage repository.ConfigStorage
	baseLog logrus.FieldLogger
	log     logrus.FieldLogger

	autoDisconnect time.Duration
	connectTimeout time.Duration
	addTimeout     time.Duration
	dialer         mcptransport.Dialer
	remoteOnly     bool
	allowAdd       bool
	handleSignals  bool

	initGate locker.Locker

	mu      sync.RWMutex
	clients map[string]*entry

	signals signalHooks
}

// New creates a manager. storage may be nil, in which case configs live
// only in memory.
func New(storage repository.ConfigStorage, opts ...Option) *Manager {
	m := &Manager{
		storage:        storage,
		baseLog:        logrus.StandardLogger(),
		autoDisconnect: client.DefaultAutoDisconnect,
		connectTimeout: client.DefaultConnectTimeout,
		addTimeout:     DefaultAddTimeout,
		allowAdd:       true,
		handleSignals:  true,
		clients:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.baseLog.WithField("component", "mcp-manager")
	if m.handleSignals {
		m.installSignalHooks()
	}
	return m
}

func (m *Manager) clientOptions() []client.Option {
	opts := []client.Option{
		client.WithAutoDisconnect(m.autoDisconnect),
		client.WithConnectTimeout(m.connectTimeout),
		client.WithRemoteOnly(m.remoteOnly),
		client.WithLogger(m.baseLog),
	}
	if m.dialer != nil {
		opts = append(opts, client.WithDialer(m.dialer))
	}
	return opts
}

// Init drops any previous state and loads every stored config. A server
// that fails to connect is logged and does not stop the others.
func (m *Manager) Init(ctx context.Context) error {
	m.initGate.Lock()
	defer m.initGate.Unlock()

	m.Cleanup(ctx)
	if m.handleSignals {
		m.installSignalHooks()
	}
	if m.storage == nil {
		return nil
	}

	if err := m.storage.Init(ctx, m); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	records, err := m.storage.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading server configs: %w", err)
	}

	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec repository.ServerRecord) {
			defer wg.Done()
			if err := m.AddClient(ctx, rec.ID, rec.Name, rec.Config); err != nil {
				m.log.WithError(err).WithField("server", rec.Name).Warn("Server failed to load")
			}
		}(rec)
	}
	wg.Wait()
	m.log.Infof("Initialized with %d of %d servers", m.count(), len(records))
	return nil
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// AddClient registers a client under id, replacing any previous one, and
// connects it. A server that fails to connect stays registered in the
// errored state with its last error; RefreshClient recovers it. Only a
// connect that outlives the add timeout, or a cancelled ctx, removes the
// entry again and is returned as an error.
func (m *Manager) AddClient(ctx context.Context, id, name string, cfg mcpprov.ServerConfig) error {
	addStart := time.Now()
	log := m.log.WithFields(logrus.Fields{"server": name, "id": id})
	log.Info("Starting connection")

	c := client.NewMCPClient(name, cfg, m.clientOptions()...)
	e := &entry{id: id, name: name, client: c}

	m.mu.Lock()
	prev := m.clients[id]
	m.clients[id] = e
	m.mu.Unlock()
	if prev != nil {
		log.Info("Disconnecting previous client")
		go prev.client.Disconnect(context.Background())
	}

	status, err := helpers.RaceTimeout(m.addTimeout, fmt.Sprintf("Client %s connection", name), func() (client.Status, error) {
		return c.Connect(ctx), nil
	}, func(client.Status, error) {
		// A timed out entry is never current again.
		c.Disconnect(context.Background())
	})
	if err == nil {
		err = ctx.Err()
	}

	addTime := time.Since(addStart)
	if err != nil {
		log.WithError(err).Errorf("Failed to connect after %dms", addTime.Milliseconds())
		m.removeIfCurrent(id, e)
		go c.Disconnect(context.Background())
		return err
	}

	if status != client.StatusConnected {
		log.WithError(c.LastError()).Warnf("Registered in %s state after %dms", status, addTime.Milliseconds())
		return nil
	}
	log.Infof("Connected successfully in %dms", addTime.Milliseconds())
	if addTime > slowAddThreshold {
		log.Warnf("Slow connection - %s took %.2fs to connect", name, addTime.Seconds())
	}
	return nil
}

func (m *Manager) removeIfCurrent(id string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients[id] == e {
		delete(m.clients, id)
	}
}

// PersistClient validates and stores a config, then adds its client. It
// returns the id the client was registered under.
func (m *Manager) PersistClient(ctx context.Context, server repository.ServerInsert) (string, error) {
	if !m.allowAdd {
		return "", ErrAddNotAllowed
	}
	if !validName.MatchString(server.Name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, server.Name)
	}
	if server.Config == nil {
		return "", fmt.Errorf("%w: missing config", mcpprov.ErrInvalidConfig)
	}
	if err := server.Config.Validate(); err != nil {
		return "", err
	}

	id := server.Name
	if m.storage != nil {
		rec, err := m.storage.Save(ctx, server)
		if err != nil {
			return "", fmt.Errorf("saving %s: %w", server.Name, err)
		}
		id = rec.ID
	}
	return id, m.AddClient(ctx, id, server.Name, server.Config)
}

// RemoveClient deletes the config from storage and the client from the
// registry, then disconnects it in the background. Unknown ids are a no-op.
func (m *Manager) RemoveClient(ctx context.Context, id string) error {
	if m.storage != nil {
		ok, err := m.storage.Has(ctx, id)
		if err != nil {
			return fmt.Errorf("checking storage for %s: %w", id, err)
		}
		if ok {
			if err := m.storage.Delete(ctx, id); err != nil {
				return fmt.Errorf("deleting %s from storage: %w", id, err)
			}
		}
	}

	m.mu.Lock()
	e := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()

	if e != nil {
		m.log.WithField("server", e.name).Info("Removed client")
		go e.client.Disconnect(context.Background())
	}
	return nil
}

// RefreshClient re-adds the client under the same id, with the stored config
// when storage is configured and the held config otherwise.
func (m *Manager) RefreshClient(ctx context.Context, id string) error {
	m.mu.RLock()
	prev := m.clients[id]
	m.mu.RUnlock()
	if prev == nil {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}

	if m.storage != nil {
		rec, err := m.storage.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("loading %s: %w", id, err)
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", ErrClientNotFound, id)
		}
		return m.AddClient(ctx, id, rec.Name, rec.Config)
	}
	return m.AddClient(ctx, id, prev.name, prev.client.Config())
}

// snapshot returns the entries ordered by id.
func (m *Manager) snapshot() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.clients))
	for _, e := range m.clients {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Tools flattens every client's tools into one map keyed by the encoded
// tool id. Clients without tools are skipped. When two tools encode to the
// same id the one from the lower registry id wins.
func (m *Manager) Tools() map[string]*tools.MCPTool {
	out := make(map[string]*tools.MCPTool)
	for _, e := range m.snapshot() {
		clientTools := e.client.Tools()
		if len(clientTools) == 0 {
			continue
		}
		names := make([]string, 0, len(clientTools))
		for name := range clientTools {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			token := toolid.Encode(e.name, name)
			if existing, ok := out[token]; ok {
				m.log.Warnf("Tool id %s from %s/%s collides with %s/%s; keeping the first",
					token, e.name, name, existing.ServerName, existing.OriginToolName)
				continue
			}
			out[token] = clientTools[name].WithOrigin(e.id, e.name)
		}
	}
	return out
}

// Cleanup removes the signal hooks, then disconnects every client and
// empties the registry.
func (m *Manager) Cleanup(ctx context.Context) {
	m.removeSignalHooks()
	m.disconnectAll(ctx)
}

func (m *Manager) disconnectAll(ctx context.Context) {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.clients))
	for _, e := range m.clients {
		entries = append(entries, e)
	}
	m.clients = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.client.Disconnect(ctx)
		}(e)
	}
	wg.Wait()
}

// GetClients lists the clients ordered by id once Init has finished.
func (m *Manager) GetClients(ctx context.Context) ([]ClientEntry, error) {
	if err := m.initGate.WaitContext(ctx); err != nil {
		return nil, err
	}
	entries := m.snapshot()
	out := make([]ClientEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ClientEntry{ID: e.id, Client: e.client})
	}
	return out, nil
}

// GetClient returns the client for id once Init has finished, or nil.
func (m *Manager) GetClient(ctx context.Context, id string) (*client.MCPClient, error) {
	if err := m.initGate.WaitContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.clients[id]; ok {
		return e.client, nil
	}
	return nil, nil
}

// ExistsByServerName reports whether a client with that exact name exists.
func (m *Manager) ExistsByServerName(ctx context.Context, serverName string) (bool, error) {
	list, err := m.GetClients(ctx)
	if err != nil {
		return false, err
	}
	for _, ce := range list {
		if ce.Client.Name() == serverName {
			return true, nil
		}
	}
	return false, nil
}

// CallTool calls toolName on the client registered under id.
func (m *Manager) CallTool(ctx context.Context, id, toolName string, input map[string]any) (*mcpapi.CallToolResult, error) {
	c, err := m.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return c.CallTool(ctx, toolName, input), nil
}

// CallToolByServerName resolves the client by name: exact match first, then
// with underscores read as spaces, then ignoring case.
func (m *Manager) CallToolByServerName(ctx context.Context, serverName, toolName string, input map[string]any) (*mcpapi.CallToolResult, error) {
	list, err := m.GetClients(ctx)
	if err != nil {
		return nil, err
	}
	c := findByName(list, serverName)
	if c == nil {
		return nil, fmt.Errorf("%w: no client for server %s", ErrClientNotFound, serverName)
	}
	return c.CallTool(ctx, toolName, input), nil
}

func findByName(list []ClientEntry, serverName string) *client.MCPClient {
	unsanitized := strings.ReplaceAll(serverName, "_", " ")
	matchers := []func(string) bool{
		func(n string) bool { return n == serverName },
		func(n string) bool { return n == unsanitized },
		func(n string) bool { return strings.EqualFold(n, serverName) },
	}
	for _, match := range matchers {
		for _, ce := range list {
			if match(ce.Client.Name()) {
				return ce.Client
			}
		}
	}
	return nil
}

// CallToolByToken calls the tool published under token by Tools.
func (m *Manager) CallToolByToken(ctx context.Context, token string, input map[string]any) (*mcpapi.CallToolResult, error) {
	if err := m.initGate.WaitContext(ctx); err != nil {
		return nil, err
	}
	t, ok := m.Tools()[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, token)
	}
	return t.Execute(ctx, input)
}

// ServerNames lists the names of the registered clients ordered by id.
func (m *Manager) ServerNames() []string {
	entries := m.snapshot()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.name)
	}
	return out
}
