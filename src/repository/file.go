package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mcp-chatbot/mcp-manager/src/config"
	"github.com/mcp-chatbot/mcp-manager/src/json"
	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

// DefaultConfigFile is the file used when no path is configured.
const DefaultConfigFile = ".mcp-config.json"

// serversKey is the wrapper key used by desktop-client style config files.
const serversKey = "mcpServers"

// FileConfigStorage keeps configs in a single file mapping server name to
// config, encoded as JSON, YAML or TOML depending on the extension. The
// server name is the record id. The file is the source of truth: every read
// goes back to disk, so edits made by hand are picked up, and Sync applies
// them to the manager.
type FileConfigStorage struct {
	path     string
	resolver *config.Resolver
	logger   logrus.FieldLogger

	mu      sync.Mutex
	manager ClientManager
	// synced holds the encoded configs last handed to the manager.
	synced map[string]string
}

// FileOption customizes a FileConfigStorage.
type FileOption func(*FileConfigStorage)

// WithResolver sets the resolver used for ${VAR} substitution on load.
func WithResolver(r *config.Resolver) FileOption {
	return func(s *FileConfigStorage) { s.resolver = r }
}

// WithFileLogger sets the logger.
func WithFileLogger(l logrus.FieldLogger) FileOption {
	return func(s *FileConfigStorage) { s.logger = l }
}

// NewFileConfigStorage creates a storage backed by path. The file does not
// need to exist yet.
func NewFileConfigStorage(path string, opts ...FileOption) (*FileConfigStorage, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := formatOf(path); err != nil {
		return nil, err
	}
	s := &FileConfigStorage{
		path:     path,
		resolver: config.NewResolver(nil),
		logger:   logrus.StandardLogger(),
		synced:   map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "file-storage")
	return s, nil
}

// Path returns the backing file.
func (s *FileConfigStorage) Path() string { return s.path }

func (s *FileConfigStorage) Init(ctx context.Context, manager ClientManager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager = manager
	return nil
}

// LoadAll returns every valid entry ordered by name. Invalid entries are
// logged and skipped.
func (s *FileConfigStorage) LoadAll(ctx context.Context) ([]ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	s.synced = fingerprints(records)
	return records, nil
}

func (s *FileConfigStorage) loadLocked() ([]ServerRecord, error) {
	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.servers))
	for name := range doc.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]ServerRecord, 0, len(names))
	for _, name := range names {
		cfg, err := s.decodeEntry(name, doc.servers[name])
		if err != nil {
			s.logger.WithError(err).WithField("server", name).Warn("Skipping invalid server config")
			continue
		}
		records = append(records, ServerRecord{ID: name, Name: name, Config: cfg})
	}
	return records, nil
}

func (s *FileConfigStorage) decodeEntry(name string, raw any) (mcpprov.ServerConfig, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: entry %q is not an object", mcpprov.ErrInvalidConfig, name)
	}
	if missing := s.resolver.Missing(m); len(missing) > 0 {
		s.logger.WithField("server", name).Warnf("Unresolved variables: %s", strings.Join(missing, ", "))
	}
	return mcpprov.ServerConfigFromMap(s.resolver.ReplaceVars(m).(map[string]any))
}

// Save writes the entry under its name. Saving with an ID that differs
// from the name renames the entry.
func (s *FileConfigStorage) Save(ctx context.Context, server ServerInsert) (ServerRecord, error) {
	if server.Name == "" {
		return ServerRecord{}, fmt.Errorf("save: name is required")
	}
	entry, err := mcpprov.ServerConfigToMap(server.Config)
	if err != nil {
		return ServerRecord{}, fmt.Errorf("encoding config for %q: %w", server.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return ServerRecord{}, err
	}
	if server.ID != "" && server.ID != server.Name {
		delete(doc.servers, server.ID)
		delete(s.synced, server.ID)
	}
	doc.servers[server.Name] = entry
	if err := s.writeLocked(doc); err != nil {
		return ServerRecord{}, err
	}

	rec := ServerRecord{ID: server.Name, Name: server.Name, Config: server.Config}
	if fp, err := mcpprov.MarshalServerConfig(server.Config); err == nil {
		s.synced[rec.ID] = string(fp)
	}
	return rec, nil
}

func (s *FileConfigStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := doc.servers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(doc.servers, id)
	delete(s.synced, id)
	return s.writeLocked(doc)
}

func (s *FileConfigStorage) Has(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return false, err
	}
	_, ok := doc.servers[id]
	return ok, nil
}

func (s *FileConfigStorage) Get(ctx context.Context, id string) (*ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	raw, ok := doc.servers[id]
	if !ok {
		return nil, nil
	}
	cfg, err := s.decodeEntry(id, raw)
	if err != nil {
		return nil, err
	}
	return &ServerRecord{ID: id, Name: id, Config: cfg}, nil
}

// Sync re-reads the file and applies what changed since the last load to
// the manager: new or edited entries are (re)added, vanished ones removed.
// Every change is attempted; the failures are joined.
func (s *FileConfigStorage) Sync(ctx context.Context) error {
	s.mu.Lock()
	manager := s.manager
	if manager == nil {
		s.mu.Unlock()
		return errors.New("sync: storage has not been initialized by a manager")
	}
	records, err := s.loadLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.synced
	s.synced = fingerprints(records)
	s.mu.Unlock()

	var errs []error
	current := make(map[string]bool, len(records))
	for _, rec := range records {
		current[rec.ID] = true
		fp, _ := mcpprov.MarshalServerConfig(rec.Config)
		if old, ok := prev[rec.ID]; ok && old == string(fp) {
			continue
		}
		s.logger.WithField("server", rec.Name).Info("Applying config change from file")
		if err := manager.AddClient(ctx, rec.ID, rec.Name, rec.Config); err != nil {
			errs = append(errs, fmt.Errorf("adding %s: %w", rec.Name, err))
		}
	}

	removed := make([]string, 0)
	for id := range prev {
		if !current[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		s.logger.WithField("server", id).Info("Removing server deleted from file")
		if err := manager.RemoveClient(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func fingerprints(records []ServerRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		if fp, err := mcpprov.MarshalServerConfig(rec.Config); err == nil {
			out[rec.ID] = string(fp)
		}
	}
	return out
}

type fileFormat int

const (
	formatJSON fileFormat = iota
	formatYAML
	formatTOML
)

func formatOf(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	default:
		return 0, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

// document is the decoded file. wrapped records whether the servers sat
// under an "mcpServers" key, so writes keep the layout.
type document struct {
	servers map[string]any
	wrapped bool
}

func (s *FileConfigStorage) readLocked() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{servers: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &document{servers: map[string]any{}}, nil
	}

	format, _ := formatOf(s.path)
	top := map[string]any{}
	switch format {
	case formatJSON:
		err = json.Unmarshal(data, &top)
	case formatYAML:
		err = yaml.Unmarshal(data, &top)
	case formatTOML:
		err = toml.Unmarshal(data, &top)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", s.path, err)
	}
	if top == nil {
		top = map[string]any{}
	}

	if inner, ok := top[serversKey].(map[string]any); ok && len(top) == 1 {
		return &document{servers: inner, wrapped: true}, nil
	}
	return &document{servers: top}, nil
}

func (s *FileConfigStorage) writeLocked(doc *document) error {
	var top map[string]any = doc.servers
	if doc.wrapped {
		top = map[string]any{serversKey: doc.servers}
	}

	format, _ := formatOf(s.path)
	var (
		data []byte
		err  error
	)
	switch format {
	case formatJSON:
		data, err = json.MarshalIndent(top, "", "  ")
		data = append(data, '\n')
	case formatYAML:
		data, err = yaml.Marshal(top)
	case formatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(top)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encoding config file %q: %w", s.path, err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing config file %q: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file %q: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config file %q: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing config file %q: %w", s.path, err)
	}
	return nil
}
