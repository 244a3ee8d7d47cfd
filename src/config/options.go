package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Environment variables read by FromEnv.
const (
	EnvAutoDisconnectSeconds = "MCP_AUTO_DISCONNECT_SECONDS"
	EnvConnectTimeoutMs      = "MCP_CONNECT_TIMEOUT_MS"
	EnvAddTimeoutMs          = "MCP_ADD_TIMEOUT_MS"
	EnvRemoteOnly            = "IS_MCP_SERVER_REMOTE_ONLY"
	EnvNotAllowAddServers    = "NOT_ALLOW_ADD_MCP_SERVERS"
	EnvConfigPath            = "MCP_CONFIG_PATH"
	EnvSQLitePath            = "MCP_SQLITE_PATH"
	EnvStorage               = "MCP_STORAGE"
	EnvLogLevel              = "LOG_LEVEL"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Options holds the manager settings resolved from variables.
type Options struct {
	AutoDisconnect  time.Duration
	ConnectTimeout  time.Duration
	AddTimeout      time.Duration
	RemoteOnly      bool
	AllowAddServers bool

	// Storage selects the backend; empty picks one from the paths below.
	Storage    string
	ConfigPath string
	SQLitePath string

	LogLevel string

	// Resolver backs FromEnv and ${VAR} substitution in config files.
	Resolver *Resolver
}

// NewOptions returns the defaults.
func NewOptions() *Options {
	return &Options{
		AutoDisconnect:  5 * time.Minute,
		ConnectTimeout:  15 * time.Second,
		AddTimeout:      20 * time.Second,
		AllowAddServers: true,
		LogLevel:        "info",
		Resolver:        NewResolver(nil),
	}
}

// FromEnv resolves Options through a Resolver built from vars and sources.
// Unset variables keep their defaults; malformed values are errors.
func FromEnv(vars map[string]string, sources ...VariablesSource) (*Options, error) {
	o := NewOptions()
	o.Resolver = NewResolver(vars, sources...)
	r := o.Resolver

	if v, ok := r.Lookup(EnvAutoDisconnectSeconds); ok {
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAutoDisconnectSeconds, err)
		}
		o.AutoDisconnect = time.Duration(secs) * time.Second
	}
	if v, ok := r.Lookup(EnvConnectTimeoutMs); ok {
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvConnectTimeoutMs, err)
		}
		o.ConnectTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := r.Lookup(EnvAddTimeoutMs); ok {
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAddTimeoutMs, err)
		}
		o.AddTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := r.Lookup(EnvRemoteOnly); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRemoteOnly, err)
		}
		o.RemoteOnly = b
	}
	if v, ok := r.Lookup(EnvNotAllowAddServers); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvNotAllowAddServers, err)
		}
		o.AllowAddServers = !b
	}
	if v, ok := r.Lookup(EnvStorage); ok {
		switch v {
		case StorageMemory, StorageFile, StorageSQLite:
			o.Storage = v
		default:
			return nil, fmt.Errorf("invalid %s: unknown storage %q", EnvStorage, v)
		}
	}
	if v, ok := r.Lookup(EnvConfigPath); ok {
		o.ConfigPath = v
	}
	if v, ok := r.Lookup(EnvSQLitePath); ok {
		o.SQLitePath = v
	}
	if v, ok := r.Lookup(EnvLogLevel); ok {
		if _, err := logrus.ParseLevel(v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
		}
		o.LogLevel = v
	}
	return o, nil
}

// StorageKind returns the backend to use: the explicit choice, else sqlite
// when a database path is set, else file when a config path is set, else
// memory.
func (o *Options) StorageKind() string {
	switch {
	case o.Storage != "":
		return o.Storage
	case o.SQLitePath != "":
		return StorageSQLite
	case o.ConfigPath != "":
		return StorageFile
	default:
		return StorageMemory
	}
}

// Level parses LogLevel, falling back to info.
func (o *Options) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
