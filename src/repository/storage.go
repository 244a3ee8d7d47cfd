package repository

import (
	"context"
	"errors"

	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("server config not found")

// ServerInsert is a config to persist. An empty ID asks the storage to
// assign one; a known ID updates that record.
type ServerInsert struct {
	ID     string               `json:"id,omitempty"`
	Name   string               `json:"name"`
	Config mcpprov.ServerConfig `json:"config"`
}

// ServerRecord is a persisted config.
type ServerRecord struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Config mcpprov.ServerConfig `json:"config"`
}

// ClientManager is the part of the manager a storage may drive, e.g. to
// apply edits made outside the process.
type ClientManager interface {
	AddClient(ctx context.Context, id, name string, cfg mcpprov.ServerConfig) error
	RemoveClient(ctx context.Context, id string) error
}

// ConfigStorage is the source of truth for persisted server configs.
type ConfigStorage interface {
	// Init is called once by the manager before LoadAll.
	Init(ctx context.Context, manager ClientManager) error
	LoadAll(ctx context.Context) ([]ServerRecord, error)
	Save(ctx context.Context, server ServerInsert) (ServerRecord, error)
	// Delete returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error
	Has(ctx context.Context, id string) (bool, error)
	// Get returns nil, nil for unknown ids.
	Get(ctx context.Context, id string) (*ServerRecord, error)
}
