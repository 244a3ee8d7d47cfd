package client

import (
	"errors"
	"fmt"
)

// ConfigurationError signals that the server cannot be used until its
// configuration is fixed and the client refreshed.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// Name is reported in the "name" field of error results.
func (e *ConfigurationError) Name() string { return "ConfigurationError" }

var (
	// ErrServerErrorState is returned for calls made while the last connect failed.
	ErrServerErrorState error = &ConfigurationError{
		Message: "MCP server is currently in an error state. Please check the configuration and try refreshing the server.",
	}
	// ErrNotConnected means no session was available after connecting.
	ErrNotConnected = errors.New("failed to establish connection to MCP server")
	// ErrNullResult means the server answered a call without a result.
	ErrNullResult = errors.New("tool call failed with null")
)

// ToolExecutionError carries an error a tool reported in its own result.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tool %s reported an error", e.Tool)
	}
	return e.Message
}

func (e *ToolExecutionError) Name() string { return "ToolExecutionError" }
