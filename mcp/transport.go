package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Transport is the wire protocol to one MCP server.
type Transport interface {
	// Connect establishes the connection and performs the MCP handshake.
	Connect(ctx context.Context) error

	// ListTools discovers the server's tools.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool by name. The second return value reports
	// whether the server flagged the result as an error.
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, bool, error)

	// Close tears down the connection and releases resources.
	Close() error
}

// NewTransport creates a Transport for the config's transport type.
func NewTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio, "":
		return NewStdioTransport(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", ErrInvalidConfig, cfg.Transport)
	}
}
