package mcp

import "errors"

var (
	// ErrNotConnected is returned when using a transport before Connect or
	// after Close.
	ErrNotConnected = errors.New("mcp: server not connected")

	// ErrServerNotFound is returned for a server name the Manager does not
	// know.
	ErrServerNotFound = errors.New("mcp: server not found")

	// ErrToolNotFound is returned when a bridged tool name cannot be
	// resolved to a known server and tool pair.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrInvalidConfig is returned when a ServerConfig is missing required
	// fields for its transport type.
	ErrInvalidConfig = errors.New("mcp: invalid server config")
)
