// Package mcp connects to external MCP (Model Context Protocol) tool servers
// over stdio and exposes their tools for bridging into the runtime's tool
// registry. Bridged tools are namespaced mcp__{server}__{tool}.
package mcp

// TransportType identifies the MCP transport protocol.
type TransportType string

const (
	// TransportStdio communicates with a subprocess over stdin/stdout.
	TransportStdio TransportType = "stdio"
)

// ServerConfig describes how to reach a single MCP server.
type ServerConfig struct {
	// Name identifies the server; it prefixes every bridged tool name.
	Name string

	// Command is the executable to spawn.
	Command string

	// Args are command-line arguments for the subprocess.
	Args []string

	// Env are extra environment variables for the subprocess, merged over
	// the parent environment.
	Env map[string]string

	// Transport selects the protocol. Empty defaults to stdio.
	Transport TransportType
}
