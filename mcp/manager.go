package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// BridgedTool is an MCP tool prepared for registration in a tool registry,
// namespaced to avoid collisions across servers.
type BridgedTool struct {
	ServerName  string
	ToolName    string
	FullName    string // mcp__{server}__{tool}
	Description string
	InputSchema json.RawMessage
}

// BridgeToolName returns the namespaced registry name for an MCP tool.
func BridgeToolName(serverName, toolName string) string {
	return "mcp__" + serverName + "__" + toolName
}

// splitBridgeName reverses BridgeToolName.
func splitBridgeName(fullName string) (server, tool string, ok bool) {
	rest, found := strings.CutPrefix(fullName, "mcp__")
	if !found {
		return "", "", false
	}
	server, tool, found = strings.Cut(rest, "__")
	if !found || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// newTransport is swapped out by tests to inject a fake Transport.
var newTransport = NewTransport

type serverConn struct {
	config    ServerConfig
	transport Transport
	tools     []ToolInfo
}

// Manager holds connections to the configured MCP servers and routes bridged
// tool calls to the right one. Safe for concurrent use after Connect.
type Manager struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	servers map[string]*serverConn
}

// NewManager creates an empty Manager. A nil logger discards log output.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{logger: logger, servers: make(map[string]*serverConn)}
}

// Connect establishes connections to all given servers and discovers their
// tools. Any failure closes what already connected and returns the error;
// a partially wired tool surface is worse than a clean startup failure.
func (m *Manager) Connect(ctx context.Context, configs []ServerConfig) error {
	for _, cfg := range configs {
		if cfg.Name == "" {
			m.Close()
			return fmt.Errorf("%w: server name is empty", ErrInvalidConfig)
		}

		transport, err := newTransport(cfg)
		if err != nil {
			m.Close()
			return err
		}
		if err := transport.Connect(ctx); err != nil {
			m.Close()
			return fmt.Errorf("mcp: connect %s: %w", cfg.Name, err)
		}
		tools, err := transport.ListTools(ctx)
		if err != nil {
			transport.Close()
			m.Close()
			return fmt.Errorf("mcp: list tools on %s: %w", cfg.Name, err)
		}

		m.logger.Info("mcp server connected", "server", cfg.Name, "tools", len(tools))

		m.mu.Lock()
		m.servers[cfg.Name] = &serverConn{config: cfg, transport: transport, tools: tools}
		m.mu.Unlock()
	}
	return nil
}

// BridgedTools returns every discovered tool across all servers, namespaced
// and sorted by full name.
func (m *Manager) BridgedTools() []BridgedTool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BridgedTool
	for name, sc := range m.servers {
		for _, tl := range sc.tools {
			out = append(out, BridgedTool{
				ServerName:  name,
				ToolName:    tl.Name,
				FullName:    BridgeToolName(name, tl.Name),
				Description: tl.Description,
				InputSchema: tl.InputSchema,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// CallTool routes a bridged tool call to its server. The bool reports
// whether the server flagged the result as an error.
func (m *Manager) CallTool(ctx context.Context, fullName string, args json.RawMessage) (string, bool, error) {
	server, tool, ok := splitBridgeName(fullName)
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrToolNotFound, fullName)
	}

	m.mu.RLock()
	sc, found := m.servers[server]
	m.mu.RUnlock()
	if !found {
		return "", false, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return sc.transport.CallTool(ctx, tool, args)
}

// ServerNames returns the connected server names, sorted.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects all servers.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, sc := range m.servers {
		if err := sc.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.servers, name)
	}
	return firstErr
}
