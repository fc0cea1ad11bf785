package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const protocolVersion = "2025-06-18"

// maxLineSize bounds a single JSON-RPC frame read from the server.
const maxLineSize = 16 * 1024 * 1024

// StdioTransport talks JSON-RPC 2.0 to a subprocess over newline-delimited
// frames on stdin/stdout, per the MCP stdio transport. Safe for concurrent
// calls; requests are correlated by ID.
type StdioTransport struct {
	command string
	args    []string
	env     map[string]string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	nextID    int64
	pending   map[int64]chan rpcResponse
	connected bool
}

var _ Transport = (*StdioTransport)(nil)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewStdioTransport creates a stdio transport. Returns ErrInvalidConfig if
// Command is empty.
func NewStdioTransport(cfg ServerConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
	}
	return &StdioTransport{
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		pending: make(map[int64]chan rpcResponse),
	}, nil
}

// Connect spawns the subprocess, starts the reader and performs the MCP
// initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) error {
	cmd := exec.Command(t.command, t.args...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp: start %s: %w", t.command, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.connected = true
	t.mu.Unlock()

	go t.readLoop(stdout)

	initParams, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "agentcore",
			"version": "0.1.0",
		},
	})
	if _, err := t.call(ctx, "initialize", initParams); err != nil {
		t.Close()
		return fmt.Errorf("mcp: initialize: %w", err)
	}
	if err := t.notify("notifications/initialized", nil); err != nil {
		t.Close()
		return fmt.Errorf("mcp: initialized notification: %w", err)
	}
	return nil
}

// readLoop decodes frames from the server and routes responses to their
// waiting callers. Notifications from the server are ignored.
func (t *StdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[*resp.ID]
		if ok {
			delete(t.pending, *resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	// Server went away; fail everything still waiting.
	t.mu.Lock()
	t.connected = false
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *StdioTransport) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	t.nextID++
	id := t.nextID
	ch := make(chan rpcResponse, 1)
	t.pending[id] = ch
	stdin := t.stdin
	t.mu.Unlock()

	if err := writeFrame(stdin, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp: %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (t *StdioTransport) notify(method string, params json.RawMessage) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	stdin := t.stdin
	t.mu.Unlock()
	return writeFrame(stdin, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func writeFrame(w io.Writer, req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ListTools sends tools/list and decodes the advertised tool set.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("mcp: decode tools/list: %w", err)
	}
	tools := make([]ToolInfo, len(parsed.Tools))
	for i, tl := range parsed.Tools {
		tools[i] = ToolInfo{Name: tl.Name, Description: tl.Description, InputSchema: tl.InputSchema}
	}
	return tools, nil
}

// CallTool sends tools/call and flattens the text content of the result.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args json.RawMessage) (string, bool, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	params, err := json.Marshal(map[string]json.RawMessage{
		"name":      json.RawMessage(fmt.Sprintf("%q", name)),
		"arguments": args,
	})
	if err != nil {
		return "", false, err
	}

	result, err := t.call(ctx, "tools/call", params)
	if err != nil {
		return "", false, err
	}
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return "", false, fmt.Errorf("mcp: decode tools/call: %w", err)
	}
	var sb strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), parsed.IsError, nil
}

// Close shuts the subprocess down: stdin closes first so a well-behaved
// server exits on EOF, then the process is killed if still alive.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if !t.connected && t.cmd == nil {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	stdin := t.stdin
	cmd := t.cmd
	t.cmd = nil
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
	return nil
}
