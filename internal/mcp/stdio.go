package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// stdioTransport speaks newline-delimited JSON-RPC with a child process.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	logger *slog.Logger

	// readErr is set before lines is closed.
	readErr error
}

// serverCommand returns the command line for a local server. Python
// scripts run under python3; anything else is executed directly.
func serverCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 1 && strings.HasSuffix(fields[0], ".py") {
		return "python3", fields
	}
	return fields[0], fields[1:]
}

// NewStdioClient starts a local MCP server process and returns a client
// connected to its stdin and stdout.
func NewStdioClient(name, command string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty MCP server command")
	}

	bin, args := serverCommand(command)
	cmd := exec.Command(bin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start MCP server process: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	t := &stdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte),
		done:   make(chan struct{}),
		logger: logger,
	}
	go t.readLines(scanner)
	go t.logStderr(name, stderr)

	logger.Info("started MCP stdio client", "name", name, "command", command)
	return newRPCClient(name, "stdio", t, logger), nil
}

func (t *stdioTransport) roundTrip(ctx context.Context, request JSONRPCRequest) (*JSONRPCResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("client is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(requestJSON, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Servers may emit notifications; skip lines until our reply arrives.
	for {
		select {
		case <-ctx.Done():
			// A late reply would desynchronize the stream, so the process goes.
			t.shutdown()
			return nil, fmt.Errorf("no response to %s: %w", request.Method, ctx.Err())
		case line, ok := <-t.lines:
			if !ok {
				if t.readErr != nil {
					return nil, fmt.Errorf("failed to read response: %w", t.readErr)
				}
				return nil, fmt.Errorf("EOF from MCP server")
			}

			var response JSONRPCResponse
			if err := json.Unmarshal(line, &response); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
			if response.ID == request.ID {
				return &response, nil
			}
		}
	}
}

// readLines feeds stdout lines to roundTrip until the process exits or the
// transport closes.
func (t *stdioTransport) readLines(scanner *bufio.Scanner) {
	defer close(t.lines)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case t.lines <- line:
		case <-t.done:
			return
		}
	}
	t.readErr = scanner.Err()
}

func (t *stdioTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.shutdown()
	return nil
}

// shutdown kills the process. Callers hold t.mu.
func (t *stdioTransport) shutdown() {
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)

	t.stdin.Close()
	if t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil {
			t.logger.Warn("failed to kill MCP server process", "error", err)
		}
		t.cmd.Wait()
	}
}

func (t *stdioTransport) logStderr(name string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Warn("MCP server stderr", "server", name, "message", scanner.Text())
	}
}
