package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// httpTransport posts each JSON-RPC request to <baseURL>/rpc.
type httpTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an MCP client for a remote server reachable over
// plain HTTP.
func NewHTTPClient(name, baseURL string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	t := &httpTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	logger.Info("created MCP HTTP client", "name", name, "url", baseURL)
	return newRPCClient(name, "http", t, logger), nil
}

func (t *httpTransport) roundTrip(ctx context.Context, request JSONRPCRequest) (*JSONRPCResponse, error) {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/rpc", bytes.NewBuffer(requestJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	var response JSONRPCResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &response, nil
}

func (t *httpTransport) close() error { return nil }
