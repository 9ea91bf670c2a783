// Package rpc provides the JSON-RPC broadcast client for signed transactions.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Client submits signed payloads to a JSON-RPC node. It implements
// domain.Broadcaster. Timeouts are the caller's responsibility via ctx;
// the client itself never retries.
type Client struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewClient creates a new broadcast client for the given JSON-RPC endpoint
func NewClient(endpoint string, log zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{},
		log:      log.With().Str("client", "broadcast_rpc").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Submit broadcasts a signed raw transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, chainID int64, signedPayload string) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendRawTransaction",
		Params:  []any{signedPayload},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a short error body for diagnostics, nodes often return
		// plain-text errors on non-200.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("broadcast node returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse broadcast response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("broadcast rejected by node (code %d): %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result == "" {
		return "", fmt.Errorf("broadcast response missing transaction hash")
	}

	c.log.Info().
		Int64("chain_id", chainID).
		Str("tx_hash", parsed.Result).
		Msg("Transaction broadcast")

	return parsed.Result, nil
}
