package geyser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Query client defaults.
const (
	DefaultQueryTimeout    = 10 * time.Second
	DefaultQueryRetries    = 3
	DefaultQueryRetryDelay = 500 * time.Millisecond
	DefaultQueryMaxDelay   = 5 * time.Second
)

// QueryClient performs the one-shot unary calls of the service over JSON-RPC
// 2.0. It shares the endpoint and token configuration with the streaming
// client but holds no stream state.
type QueryClient struct {
	endpoint   string
	token      string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	requestID  atomic.Uint64
}

// QueryOption configures a QueryClient.
type QueryOption func(*QueryClient)

// WithQueryTimeout bounds each HTTP round trip.
func WithQueryTimeout(d time.Duration) QueryOption {
	return func(c *QueryClient) { c.client.Timeout = d }
}

// WithQueryRetries sets the retry attempt cap.
func WithQueryRetries(n int) QueryOption {
	return func(c *QueryClient) { c.maxRetries = n }
}

// WithQueryHTTPClient substitutes the HTTP client.
func WithQueryHTTPClient(client *http.Client) QueryOption {
	return func(c *QueryClient) { c.client = client }
}

// NewQueryClient creates a unary query client for endpoint, authenticating
// with token when non-empty.
func NewQueryClient(endpoint, token string, opts ...QueryOption) *QueryClient {
	c := &QueryClient{
		endpoint:   endpoint,
		token:      token,
		client:     &http.Client{Timeout: DefaultQueryTimeout},
		maxRetries: DefaultQueryRetries,
		retryDelay: DefaultQueryRetryDelay,
		maxDelay:   DefaultQueryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC method with bounded retries and exponential
// backoff. Transport failures after the final attempt surface as a
// TransportError; RPC-level errors are returned as-is and never retried.
func (c *QueryClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set(tokenHeader, c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{Endpoint: c.endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return &TransportError{Op: method, Err: lastErr}
}

func commitmentParam(level CommitmentLevel) map[string]interface{} {
	return map[string]interface{}{"commitment": level.String()}
}

// LatestBlockhash is the result of GetLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	Slot                 uint64 `json:"-"`
}

// GetLatestBlockhash returns the most recent blockhash at the commitment
// level, with the slot it was observed at.
func (c *QueryClient) GetLatestBlockhash(ctx context.Context, commitment CommitmentLevel) (*LatestBlockhash, error) {
	var result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value LatestBlockhash `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{commitmentParam(commitment)}, &result); err != nil {
		return nil, err
	}
	out := result.Value
	out.Slot = result.Context.Slot
	return &out, nil
}

// GetBlockHeight returns the current block height at the commitment level.
func (c *QueryClient) GetBlockHeight(ctx context.Context, commitment CommitmentLevel) (uint64, error) {
	var height uint64
	if err := c.call(ctx, "getBlockHeight", []interface{}{commitmentParam(commitment)}, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetSlot returns the current slot at the commitment level.
func (c *QueryClient) GetSlot(ctx context.Context, commitment CommitmentLevel) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", []interface{}{commitmentParam(commitment)}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// IsBlockhashValid reports whether blockhash is still usable to land a
// transaction at the commitment level.
func (c *QueryClient) IsBlockhashValid(ctx context.Context, blockhash string, commitment CommitmentLevel) (bool, error) {
	if err := ValidateBlockhash(blockhash); err != nil {
		return false, &ValidationError{Field: "blockhash", Reason: err.Error()}
	}

	var result struct {
		Value bool `json:"value"`
	}
	if err := c.call(ctx, "isBlockhashValid", []interface{}{blockhash, commitmentParam(commitment)}, &result); err != nil {
		return false, err
	}
	return result.Value, nil
}

// GetHealth returns "ok" when the node is healthy, or the node's reported
// condition otherwise.
func (c *QueryClient) GetHealth(ctx context.Context) (string, error) {
	var status string
	if err := c.call(ctx, "getHealth", nil, &status); err != nil {
		return "", err
	}
	return status, nil
}

// GetVersion returns the node's software version string.
func (c *QueryClient) GetVersion(ctx context.Context) (string, error) {
	var result struct {
		SolanaCore string `json:"solana-core"`
	}
	if err := c.call(ctx, "getVersion", nil, &result); err != nil {
		return "", err
	}
	return result.SolanaCore, nil
}
