package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/salesync/internal/domain/replication"
)

// maxResponseSize caps the body read from the remote system (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Observer receives the latency of every remote call
type Observer interface {
	ObserveRPC(model, method string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRPC(string, string, time.Duration, error) {}

// Client calls execute_kw on the remote object service over JSON-RPC.
// It implements replication.Gateway.
type Client struct {
	endpoint string
	database string
	userID   int64
	password string

	http     *http.Client
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
	seq      atomic.Int64
}

var _ replication.Gateway = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Search returns the ids of records of model matching domain. A limit of
// zero returns every match.
func (c *Client) Search(ctx context.Context, model string, domain replication.Domain, limit int) ([]replication.RemoteID, error) {
	kwargs := map[string]any{}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	var ids []int64
	if err := c.execute(ctx, model, "search", []any{encodeDomain(domain)}, kwargs, &ids); err != nil {
		return nil, err
	}
	out := make([]replication.RemoteID, len(ids))
	for i, id := range ids {
		out[i] = replication.RemoteID(id)
	}
	return out, nil
}

// Create creates one record and returns its id
func (c *Client) Create(ctx context.Context, model string, values replication.Values) (replication.RemoteID, error) {
	var id int64
	if err := c.execute(ctx, model, "create", []any{encodeValues(values)}, nil, &id); err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %s.create returned id %d", replication.ErrRemoteRejected, model, id)
	}
	return replication.RemoteID(id), nil
}

// Write updates the given records with values
func (c *Client) Write(ctx context.Context, model string, ids []replication.RemoteID, values replication.Values) error {
	return c.mutate(ctx, model, "write", []any{remoteIDs(ids), encodeValues(values)})
}

// Unlink deletes the given records
func (c *Client) Unlink(ctx context.Context, model string, ids []replication.RemoteID) error {
	return c.mutate(ctx, model, "unlink", []any{remoteIDs(ids)})
}

func (c *Client) mutate(ctx context.Context, model, method string, args []any) error {
	var ok bool
	if err := c.execute(ctx, model, method, args, nil, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s.%s returned false", replication.ErrRemoteRejected, model, method)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) (err error) {
	start := time.Now()
	defer func() {
		c.observer.ObserveRPC(model, method, time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return unreachable("rate limiter: %v", err)
	}

	if kwargs == nil {
		kwargs = map[string]any{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		ID:      c.seq.Add(1),
		Params: rpcParams{
			Service: "object",
			Method:  "execute_kw",
			Args:    []any{c.database, c.userID, c.password, model, method, args, kwargs},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gateway: encode %s.%s: %w", model, method, err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		resp.Error.Model = model
		resp.Error.Method = method
		return resp.Error
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: %s.%s: unexpected result %s", replication.ErrRemoteRejected, model, method, truncate(resp.Result))
	}

	c.logger.Debug("remote call",
		zap.String("model", model),
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (*rpcResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, unreachable("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, unreachable("%v", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, unreachable("read response: %v", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, unreachable("HTTP %d", httpResp.StatusCode)
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, unreachable("malformed response %s: %v", truncate(raw), err)
	}
	return &resp, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
