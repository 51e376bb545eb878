package daemon

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vaultsearch/vaultsearch/internal/errors"
	"github.com/vaultsearch/vaultsearch/internal/search"
)

// Client talks to a running daemon over its unix socket. Each call
// opens one connection, sends one request, and reads one response.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a client for the daemon socket at socketPath.
// timeout bounds connection establishment and each round trip.
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// IsRunning reports whether something is accepting on the socket.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping verifies the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var result map[string]bool
	return c.call(ctx, MethodPing, nil, &result)
}

// Search runs one query through the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]search.Hit, error) {
	var result SearchResult
	if err := c.call(ctx, MethodSearch, params, &result); err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// Status fetches the daemon's status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Update asks the daemon for an immediate index refresh.
func (c *Client) Update(ctx context.Context) (*UpdateResult, error) {
	var result UpdateResult
	if err := c.call(ctx, MethodUpdate, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return errors.Wrap(errors.KindChannel, "connect to daemon", err).
			WithPath(c.socketPath).
			WithSuggestion("run 'vaultsearch serve' to start it")
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return errors.Wrap(errors.KindChannel, "set connection deadline", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(errors.KindInternal, "encode request params", err)
		}
		req.Params = data
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return errors.Wrap(errors.KindChannel, "send request", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return errors.Wrap(errors.KindChannel, "read response", err)
	}
	if resp.Error != nil {
		return errors.Newf(errors.KindChannel, "daemon error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return errors.Wrap(errors.KindChannel, "decode response", err)
		}
	}
	return nil
}

func (c *Client) nextID() string {
	return strconv.FormatUint(c.requestID.Add(1), 10)
}
