package daemon

import (
	"encoding/json"

	"github.com/vaultsearch/vaultsearch/internal/search"
)

// Method names. One request per connection.
const (
	MethodPing   = "ping"
	MethodStatus = "status"
	MethodSearch = "search"
	MethodUpdate = "update"
)

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeNotReady      = -32001
	ErrCodeSearchFailed  = -32002
	ErrCodeUpdateFailed  = -32003
	ErrCodeIndexMissing  = -32004
	ErrCodeShuttingDown  = -32005
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func successResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, ErrCodeInternalError, "encode result: "+err.Error())
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

func errorResponse(id string, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id}
}

// SearchParams carry one query.
type SearchParams struct {
	Query    string  `json:"query"`
	TopN     int     `json:"top_n,omitempty"`
	Fast     bool    `json:"fast,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResult is the search method's result payload.
type SearchResult struct {
	Hits []search.Hit `json:"hits"`
}

// StatusResult describes the daemon's current state.
type StatusResult struct {
	State         string `json:"state"`
	PID           int    `json:"pid"`
	Uptime        string `json:"uptime"`
	VaultPath     string `json:"vault_path"`
	Documents     int    `json:"documents"`
	Chunks        int    `json:"chunks"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	IndexBuiltAt  string `json:"index_built_at,omitempty"`
	LastRefresh   string `json:"last_refresh,omitempty"`
	RefreshEvery  string `json:"refresh_every"`
}

// UpdateResult reports one refresh.
type UpdateResult struct {
	Added      int    `json:"added"`
	Changed    int    `json:"changed"`
	Removed    int    `json:"removed"`
	Unchanged  int    `json:"unchanged"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
	Full       bool   `json:"full"`
}
