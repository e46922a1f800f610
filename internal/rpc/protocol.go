// Package rpc exposes the daemon's operation surface as newline-
// delimited JSON-RPC 2.0 over a Unix socket, with an optional loopback
// TCP listener as the alternate transport.
package rpc

import "encoding/json"

const jsonrpcVersion = "2.0"

// eventMethod is the method name of server-initiated change
// notifications sent to subscribed connections.
const eventMethod = "events.change"

// Request is one decoded request line.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one reply line. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is a server-initiated line pushed to subscribed
// connections. It carries no id and expects no reply.
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// Error is the JSON-RPC error object. Handlers may return one directly
// to pin the wire code; anything else goes through classifyError.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Application error codes. The ranges distinguish what the caller can
// do about the failure: fix the config, store credentials, correct the
// request, or retry later.
const (
	CodeConfig      = 1001
	CodeCredentials = 1002
	CodeNotFound    = 1004
	CodeUnavailable = 1005
	CodeConnection  = 1006
)
