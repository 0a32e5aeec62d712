package chain

import (
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

// rpcRequest is a JSON-RPC 2.0 call. The node takes positional params.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

func newRequest(id uint64, method string, params ...interface{}) rpcRequest {
	return rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params}
}

// rpcMessage is anything the node sends: a response carries ID with Result or Error,
// a subscription notification carries Method and Params.
type rpcMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// decodeResult returns the node's error or unmarshals the result into v.
func (m *rpcMessage) decodeResult(v interface{}) error {
	if m.Error != nil {
		return m.Error
	}
	if v == nil || len(m.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Result, v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// RPCError is a JSON-RPC 2.0 error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("node returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("node returned HTTP %d: %s", e.Code, e.Body)
}

// headNotification is the params object of chain_newHead.
type headNotification struct {
	Subscription string `json:"subscription"`
	Result       struct {
		Number string `json:"number"`
		Hash   string `json:"hash"`
	} `json:"result"`
}
