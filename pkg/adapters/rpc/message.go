// Package rpc speaks the node's JSON-RPC dialect over websocket: a Client, a core.Node
// built on it, and a Server exposing an in-process chain with the same methods.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Methods used by the registry.
const (
	MethodDomainCount      = "getKittyCount_get"
	MethodGetStorage       = "state_getStorage"
	MethodGetKeysPaged     = "state_getKeysPaged"
	MethodSubscribeStorage = "state_subscribeStorage"
	MethodUnsubscribe      = "state_unsubscribeStorage"
	NotifyStorage          = "state_storage"
	MethodSubmitAndWatch   = "author_submitAndWatchExtrinsic"
	MethodUnwatch          = "author_unwatchExtrinsic"
	NotifyExtrinsic        = "author_extrinsicUpdate"
	MethodChainHead        = "chain_getFinalizedHead"
	MethodSystemChain      = "system_chain"
)

// Error codes.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	// CodeInvalidTransaction is returned when the pool rejects an extrinsic.
	CodeInvalidTransaction = 1010
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription string `json:"subscription"`
	Result       any    `json:"result"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// storageChangeSet is the payload of a state_storage notification.
type storageChangeSet struct {
	Block   string       `json:"block"`
	Changes [][2]*string `json:"changes"`
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return raw, nil
}
