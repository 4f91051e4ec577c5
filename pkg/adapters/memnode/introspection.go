package memnode

import (
	"github.com/aretw0/introspection"
)

// NodeState exposes internal state for observability.
type NodeState struct {
	Block         uint64 `json:"block"`
	Head          string `json:"head"`
	Domains       uint32 `json:"domains"`
	Accounts      int    `json:"accounts"`
	Pending       int    `json:"pending"`
	Subscriptions int    `json:"subscriptions"`
	Watches       int    `json:"watches"`
	Sealed        uint64 `json:"sealed"`
	Failed        uint64 `json:"failed_extrinsics"`
	BlockTime     string `json:"block_time"`
	StateFile     string `json:"state_file,omitempty"`
	Closed        bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (n *Node) State() any {
	n.mu.Lock()
	defer n.mu.Unlock()

	blockTime := "instant"
	if n.config.BlockTime > 0 {
		blockTime = n.config.BlockTime.String()
	}

	return NodeState{
		Block:         n.number,
		Head:          n.head.String(),
		Domains:       n.state.count,
		Accounts:      len(n.state.balances),
		Pending:       len(n.pool),
		Subscriptions: len(n.countSubs) + len(n.recSubs),
		Watches:       len(n.watches),
		Sealed:        n.sealed,
		Failed:        n.failed,
		BlockTime:     blockTime,
		StateFile:     n.config.StateFile,
		Closed:        n.closed,
	}
}

// ComponentType implements introspection.Component.
func (n *Node) ComponentType() string {
	return "memnode"
}

var _ introspection.Introspectable = (*Node)(nil)
var _ introspection.Component = (*Node)(nil)
