package platform

import (
	"log/slog"

	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/adapters/rpc"
	"github.com/aretw0/registrar/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterRPC    = "rpc"
	AdapterMemory = "memory"
)

// options holds the internal configuration for a registry client.
type options struct {
	node        core.Node
	logger      *slog.Logger
	adapter     string
	account     core.AccountID
	eventBuffer int
	builder     rpc.ExtrinsicBuilder
	memory      memnode.Config
	observer    func(core.TxState)
}

// Option defines a functional option for configuring a registry client.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter: AdapterRPC,
	}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNode injects a node implementation (e.g. a fake). The adapter is skipped.
func WithNode(node core.Node) Option {
	return func(o *options) {
		o.node = node
	}
}

// WithAdapter selects the node adapter by name: "rpc" (default) or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithAccount selects the local account.
func WithAccount(account core.AccountID) Option {
	return func(o *options) {
		o.account = account
	}
}

// WithEventBuffer sets the snapshot buffer of each watcher.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithExtrinsicBuilder sets how the rpc adapter encodes extrinsics.
func WithExtrinsicBuilder(b rpc.ExtrinsicBuilder) Option {
	return func(o *options) {
		o.builder = b
	}
}

// WithMemoryConfig configures the in-process chain used by the memory adapter.
func WithMemoryConfig(cfg memnode.Config) Option {
	return func(o *options) {
		o.memory = cfg
	}
}

// WithStatusObserver is told about every transaction state a dispatch enters.
func WithStatusObserver(fn func(core.TxState)) Option {
	return func(o *options) {
		o.observer = fn
	}
}
