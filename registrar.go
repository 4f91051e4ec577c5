package registrar

import (
	"context"
	"log/slog"

	"github.com/aretw0/registrar/internal/platform"
	"github.com/aretw0/registrar/pkg/adapters/memnode"
	"github.com/aretw0/registrar/pkg/adapters/rpc"
	"github.com/aretw0/registrar/pkg/core"
)

// --- Types ---

// Client bundles the count subscriber, record fetcher and dispatcher over one node.
type Client = platform.Client

// Config is the on-disk configuration (registrar.yaml).
type Config = platform.Config

// --- Configuration ---

// Option defines a functional option for configuring a Client.
type Option = platform.Option

// DefaultEndpoint is the local node's websocket address.
const DefaultEndpoint = platform.DefaultEndpoint

// Adapter names.
const (
	AdapterRPC    = platform.AdapterRPC
	AdapterMemory = platform.AdapterMemory
)

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithNode injects a node implementation, skipping the adapter.
func WithNode(node core.Node) Option {
	return platform.WithNode(node)
}

// WithAdapter selects the node adapter by name ("rpc" or "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithAccount selects the local account.
func WithAccount(account core.AccountID) Option {
	return platform.WithAccount(account)
}

// WithEventBuffer sets the snapshot buffer of each watcher.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithExtrinsicBuilder sets how extrinsics are encoded for the rpc adapter.
func WithExtrinsicBuilder(b rpc.ExtrinsicBuilder) Option {
	return platform.WithExtrinsicBuilder(b)
}

// WithMemoryConfig configures the in-process chain of the memory adapter.
func WithMemoryConfig(cfg memnode.Config) Option {
	return platform.WithMemoryConfig(cfg)
}

// WithStatusObserver is told about every transaction state a dispatch enters.
func WithStatusObserver(fn func(core.TxState)) Option {
	return platform.WithStatusObserver(fn)
}

// --- Factory ---

// New connects to the registry at endpoint. Call Service.Start to begin syncing.
func New(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	return platform.New(ctx, endpoint, opts...)
}

// LoadConfig reads a registrar.yaml (missing is fine) and applies REGISTRAR_* overrides.
func LoadConfig(path string) (Config, error) {
	return platform.LoadConfig(path)
}

// FindConfig looks upwards from startDir for registrar.yaml.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}

// --- Safety & Utils ---

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// ResolveStatePath re-roots a dev node state file into the temp directory when forced.
func ResolveStatePath(userPath string, forceTemp bool) string {
	return platform.ResolveStatePath(userPath, forceTemp)
}
