package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/blake2b"

	"github.com/aretw0/registrar/pkg/core"
)

const defaultPageSize = 1000

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithBuilder sets how extrinsics are encoded and signed. Default is DevBuilder.
func WithBuilder(b ExtrinsicBuilder) NodeOption {
	return func(n *Node) {
		n.builder = b
	}
}

// WithNodeLogger sets the logger.
func WithNodeLogger(logger *slog.Logger) NodeOption {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithPageSize sets the page size used when enumerating storage keys.
func WithPageSize(size int) NodeOption {
	return func(n *Node) {
		if size > 0 {
			n.pageSize = size
		}
	}
}

// Node implements core.Node over a JSON-RPC connection.
type Node struct {
	client   *Client
	builder  ExtrinsicBuilder
	logger   *slog.Logger
	pageSize int
}

// NewNode wraps an open client.
func NewNode(client *Client, opts ...NodeOption) *Node {
	n := &Node{
		client:   client,
		builder:  DevBuilder{},
		logger:   slog.Default(),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Close closes the underlying connection.
func (n *Node) Close() error {
	return n.client.Close()
}

// DomainCount implements core.Node.
func (n *Node) DomainCount(ctx context.Context) (uint32, error) {
	var count uint32
	if err := n.client.Call(ctx, MethodDomainCount, []any{}, &count); err != nil {
		return 0, fmt.Errorf("%s: %w", MethodDomainCount, err)
	}
	return count, nil
}

// SubscribeCount implements core.Node.
func (n *Node) SubscribeCount(ctx context.Context, fn func(uint32)) (core.Subscription, error) {
	key := encodeHex(core.CountStorageKey())
	sub, err := n.subscribeStorage(ctx, []string{key}, func(changes map[string][]byte) {
		value, ok := changes[key]
		if !ok {
			return
		}
		count, err := core.DecodeCount(value)
		if err != nil {
			n.logger.Warn("undecodable domain count", "error", err)
			return
		}
		fn(count)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DomainKeys implements core.Node.
func (n *Node) DomainKeys(ctx context.Context) ([]core.DomainID, error) {
	prefix := encodeHex(core.DomainsPrefix())
	var ids []core.DomainID
	start := ""
	for {
		params := []any{prefix, n.pageSize}
		if start != "" {
			params = append(params, start)
		}
		var keys []string
		if err := n.client.Call(ctx, MethodGetKeysPaged, params, &keys); err != nil {
			return nil, fmt.Errorf("%s: %w", MethodGetKeysPaged, err)
		}
		for _, k := range keys {
			raw, err := decodeHex(k)
			if err != nil {
				return nil, err
			}
			id, err := core.DomainIDFromStorageKey(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if len(keys) < n.pageSize {
			return ids, nil
		}
		start = keys[len(keys)-1]
	}
}

// SubscribeDomains implements core.Node. The node only reports changed keys after the
// first notification, so the last known value of every key is kept here.
func (n *Node) SubscribeDomains(ctx context.Context, ids []core.DomainID, fn func([]*core.Domain)) (core.Subscription, error) {
	keys := make([]string, len(ids))
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		keys[i] = encodeHex(core.DomainStorageKey(id))
		index[keys[i]] = i
	}

	current := make([]*core.Domain, len(ids))
	sub, err := n.subscribeStorage(ctx, keys, func(changes map[string][]byte) {
		touched := false
		for key, value := range changes {
			i, ok := index[key]
			if !ok {
				continue
			}
			d, err := core.DecodeDomain(value)
			if err != nil {
				n.logger.Warn("undecodable domain record", "key", key, "error", err)
				d = nil
			}
			current[i] = d
			touched = true
		}
		if !touched {
			return
		}
		out := make([]*core.Domain, len(current))
		for i, d := range current {
			out[i] = d.Clone()
		}
		fn(out)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// subscribeStorage delivers decoded change sets keyed by lowercase hex key. A null value
// arrives as an empty slice.
func (n *Node) subscribeStorage(ctx context.Context, keys []string, fn func(map[string][]byte)) (*ClientSubscription, error) {
	sub, err := n.client.Subscribe(ctx, MethodSubscribeStorage, MethodUnsubscribe, []any{keys}, func(raw json.RawMessage) {
		var set storageChangeSet
		if err := json.Unmarshal(raw, &set); err != nil {
			n.logger.Warn("malformed storage notification", "error", err)
			return
		}
		changes := make(map[string][]byte, len(set.Changes))
		for _, change := range set.Changes {
			if change[0] == nil {
				continue
			}
			var value []byte
			if change[1] != nil {
				v, err := decodeHex(*change[1])
				if err != nil {
					n.logger.Warn("malformed storage value", "error", err)
					continue
				}
				value = v
			}
			changes[strings.ToLower(*change[0])] = value
		}
		fn(changes)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MethodSubscribeStorage, err)
	}
	unsubscribeOnDone(ctx, sub)
	return sub, nil
}

func unsubscribeOnDone(ctx context.Context, sub *ClientSubscription) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.Done():
		}
		return nil
	})
}

// Submit implements core.Node.
func (n *Node) Submit(ctx context.Context, xt core.Extrinsic) (core.TxWatch, error) {
	raw, err := n.builder.Build(xt)
	if err != nil {
		return nil, err
	}

	w := &txWatch{
		hash:    core.Hash(blake2b.Sum256(raw)),
		updates: make(chan core.TxStatus),
		stop:    make(chan struct{}),
		logger:  n.logger,
	}
	sub, err := n.client.Subscribe(ctx, MethodSubmitAndWatch, MethodUnwatch, []string{encodeHex(raw)}, w.handle)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.Code == CodeInvalidTransaction {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidTransaction, rpcErr.Data)
		}
		return nil, err
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		select {
		case <-sub.Done():
		case <-w.stop:
			sub.Unsubscribe()
		case <-ctx.Done():
			sub.Unsubscribe()
		}
		w.closeStream()
		return nil
	})
	return w, nil
}

// txWatch adapts author_extrinsicUpdate notifications to core.TxWatch.
type txWatch struct {
	hash    core.Hash
	updates chan core.TxStatus
	stop    chan struct{}
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (w *txWatch) Hash() core.Hash               { return w.hash }
func (w *txWatch) Updates() <-chan core.TxStatus { return w.updates }
func (w *txWatch) Unsubscribe()                  { w.closeStream() }

func (w *txWatch) closeStream() {
	w.once.Do(func() {
		close(w.stop)
		w.mu.Lock()
		w.closed = true
		close(w.updates)
		w.mu.Unlock()
	})
}

func (w *txWatch) handle(raw json.RawMessage) {
	st, err := ParseTxStatus(raw)
	if err != nil {
		w.logger.Warn("unknown extrinsic status", "status", string(raw), "error", err)
		return
	}

	w.mu.Lock()
	if !w.closed {
		select {
		case w.updates <- st:
		case <-w.stop:
		}
	}
	w.mu.Unlock()

	if st.Terminal() {
		w.closeStream()
	}
}

// ParseTxStatus decodes a transaction status notification, including the dev node's
// dispatchError extension.
func ParseTxStatus(raw []byte) (core.TxStatus, error) {
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.String {
		switch r.String() {
		case "future":
			return core.TxStatus{Kind: core.StatusFuture}, nil
		case "ready":
			return core.TxStatus{Kind: core.StatusReady}, nil
		case "dropped":
			return core.TxStatus{Kind: core.StatusDropped}, nil
		case "invalid":
			return core.TxStatus{Kind: core.StatusInvalid}, nil
		}
		return core.TxStatus{}, fmt.Errorf("unknown status %q", r.String())
	}
	if !r.IsObject() {
		return core.TxStatus{}, fmt.Errorf("unexpected status %s", r.Raw)
	}

	var st core.TxStatus
	switch {
	case r.Get("broadcast").Exists():
		st.Kind = core.StatusBroadcast
	case r.Get("inBlock").Exists():
		st.Kind = core.StatusInBlock
	case r.Get("retracted").Exists():
		st.Kind = core.StatusRetracted
	case r.Get("finalityTimeout").Exists():
		st.Kind = core.StatusFinalityTimeout
	case r.Get("finalized").Exists():
		st.Kind = core.StatusFinalized
	case r.Get("usurped").Exists():
		st.Kind = core.StatusUsurped
	default:
		return core.TxStatus{}, fmt.Errorf("unexpected status %s", r.Raw)
	}

	for _, field := range []string{"inBlock", "retracted", "finalityTimeout", "finalized"} {
		if v := r.Get(field); v.Type == gjson.String {
			h, err := core.ParseHash(v.String())
			if err != nil {
				return core.TxStatus{}, err
			}
			st.BlockHash = h
		}
	}

	if de := r.Get("dispatchError"); de.Exists() {
		st.Err = &core.DispatchError{Pallet: de.Get("pallet").String(), Name: de.Get("error").String()}
	}
	return st, nil
}

// ComponentType implements introspection.Component.
func (n *Node) ComponentType() string {
	return "rpc-node"
}

// NodeState exposes internal state for observability.
type NodeState struct {
	Endpoint      string `json:"endpoint"`
	Connected     bool   `json:"connected"`
	Error         string `json:"error,omitempty"`
	PageSize      int    `json:"page_size"`
	Subscriptions int    `json:"subscriptions"`
	Buffered      int    `json:"buffered"`
}

// State implements introspection.Introspectable.
func (n *Node) State() any {
	cs := n.client.State().(ClientState)
	return NodeState{
		Endpoint:      cs.Endpoint,
		Connected:     cs.Error == "",
		Error:         cs.Error,
		PageSize:      n.pageSize,
		Subscriptions: cs.Subscriptions,
		Buffered:      cs.Buffered,
	}
}

var _ core.Node = (*Node)(nil)
var _ introspection.Introspectable = (*Node)(nil)
var _ introspection.Component = (*Node)(nil)
