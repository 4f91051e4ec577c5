package memnode

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"golang.org/x/crypto/blake2b"

	"github.com/aretw0/registrar/internal/deliver"
	"github.com/aretw0/registrar/pkg/core"
	"github.com/aretw0/registrar/pkg/scale"
)

// Node is an in-memory chain. It is safe for concurrent use.
type Node struct {
	config  Config
	runtime *runtime
	logger  *slog.Logger

	mu        sync.Mutex
	state     *chainState
	number    uint64
	head      core.Hash
	nonce     uint64
	pool      []*pending
	countSubs map[*countSub]struct{}
	recSubs   map[*recordsSub]struct{}
	watches   map[*txWatch]struct{}
	closed    bool
	author    stopper
	sealed    uint64
	failed    uint64
}

type stopper interface {
	Stop(ctx context.Context) error
}

type pending struct {
	xt    core.Extrinsic
	watch *txWatch
}

type countSub struct {
	box *deliver.Queue
	fn  func(uint32)
}

type recordsSub struct {
	box *deliver.Queue
	ids []core.DomainID
	fn  func([]*core.Domain)
}

// New creates a dev chain at genesis, or at the state stored in config.StateFile.
func New(config Config) (*Node, error) {
	config = config.withDefaults()
	n := &Node{
		config: config,
		runtime: &runtime{
			maxOwned: config.MaxDomainOwned,
			ed:       config.ExistentialDeposit,
			sudo:     config.SudoKey,
			now:      config.Now,
		},
		logger:    config.Logger,
		state:     newChainState(),
		countSubs: make(map[*countSub]struct{}),
		recSubs:   make(map[*recordsSub]struct{}),
		watches:   make(map[*txWatch]struct{}),
	}
	for a, b := range config.Endowed {
		n.state.balances[a] = new(big.Int).Set(b)
	}

	if config.StateFile != "" {
		loaded, err := loadState(config.StateFile)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			n.state = loaded.state
			n.number = loaded.number
			n.head = loaded.head
			n.logger.Info("state restored", "file", config.StateFile, "block", n.number, "domains", n.state.count)
		}
	}
	return n, nil
}

// Start begins authoring blocks every BlockTime. With a zero BlockTime blocks are sealed
// on submission and Start is a no-op.
func (n *Node) Start(ctx context.Context) error {
	if n.config.BlockTime <= 0 {
		return nil
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return core.ErrClosed
	}
	if n.author != nil {
		n.mu.Unlock()
		return fmt.Errorf("block author already running")
	}
	interval := n.config.BlockTime
	sup := supervisor.New("memnode", supervisor.StrategyOneForOne, supervisor.Spec{
		Name: "block-author",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newAuthorWorker(n, interval), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: interval,
			MaxInterval:     10 * interval,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     5,
			MaxDuration:     10 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	})
	n.author = sup
	n.mu.Unlock()
	return sup.Start(ctx)
}

// Close stops authoring and ends every subscription.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	author := n.author
	for s := range n.countSubs {
		s.box.Close()
	}
	for s := range n.recSubs {
		s.box.Close()
	}
	watches := make([]*txWatch, 0, len(n.watches))
	for w := range n.watches {
		watches = append(watches, w)
	}
	n.countSubs = map[*countSub]struct{}{}
	n.recSubs = map[*recordsSub]struct{}{}
	n.mu.Unlock()

	for _, w := range watches {
		w.Unsubscribe()
	}
	if author != nil {
		return author.Stop(context.Background())
	}
	return nil
}

// DomainCount implements core.Node.
func (n *Node) DomainCount(ctx context.Context) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return 0, core.ErrClosed
	}
	return n.state.count, nil
}

// SubscribeCount implements core.Node.
func (n *Node) SubscribeCount(ctx context.Context, fn func(uint32)) (core.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, core.ErrClosed
	}
	s := &countSub{box: deliver.New(ctx, n.deliveryPanic), fn: fn}
	n.countSubs[s] = struct{}{}
	count := n.state.count
	s.box.Post(func() { fn(count) })

	return core.NewSubscription(func() {
		n.mu.Lock()
		delete(n.countSubs, s)
		n.mu.Unlock()
		s.box.Close()
	}), nil
}

// DomainKeys implements core.Node.
func (n *Node) DomainKeys(ctx context.Context) ([]core.DomainID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, core.ErrClosed
	}
	return slices.Clone(n.state.order), nil
}

// SubscribeDomains implements core.Node.
func (n *Node) SubscribeDomains(ctx context.Context, ids []core.DomainID, fn func([]*core.Domain)) (core.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, core.ErrClosed
	}
	s := &recordsSub{box: deliver.New(ctx, n.deliveryPanic), ids: slices.Clone(ids), fn: fn}
	n.recSubs[s] = struct{}{}
	records := n.lookupLocked(s.ids)
	s.box.Post(func() { fn(records) })

	return core.NewSubscription(func() {
		n.mu.Lock()
		delete(n.recSubs, s)
		n.mu.Unlock()
		s.box.Close()
	}), nil
}

func (n *Node) lookupLocked(ids []core.DomainID) []*core.Domain {
	out := make([]*core.Domain, len(ids))
	for i, id := range ids {
		out[i] = n.state.domains[id].Clone()
	}
	return out
}

func (n *Node) deliveryPanic(err error) {
	n.logger.Error("subscriber panic", "error", err)
}

// Submit implements core.Node. Transactions that cannot be included are rejected here.
func (n *Node) Submit(ctx context.Context, xt core.Extrinsic) (core.TxWatch, error) {
	spec, err := core.LookupCall(xt.Call.Pallet, xt.Call.Method)
	if err != nil {
		return nil, err
	}
	// Arguments that could not travel over the wire are refused at the pool.
	if err := spec.EncodeArgs(scale.NewEncoder(), xt.Call); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidTransaction, xt.Call, err)
	}
	if xt.Mode == core.Unsigned {
		return nil, fmt.Errorf("%w: unsigned %s is not accepted", core.ErrInvalidTransaction, xt.Call)
	}
	if xt.Signer.IsZero() {
		return nil, fmt.Errorf("%w: missing signer", core.ErrInvalidTransaction)
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, core.ErrClosed
	}
	if bal, ok := n.state.balances[xt.Signer]; !ok || bal.Sign() == 0 {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: inability to pay some fees", core.ErrInvalidTransaction)
	}
	n.nonce++
	hash := extrinsicHash(xt, n.nonce)
	w := newTxWatch(ctx, hash, n.forgetWatch)
	n.watches[w] = struct{}{}
	n.pool = append(n.pool, &pending{xt: xt, watch: w})
	instant := n.config.BlockTime <= 0
	n.mu.Unlock()

	w.push(core.TxStatus{Kind: core.StatusReady})
	n.logger.Debug("extrinsic queued", "hash", hash, "call", xt.Call.String(), "signer", xt.Signer)

	if instant {
		n.Seal()
	}
	return w, nil
}

func extrinsicHash(xt core.Extrinsic, nonce uint64) core.Hash {
	e := scale.NewEncoder()
	e.PutU8(uint8(xt.Mode))
	e.PutFixed(xt.Signer[:])
	e.PutBytes([]byte(xt.Call.String()))
	e.PutU64(nonce)
	if spec, err := core.LookupCall(xt.Call.Pallet, xt.Call.Method); err == nil {
		_ = spec.EncodeArgs(e, xt.Call)
	}
	return core.Hash(blake2b.Sum256(e.Bytes()))
}

// Seal produces a block with every pooled extrinsic and finalizes it immediately.
func (n *Node) Seal() Block {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return Block{}
	}
	batch := n.pool
	n.pool = nil
	if len(batch) == 0 {
		head := Block{Number: n.number, Hash: n.head}
		n.mu.Unlock()
		return head
	}

	type outcome struct {
		watch *txWatch
		err   error
	}
	outcomes := make([]outcome, 0, len(batch))
	var all changes
	failed := 0
	for _, p := range batch {
		t := newTxn(n.state)
		err := n.runtime.apply(t, p.xt)
		if err != nil {
			failed++
			err = core.AsDispatchError(err)
		} else {
			all.merge(t.commit())
		}
		outcomes = append(outcomes, outcome{watch: p.watch, err: err})
	}

	n.number++
	n.head = blockHash(n.head, n.number, batch)
	n.sealed++
	n.failed += uint64(failed)
	block := Block{Number: n.number, Hash: n.head, Extrinsics: len(batch), Failed: failed}
	n.notifyLocked(all)
	snapshot := n.persistableLocked()
	n.mu.Unlock()

	for _, o := range outcomes {
		o.watch.push(core.TxStatus{Kind: core.StatusBroadcast})
		o.watch.push(core.TxStatus{Kind: core.StatusInBlock, BlockHash: block.Hash, Err: o.err})
		o.watch.push(core.TxStatus{Kind: core.StatusFinalized, BlockHash: block.Hash, Err: o.err})
	}

	n.logger.Debug("block sealed", "number", block.Number, "hash", block.Hash, "extrinsics", block.Extrinsics, "failed", failed)

	if n.config.StateFile != "" {
		if err := saveState(n.config.StateFile, snapshot); err != nil {
			n.logger.Error("persist state", "file", n.config.StateFile, "error", err)
		}
	}
	if n.config.OnBlock != nil {
		n.config.OnBlock(block)
	}
	return block
}

func blockHash(parent core.Hash, number uint64, batch []*pending) core.Hash {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write(parent[:])
	_, _ = h.Write(binary.LittleEndian.AppendUint64(nil, number))
	for _, p := range batch {
		xh := p.watch.Hash()
		_, _ = h.Write(xh[:])
	}
	var out core.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// notifyLocked queues notifications for subscribers affected by ch.
func (n *Node) notifyLocked(ch changes) {
	if ch.count {
		count := n.state.count
		for s := range n.countSubs {
			fn := s.fn
			s.box.Post(func() { fn(count) })
		}
	}
	if len(ch.domains) == 0 {
		return
	}
	for s := range n.recSubs {
		if !slices.ContainsFunc(s.ids, func(id core.DomainID) bool { return slices.Contains(ch.domains, id) }) {
			continue
		}
		records := n.lookupLocked(s.ids)
		fn := s.fn
		s.box.Post(func() { fn(records) })
	}
}

func (n *Node) forgetWatch(w *txWatch) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.watches, w)
}

// BlockNumber is the height of the best block.
func (n *Node) BlockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.number
}

// Head is the hash of the best block.
func (n *Node) Head() core.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head
}

// Balance is the free balance of a.
func (n *Node) Balance(a core.AccountID) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.state.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Domain returns the record stored under id, or nil.
func (n *Node) Domain(id core.DomainID) *core.Domain {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.domains[id].Clone()
}

// Owned lists the domains held by a.
func (n *Node) Owned(a core.AccountID) []core.DomainID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.state.owned[a])
}

// Storage reads a raw storage value: the domain counter or a Domains entry. Unknown keys
// read as empty.
func (n *Node) Storage(key []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.storageLocked(key)
}

func (n *Node) storageLocked(key []byte) ([]byte, error) {
	if slices.Equal(key, core.CountStorageKey()) {
		return core.EncodeCount(n.state.count), nil
	}
	if id, err := core.DomainIDFromStorageKey(key); err == nil && slices.Equal(key, core.DomainStorageKey(id)) {
		d := n.state.domains[id]
		if d == nil {
			return nil, nil
		}
		return core.EncodeDomain(d)
	}
	return nil, nil
}

// StorageKeys lists the Domains keys starting with prefix, in insertion order.
func (n *Node) StorageKeys(prefix []byte) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out [][]byte
	for _, id := range n.state.order {
		key := core.DomainStorageKey(id)
		if len(key) >= len(prefix) && slices.Equal(key[:len(prefix)], prefix) {
			out = append(out, key)
		}
	}
	return out
}

var _ core.Node = (*Node)(nil)
