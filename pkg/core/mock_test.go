package core_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/pkg/core"
)

// MockNode implements core.Node in memory. Notifications are delivered synchronously on
// the goroutine that triggers them.
type MockNode struct {
	mu       sync.Mutex
	count    uint32
	keys     []core.DomainID
	records  map[core.DomainID]*core.Domain
	ghosts   []core.DomainID // enumerated once, never stored
	keyCalls int

	countSubs  map[int]func(uint32)
	recordSubs map[int]*recordSub
	nextSub    int

	submit func(xt core.Extrinsic) (core.TxWatch, error)
}

type recordSub struct {
	ids    []core.DomainID
	fn     func([]*core.Domain)
	active bool
}

func NewMockNode() *MockNode {
	return &MockNode{
		records:    make(map[core.DomainID]*core.Domain),
		countSubs:  make(map[int]func(uint32)),
		recordSubs: make(map[int]*recordSub),
	}
}

func (m *MockNode) DomainCount(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, nil
}

func (m *MockNode) SubscribeCount(ctx context.Context, fn func(uint32)) (core.Subscription, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.countSubs[id] = fn
	n := m.count
	m.mu.Unlock()

	fn(n)
	return core.NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.countSubs, id)
	}), nil
}

func (m *MockNode) DomainKeys(ctx context.Context) ([]core.DomainID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyCalls++
	keys := append([]core.DomainID(nil), m.keys...)
	if len(m.ghosts) > 0 {
		keys = append(keys, m.ghosts...)
		m.ghosts = nil
	}
	return keys, nil
}

func (m *MockNode) SubscribeDomains(ctx context.Context, ids []core.DomainID, fn func([]*core.Domain)) (core.Subscription, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	sub := &recordSub{ids: ids, fn: fn, active: true}
	m.recordSubs[id] = sub
	recs := m.lookup(ids)
	m.mu.Unlock()

	fn(recs)
	return core.NewSubscription(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		sub.active = false
	}), nil
}

func (m *MockNode) Submit(ctx context.Context, xt core.Extrinsic) (core.TxWatch, error) {
	m.mu.Lock()
	submit := m.submit
	m.mu.Unlock()
	if submit == nil {
		return nil, core.ErrInvalidTransaction
	}
	return submit(xt)
}

func (m *MockNode) lookup(ids []core.DomainID) []*core.Domain {
	out := make([]*core.Domain, len(ids))
	for i, id := range ids {
		out[i] = m.records[id].Clone()
	}
	return out
}

// Put stores a record (creating it bumps the counter) and notifies subscribers.
func (m *MockNode) Put(d *core.Domain) core.DomainID {
	id := core.DomainIDFor(d.Name)
	m.mu.Lock()
	_, exists := m.records[id]
	m.records[id] = d.Clone()
	if !exists {
		m.keys = append(m.keys, id)
		m.count++
	}
	m.mu.Unlock()

	if !exists {
		m.notifyCount()
	}
	m.notifyRecords(false)
	return id
}

// Ghost makes the next enumeration return a key without a stored record.
func (m *MockNode) Ghost(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ghosts = append(m.ghosts, core.DomainIDFor(name))
}

func (m *MockNode) notifyCount() {
	m.mu.Lock()
	n := m.count
	fns := make([]func(uint32), 0, len(m.countSubs))
	for _, fn := range m.countSubs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// notifyRecords pushes current records to active subscriptions, or to every subscription
// ever opened when includeStale is set.
func (m *MockNode) notifyRecords(includeStale bool) {
	type delivery struct {
		fn   func([]*core.Domain)
		recs []*core.Domain
	}
	m.mu.Lock()
	var out []delivery
	for _, sub := range m.recordSubs {
		if sub.active || includeStale {
			out = append(out, delivery{fn: sub.fn, recs: m.lookup(sub.ids)})
		}
	}
	m.mu.Unlock()
	for _, d := range out {
		d.fn(d.recs)
	}
}

func (m *MockNode) ActiveRecordSubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sub := range m.recordSubs {
		if sub.active {
			n++
		}
	}
	return n
}

func (m *MockNode) KeyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyCalls
}

// MockWatch is a TxWatch fed by the test.
type MockWatch struct {
	hash    core.Hash
	updates chan core.TxStatus
	once    sync.Once
	stopped chan struct{}
}

func NewMockWatch() *MockWatch {
	return &MockWatch{
		hash:    core.Hash{0xab},
		updates: make(chan core.TxStatus, 16),
		stopped: make(chan struct{}),
	}
}

func (w *MockWatch) Hash() core.Hash               { return w.hash }
func (w *MockWatch) Updates() <-chan core.TxStatus { return w.updates }
func (w *MockWatch) Unsubscribe() {
	w.once.Do(func() { close(w.stopped) })
}

func (w *MockWatch) Send(st core.TxStatus) {
	w.updates <- st
}

func (w *MockWatch) Stopped() bool {
	select {
	case <-w.stopped:
		return true
	default:
		return false
	}
}

var (
	alice = core.DevAccounts["alice"]
	bob   = core.DevAccounts["bob"]
)

func price(n int64) *big.Int {
	return big.NewInt(n)
}

// waitSnapshot reads from ch until pred holds.
func waitSnapshot(t *testing.T, ch <-chan core.Snapshot, pred func(core.Snapshot) bool) core.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "watch channel closed early")
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timeout waiting for snapshot")
			return core.Snapshot{}
		}
	}
}
