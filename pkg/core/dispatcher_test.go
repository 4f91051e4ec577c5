package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/registrar/pkg/core"
)

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *statusLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *statusLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func waitDone(t *testing.T, tr *core.Tracker) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tracker")
	}
}

func TestDispatcher_TransferFinalized(t *testing.T) {
	node := NewMockNode()
	watch := NewMockWatch()
	var submitted core.Extrinsic
	node.submit = func(xt core.Extrinsic) (core.TxWatch, error) {
		submitted = xt
		return watch, nil
	}

	var states []core.TxState
	var statesMu sync.Mutex
	d := core.NewDispatcher(node, core.WithStatusObserver(func(s core.TxState) {
		statesMu.Lock()
		defer statesMu.Unlock()
		states = append(states, s)
	}))

	id := core.DomainIDFor("alpha.dot")
	log := &statusLog{}
	inChain := 0
	tr := d.Dispatch(context.Background(), core.Session{Account: alice}, core.TransferAction(bob.String(), id), core.DispatchOptions{
		OnStatus:  log.add,
		OnInChain: func(func()) { inChain++ },
	})

	block := core.Hash{0x01}
	watch.Send(core.TxStatus{Kind: core.StatusReady})
	watch.Send(core.TxStatus{Kind: core.StatusInBlock, BlockHash: block})
	watch.Send(core.TxStatus{Kind: core.StatusFinalized, BlockHash: block})
	waitDone(t, tr)

	require.NoError(t, tr.Err())
	assert.Equal(t, core.StateFinalized, tr.State())
	assert.Equal(t, 1, inChain, "in-chain callback fires exactly once")
	assert.Equal(t, []string{
		"Sending...",
		"Current transaction status: Ready",
		"In block. Block hash: " + block.String(),
		"Finalized. Block hash: " + block.String(),
	}, log.all())

	// Call built from the action
	assert.Equal(t, core.Signed, submitted.Mode)
	assert.Equal(t, alice, submitted.Signer)
	to, err := core.Arg[core.AccountID](submitted.Call, 0)
	require.NoError(t, err)
	assert.Equal(t, bob, to)
	gotID, err := core.Arg[core.DomainID](submitted.Call, 1)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	statesMu.Lock()
	assert.Equal(t, []core.TxState{core.StateSigning, core.StateBroadcast, core.StateInBlock, core.StateFinalized}, states)
	statesMu.Unlock()
	assert.True(t, watch.Stopped())
}

func TestDispatcher_UnsubscribeFromInChain(t *testing.T) {
	node := NewMockNode()
	watch := NewMockWatch()
	node.submit = func(core.Extrinsic) (core.TxWatch, error) { return watch, nil }

	log := &statusLog{}
	d := core.NewDispatcher(node)
	tr := d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction("shop"), core.DispatchOptions{
		OnStatus:  log.add,
		OnInChain: func(unsubscribe func()) { unsubscribe() },
	})

	watch.Send(core.TxStatus{Kind: core.StatusInBlock, BlockHash: core.Hash{0x02}})
	waitDone(t, tr)
	watch.Send(core.TxStatus{Kind: core.StatusFinalized, BlockHash: core.Hash{0x02}})
	time.Sleep(20 * time.Millisecond)

	lines := log.all()
	require.NotEmpty(t, lines)
	assert.Equal(t, "In block. Block hash: "+core.Hash{0x02}.String(), lines[len(lines)-1])
	assert.True(t, watch.Stopped())
	assert.Equal(t, core.StateInBlock, tr.State())
}

func TestDispatcher_RetractedKeepsState(t *testing.T) {
	node := NewMockNode()
	watch := NewMockWatch()
	node.submit = func(core.Extrinsic) (core.TxWatch, error) { return watch, nil }

	log := &statusLog{}
	var inChain int32
	var mu sync.Mutex
	d := core.NewDispatcher(node)
	tr := d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction("shop"), core.DispatchOptions{
		OnStatus: log.add,
		OnInChain: func(func()) {
			mu.Lock()
			inChain++
			mu.Unlock()
		},
	})

	watch.Send(core.TxStatus{Kind: core.StatusBroadcast})
	watch.Send(core.TxStatus{Kind: core.StatusRetracted, BlockHash: core.Hash{0x04}})
	require.Eventually(t, func() bool { return len(log.all()) == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Current transaction status: Retracted", log.all()[2])
	assert.Equal(t, core.StateBroadcast, tr.State())
	mu.Lock()
	assert.Zero(t, inChain)
	mu.Unlock()

	block := core.Hash{0x05}
	watch.Send(core.TxStatus{Kind: core.StatusInBlock, BlockHash: block})
	watch.Send(core.TxStatus{Kind: core.StatusFinalized, BlockHash: block})
	waitDone(t, tr)

	assert.Equal(t, core.StateFinalized, tr.State())
	mu.Lock()
	assert.Equal(t, int32(1), inChain)
	mu.Unlock()
}

func TestDispatcher_FailsBeforeBroadcast(t *testing.T) {
	node := NewMockNode()
	d := core.NewDispatcher(node)

	// 1. No account selected
	log := &statusLog{}
	tr := d.Dispatch(context.Background(), core.Session{}, core.CreateDomainAction("shop"), core.DispatchOptions{OnStatus: log.add})
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), core.ErrNoAccount)
	assert.Equal(t, core.StateFailed, tr.State())
	assert.Equal(t, []string{"Sending...", "Transaction failed: " + core.ErrNoAccount.Error()}, log.all())

	// 2. Empty managed field
	tr = d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction(""), core.DispatchOptions{})
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), core.ErrMissingParam)

	// 3. Node rejects the submission
	tr = d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction("shop"), core.DispatchOptions{})
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), core.ErrInvalidTransaction)
}

func TestDispatcher_DispatchErrorInBlock(t *testing.T) {
	node := NewMockNode()
	watch := NewMockWatch()
	node.submit = func(core.Extrinsic) (core.TxWatch, error) { return watch, nil }

	inChain := false
	d := core.NewDispatcher(node)
	tr := d.Dispatch(context.Background(), core.Session{Account: bob}, core.BuyAction(core.View{ID: core.DomainIDFor("a.dot")}), core.DispatchOptions{
		OnInChain: func(func()) { inChain = true },
	})

	dispatchErr := core.AsDispatchError(core.ErrNotForSale)
	watch.Send(core.TxStatus{Kind: core.StatusInBlock, BlockHash: core.Hash{0x03}, Err: dispatchErr})
	waitDone(t, tr)

	assert.Equal(t, core.StateFailed, tr.State())
	assert.ErrorIs(t, tr.Err(), core.ErrNotForSale)
	assert.False(t, inChain)
	statuses := tr.Statuses()
	assert.Contains(t, statuses[len(statuses)-1], "Transaction failed: SubstrateKitties.domainNotForSale")
}

func TestDispatcher_StreamEnds(t *testing.T) {
	node := NewMockNode()
	watch := NewMockWatch()
	node.submit = func(core.Extrinsic) (core.TxWatch, error) { return watch, nil }

	d := core.NewDispatcher(node)
	tr := d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction("shop"), core.DispatchOptions{})
	watch.Send(core.TxStatus{Kind: core.StatusReady})
	close(watch.updates)
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), core.ErrStreamEnded)

	// Dropped transactions fail
	watch2 := NewMockWatch()
	node.submit = func(core.Extrinsic) (core.TxWatch, error) { return watch2, nil }
	tr = d.Dispatch(context.Background(), core.Session{Account: alice}, core.CreateDomainAction("shop"), core.DispatchOptions{})
	watch2.Send(core.TxStatus{Kind: core.StatusDropped})
	waitDone(t, tr)
	assert.ErrorIs(t, tr.Err(), core.ErrInvalidTransaction)
}

func TestTxState_Transitions(t *testing.T) {
	assert.True(t, core.StateIdle.CanTransition(core.StateSigning))
	assert.True(t, core.StateSigning.CanTransition(core.StateInBlock), "steps may be skipped")
	assert.True(t, core.StateBroadcast.CanTransition(core.StateFailed))
	assert.False(t, core.StateInBlock.CanTransition(core.StateBroadcast), "no backward moves")
	assert.False(t, core.StateFinalized.CanTransition(core.StateFailed))
	assert.False(t, core.StateFailed.CanTransition(core.StateSigning))
	assert.Equal(t, "InBlock", core.StateInBlock.String())
}
