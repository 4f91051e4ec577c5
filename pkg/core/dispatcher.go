package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"
)

// TxState is the local progress of a dispatched action.
type TxState int

const (
	StateIdle TxState = iota
	StateSigning
	StateBroadcast
	StateInBlock
	StateFinalized
	StateFailed
)

func (s TxState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSigning:
		return "Signing"
	case StateBroadcast:
		return "Broadcast"
	case StateInBlock:
		return "InBlock"
	case StateFinalized:
		return "Finalized"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// Terminal reports whether the state admits no further transition.
func (s TxState) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// CanTransition reports whether s may move to next. Progress only moves forward (steps may
// be skipped) and any non-terminal state may fail.
func (s TxState) CanTransition(next TxState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next > s
}

// DispatchOptions are the caller's hooks for one dispatch.
type DispatchOptions struct {
	// OnStatus receives every human-readable status line.
	OnStatus func(string)
	// OnInChain fires once when the extrinsic first reaches a block. The argument stops
	// further status delivery, e.g. when the caller closes its dialog.
	OnInChain func(unsubscribe func())
}

// Dispatcher submits actions and tracks their progress.
type Dispatcher struct {
	node     Node
	logger   *slog.Logger
	observer func(TxState)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithStatusObserver is called on every state transition (e.g. for metrics).
func WithStatusObserver(fn func(TxState)) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = fn
	}
}

// NewDispatcher creates a Dispatcher over node.
func NewDispatcher(node Node, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{node: node, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch builds and submits action for session and returns immediately. Progress is
// reported through opts and the returned Tracker.
func (d *Dispatcher) Dispatch(ctx context.Context, session Session, action Action, opts DispatchOptions) *Tracker {
	t := &Tracker{
		action:   action,
		opts:     opts,
		observer: d.observer,
		done:     make(chan struct{}),
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		d.run(ctx, t, session)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		t.fail(fmt.Errorf("dispatch panic: %w", err))
	}))
	return t
}

func (d *Dispatcher) run(ctx context.Context, t *Tracker, session Session) {
	logger := d.logger.With("label", t.action.Label, "call", t.action.Pallet+"."+t.action.Method)

	t.advance(StateSigning, "Sending...")

	xt, err := t.action.Extrinsic(session)
	if err != nil {
		logger.Debug("action rejected before submission", "error", err)
		t.fail(err)
		return
	}

	watch, err := d.node.Submit(ctx, xt)
	if err != nil {
		logger.Debug("submission rejected", "error", err)
		t.fail(err)
		return
	}
	t.attach(watch)
	defer watch.Unsubscribe()
	logger.Debug("submitted", "hash", watch.Hash())

	for {
		select {
		case <-ctx.Done():
			t.fail(ctx.Err())
			return
		case st, ok := <-watch.Updates():
			if !ok {
				if !t.isStopped() {
					t.fail(ErrStreamEnded)
				}
				t.finish()
				return
			}
			if t.apply(st) {
				return
			}
		}
	}
}

// Tracker follows one dispatched action.
type Tracker struct {
	action   Action
	opts     DispatchOptions
	observer func(TxState)

	mu       sync.Mutex
	state    TxState
	statuses []string
	err      error
	watch    TxWatch
	stopped  bool
	inChain  bool
	done     chan struct{}
	doneOnce sync.Once
}

// State returns the current state.
func (t *Tracker) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure cause once the tracker failed.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Statuses returns every status line emitted so far.
func (t *Tracker) Statuses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.statuses))
	copy(out, t.statuses)
	return out
}

// Done is closed once the tracker reached a terminal state or was unsubscribed.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until Done and returns the failure cause, if any.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe stops status delivery. The extrinsic itself is not cancelled.
func (t *Tracker) Unsubscribe() {
	t.mu.Lock()
	if t.stopped || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	watch := t.watch
	t.mu.Unlock()

	if watch != nil {
		watch.Unsubscribe()
	}
	t.finish()
}

func (t *Tracker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Tracker) attach(w TxWatch) {
	t.mu.Lock()
	t.watch = w
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		w.Unsubscribe()
	}
}

// apply handles one pool notification and reports whether tracking is over.
func (t *Tracker) apply(st TxStatus) bool {
	switch st.Kind {
	case StatusReady, StatusFuture, StatusBroadcast:
		t.advance(StateBroadcast, "Current transaction status: "+string(st.Kind))
	case StatusRetracted:
		t.emit("Current transaction status: " + string(st.Kind))
	case StatusInBlock:
		if st.Err != nil {
			t.fail(st.Err)
			return true
		}
		t.advance(StateInBlock, "In block. Block hash: "+st.BlockHash.String())
		t.enteredChain()
	case StatusFinalized:
		if st.Err != nil {
			t.fail(st.Err)
			return true
		}
		t.enteredChain()
		t.advance(StateFinalized, "Finalized. Block hash: "+st.BlockHash.String())
		t.finish()
		return true
	default:
		t.fail(fmt.Errorf("%w: %s", ErrInvalidTransaction, st.Kind))
		return true
	}
	return t.isStopped()
}

// advance moves to next (if allowed) and emits text unless delivery has stopped.
func (t *Tracker) advance(next TxState, text string) {
	t.mu.Lock()
	if t.stopped || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	changed := false
	if next != t.state && t.state.CanTransition(next) {
		t.state = next
		changed = true
	}
	t.statuses = append(t.statuses, text)
	t.mu.Unlock()

	if changed && t.observer != nil {
		t.observer(next)
	}
	if t.opts.OnStatus != nil {
		t.opts.OnStatus(text)
	}
}

// emit reports text without changing state.
func (t *Tracker) emit(text string) {
	t.mu.Lock()
	if t.stopped || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.statuses = append(t.statuses, text)
	t.mu.Unlock()

	if t.opts.OnStatus != nil {
		t.opts.OnStatus(text)
	}
}

func (t *Tracker) enteredChain() {
	t.mu.Lock()
	if t.inChain || t.stopped {
		t.mu.Unlock()
		return
	}
	t.inChain = true
	t.mu.Unlock()

	if t.opts.OnInChain != nil {
		t.opts.OnInChain(t.Unsubscribe)
	}
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = StateFailed
	t.err = err
	text := "Transaction failed: " + err.Error()
	emit := !t.stopped
	if emit {
		t.statuses = append(t.statuses, text)
	}
	t.mu.Unlock()

	if t.observer != nil {
		t.observer(StateFailed)
	}
	if emit && t.opts.OnStatus != nil {
		t.opts.OnStatus(text)
	}
	t.finish()
}

func (t *Tracker) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}
