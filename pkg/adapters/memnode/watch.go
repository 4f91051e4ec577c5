package memnode

import (
	"context"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/registrar/pkg/core"
)

// txWatch streams the status of one pooled extrinsic. Only its own goroutine sends on and
// closes updates.
type txWatch struct {
	hash    core.Hash
	forget  func(*txWatch)
	updates chan core.TxStatus

	mu    sync.Mutex
	queue []core.TxStatus
	wake  chan struct{}
	stop  chan struct{}
	once  sync.Once
}

func newTxWatch(ctx context.Context, hash core.Hash, forget func(*txWatch)) *txWatch {
	w := &txWatch{
		hash:    hash,
		forget:  forget,
		updates: make(chan core.TxStatus),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		w.run(ctx)
		return nil
	})
	return w
}

func (w *txWatch) Hash() core.Hash {
	return w.hash
}

func (w *txWatch) Updates() <-chan core.TxStatus {
	return w.updates
}

func (w *txWatch) Unsubscribe() {
	w.once.Do(func() {
		close(w.stop)
		if w.forget != nil {
			w.forget(w)
		}
	})
}

func (w *txWatch) push(st core.TxStatus) {
	w.mu.Lock()
	w.queue = append(w.queue, st)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *txWatch) pop() (core.TxStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return core.TxStatus{}, false
	}
	st := w.queue[0]
	w.queue = w.queue[1:]
	return st, true
}

func (w *txWatch) run(ctx context.Context) {
	defer close(w.updates)
	defer w.Unsubscribe()
	for {
		st, ok := w.pop()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case w.updates <- st:
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
		if st.Terminal() {
			return
		}
	}
}
