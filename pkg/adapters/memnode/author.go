package memnode

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
)

// authorWorker seals a block every interval.
type authorWorker struct {
	*worker.BaseWorker
	node     *Node
	interval time.Duration
	cancel   context.CancelFunc
}

func newAuthorWorker(node *Node, interval time.Duration) *authorWorker {
	return &authorWorker{
		BaseWorker: worker.NewBaseWorker("block-author"),
		node:       node,
		interval:   interval,
	}
}

func (w *authorWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("block author already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *authorWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *authorWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"interval":          w.interval.String(),
		}
	})
}

func (w *authorWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("block author panic: %v", recovered)
			if w.node.logger.Enabled(ctx, slog.LevelDebug) {
				w.node.logger.Error("block author panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				w.node.logger.Error("block author panic", "error", panicErr)
			}
			err = panicErr
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.node.Seal()
		}
	}
}
