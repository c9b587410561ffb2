package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// ErrWorkerStopped is returned by Post after the worker has finished.
var ErrWorkerStopped = errors.New("worker stopped")

// WorkerConfig contains configuration for Worker.
type WorkerConfig struct {
	// Controller runs the posted parameter sets. Required.
	Controller *Controller
	// Notifier receives Ready, Error and Finished; it is usually the one
	// the Controller was built with.
	Notifier *Notifier
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// Worker runs posted parameter sets one at a time on a single goroutine.
// Sets posted while a run is in progress are coalesced; only the most
// recent one runs next.
type Worker struct {
	ctrl     *Controller
	notifier *Notifier
	logger   *log.Logger
	mailbox  *Mailbox[findfoci.Params]

	mu       sync.Mutex
	running  bool
	finished bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWorker creates a Worker. Call Run to start it.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		ctrl:     cfg.Controller,
		notifier: cfg.Notifier,
		logger:   logger,
		mailbox:  NewMailbox[findfoci.Params](),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Post validates p and queues it, replacing any set that is still waiting.
func (w *Worker) Post(p findfoci.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	finished := w.finished
	w.mu.Unlock()
	if finished {
		return ErrWorkerStopped
	}
	if w.mailbox.Put(p) {
		diagf("worker: replaced a waiting parameter set")
	}
	return nil
}

// Run processes posted parameter sets until ctx is cancelled or Finish is
// called. It returns nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.finished {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.finished = true
		w.mu.Unlock()
		w.notifier.emit(Message{Kind: Finished})
		close(w.doneCh)
	}()

	w.notifier.emit(Message{Kind: Ready})
	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("Worker stopping due to context cancellation")
			return nil
		case <-w.stopCh:
			w.logger.Printf("Worker stopping due to Finish() call")
			return nil
		case <-w.mailbox.Ready():
			if p, ok := w.mailbox.Take(); ok {
				w.process(ctx, p)
			}
		}
	}
}

// process runs one parameter set. Panics are reported as Error and do not
// stop the loop.
func (w *Worker) process(ctx context.Context, p findfoci.Params) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during run: %v", r)
			w.logger.Printf("Worker: %v\n%s", err, debug.Stack())
			opsf("%v", err)
			w.notifier.emit(Message{Kind: Error, Err: err})
		}
	}()
	if _, err := w.ctrl.Run(ctx, p); err != nil {
		w.logger.Printf("Worker: run failed: %v", err)
	}
}

// Finish stops the worker and waits for the loop to exit. An in-flight run
// completes first. It is safe to call multiple times.
func (w *Worker) Finish() {
	w.mu.Lock()
	running := w.running
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.finished = true
	w.mu.Unlock()
	if running {
		<-w.doneCh
	}
}

// IsRunning returns whether the loop is currently running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
