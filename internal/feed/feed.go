// Package feed implements the feed handler (spec §4.5): it owns a set of
// stream sessions, runs each as an independently supervised task, and
// restarts a task with backoff if it exits before Stop is called. Grounded
// on cmd/gateway/main.go's use of sourcegraph/conc's structured-concurrency
// WaitGroup for lifecycle supervision (spec §9 Design Notes: "explicit
// supervisor that owns a set of session tasks").
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// Runner is the subset of session.Session's surface the feed handler needs;
// accepting an interface keeps this package free of an import on
// internal/session (and makes supervision trivially testable with a fake).
type Runner interface {
	Run(ctx context.Context) error
}

// Handle identifies one registered feed for later inspection/removal.
type Handle struct {
	id string
}

type entry struct {
	id     string
	runner Runner
}

// Handler owns an unordered collection of stream sessions (spec §4.5).
type Handler struct {
	mu      sync.Mutex
	entries []entry
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	log     *slog.Logger
	nextID  int
	running bool
}

// New constructs an empty Handler.
func New(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{log: logger}
}

// AddFeed registers a session, not yet running (spec §4.5: "add_feed(adapter_instance)").
func (h *Handler) AddFeed(runner Runner) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := feedID(h.nextID)
	e := entry{id: id, runner: runner}
	h.entries = append(h.entries, e)
	if h.running {
		h.spawnLockedCtx(h.runCtx, e)
	}
	return Handle{id: id}
}

// Run starts every registered session as an independent supervised task
// (spec §4.5: "run()... Each session runs as an independent supervised task").
func (h *Handler) Run(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.runCtx = runCtx
	h.cancel = cancel
	h.running = true
	for _, e := range h.entries {
		h.spawnLockedCtx(runCtx, e)
	}
}

// Stop cancels all tasks and awaits drain (spec §4.5: "Shutdown is
// cooperative: cancel tasks, await drain, close sockets").
func (h *Handler) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	cancel := h.cancel
	h.running = false
	h.runCtx = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

func (h *Handler) spawnLockedCtx(ctx context.Context, e entry) {
	h.wg.Go(func() {
		h.supervise(ctx, e)
	})
}

// supervise restarts e.runner with backoff whenever its task exits, unless
// ctx has been canceled (spec §4.5 Supervision).
func (h *Handler) supervise(ctx context.Context, e entry) {
	backoffDelay := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		err := h.runRecovered(ctx, e)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.log.Warn("feed task exited, restarting", "feed_id", e.id, "error", err)
		} else {
			h.log.Warn("feed task exited cleanly, restarting", "feed_id", e.id)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffDelay):
		}
		backoffDelay *= 2
		if backoffDelay > maxBackoff {
			backoffDelay = maxBackoff
		}
	}
}

// runRecovered runs e.runner.Run and converts a panic into an error, so a
// panicking session task is logged and restarted through supervise's
// existing backoff loop instead of crashing the whole process via conc's
// WaitGroup.Wait re-raising it.
func (h *Handler) runRecovered(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("feed task panicked, restarting", "feed_id", e.id, "panic", r)
			err = fmt.Errorf("feed task %s panicked: %v", e.id, r)
		}
	}()
	return e.runner.Run(ctx)
}

func feedID(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "feed-0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append(buf, alphabet[n%len(alphabet)])
		n /= len(alphabet)
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "feed-" + string(buf)
}
