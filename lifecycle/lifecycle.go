// Package lifecycle implements the Lifecycle Controller (spec.md §4.8):
// idempotent, single-flight initialization and an ordered, best-effort
// shutdown sequence with per-step timeouts and platform signal handling.
// Grounded on the teacher's convention of starting background loops
// exactly once from a constructor (health.Monitor.Start,
// llm/router.HealthChecker.Start); Claudette makes the "exactly once"
// guarantee explicit and safe under concurrent callers with
// golang.org/x/sync/singleflight, the same coalescing primitive the Cache
// uses for upstream calls.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Step is one named, independently-timed-out step of the shutdown
// sequence (§4.8: "stop Health Monitor, stop background cache refresh,
// drain Cache writes (<=2s), close Pool (up to 5s), flush metrics, release
// cold-tier handles").
type Step struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Controller sequences one Runtime's startup and shutdown. T is the value
// Initialize produces (the Runtime type); using a generic avoids callers
// type-asserting an any result.
type Controller[T any] struct {
	logger *zap.Logger
	group  singleflight.Group

	mu    sync.Mutex
	steps []Step

	sigStop chan struct{}
}

// New creates a Controller.
func New[T any](logger *zap.Logger) *Controller[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller[T]{logger: logger}
}

// Initialize runs build at most once across all concurrent callers;
// every caller — the first and any that arrive while it is in flight —
// receives the same (value, error) (§4.8: "concurrent callers share the
// same in-progress initialization").
func (c *Controller[T]) Initialize(build func() (T, error)) (T, error) {
	v, err, _ := c.group.Do("initialize", func() (any, error) {
		return build()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// RegisterShutdownStep appends a step to the ordered shutdown sequence.
// Steps run in registration order.
func (c *Controller[T]) RegisterShutdownStep(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step)
}

// Shutdown runs every registered step in order. A step's own Timeout (if
// set) bounds only that step; a failing step is logged and does not skip
// later steps (best-effort drain, §4.8).
func (c *Controller[T]) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	steps := make([]Step, len(c.steps))
	copy(steps, c.steps)
	c.mu.Unlock()

	var firstErr error
	for _, step := range steps {
		stepCtx := ctx
		cancel := func() {}
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		err := step.Run(stepCtx)
		cancel()
		if err != nil {
			c.logger.Warn("shutdown step failed", zap.String("step", step.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// InstallSignalHandlers installs SIGINT/SIGTERM handlers that invoke
// onShutdown and then exit with code 0 (§4.8: "Signal handlers for
// platform termination invoke shutdown() and then exit with code 0").
// Returns a function that uninstalls the handlers, used by Cleanup to
// avoid a double shutdown on process-managed exit.
func (c *Controller[T]) InstallSignalHandlers(ctx context.Context, onShutdown func(context.Context) error) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	c.sigStop = stop

	go func() {
		select {
		case <-sigCh:
			_ = onShutdown(ctx)
			os.Exit(0)
		case <-stop:
			return
		}
	}()

	return func() {
		signal.Stop(sigCh)
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}
