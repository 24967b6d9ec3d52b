package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultDelay is the quiet period between the last edit and a rebuild
const DefaultDelay = 500 * time.Millisecond

// ErrStopped is returned by operations on a stopped notifier
var ErrStopped = errors.New("notifier stopped")

// State of the rebuild pipeline
type State int

const (
	Idle State = iota
	PendingRebuild
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingRebuild:
		return "pending_rebuild"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Options configures a Notifier
type Options struct {
	Delay   time.Duration
	AutoRun bool
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Notifier persists on every change and coalesces bursts of changes into a
// single rebuild once edits go quiet for Delay. It owns the only rebuild
// timer; each edit stops it and arms a new one.
type Notifier struct {
	save    func()
	rebuild func(context.Context) error
	clock   clock.Clock
	delay   time.Duration
	logger  *zap.Logger

	// ctx scopes timer-driven rebuilds; Stop cancels it
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	autoRun bool
	timer   *clock.Timer
	gen     uint64
	running int
	stopped bool
}

// New creates a notifier. save runs synchronously on every change; rebuild
// runs when the timer elapses or on demand.
func New(save func(), rebuild func(context.Context) error, opts Options) *Notifier {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		save:    save,
		rebuild: rebuild,
		clock:   opts.Clock,
		delay:   opts.Delay,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		autoRun: opts.AutoRun,
	}
}

// Changed records an edit: save now, rebuild later if auto-run is on
func (n *Notifier) Changed() {
	if n.save != nil {
		n.save()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || !n.autoRun {
		return
	}
	n.cancelLocked()
	n.gen++
	gen := n.gen
	n.timer = n.clock.AfterFunc(n.delay, func() { n.fire(gen) })
}

func (n *Notifier) fire(gen uint64) {
	n.mu.Lock()
	if n.stopped || gen != n.gen || n.timer == nil {
		// Superseded by a later edit, RunNow or Stop
		n.mu.Unlock()
		return
	}
	n.timer = nil
	n.mu.Unlock()

	n.logger.Debug("Debounce elapsed, rebuilding")
	if err := n.run(n.ctx); err != nil {
		n.logger.Warn("Scheduled rebuild failed", zap.Error(err))
	}
}

// RunNow cancels any pending rebuild and rebuilds synchronously, regardless
// of auto-run
func (n *Notifier) RunNow(ctx context.Context) error {
	return n.RunWith(ctx, n.rebuild)
}

// RunWith is RunNow with a caller-supplied rebuild, for callers that need
// more than an error back. State reports Running while fn runs.
func (n *Notifier) RunWith(ctx context.Context, fn func(context.Context) error) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return ErrStopped
	}
	n.cancelLocked()
	n.mu.Unlock()

	return n.track(ctx, fn)
}

// Cancel drops a pending rebuild and reports whether there was one
func (n *Notifier) Cancel() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	pending := n.timer != nil
	n.cancelLocked()
	return pending
}

// SetAutoRun toggles scheduled rebuilds. Turning it on rebuilds immediately;
// turning it off drops a pending rebuild.
func (n *Notifier) SetAutoRun(ctx context.Context, on bool) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return ErrStopped
	}
	was := n.autoRun
	n.autoRun = on
	if !on {
		n.cancelLocked()
	}
	n.mu.Unlock()

	if on && !was {
		return n.run(ctx)
	}
	return nil
}

// AutoRun reports whether edits schedule rebuilds
func (n *Notifier) AutoRun() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.autoRun
}

// State reports whether a rebuild is running or pending. A rebuild in
// progress wins over one armed behind it.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.running > 0:
		return Running
	case n.timer != nil:
		return PendingRebuild
	default:
		return Idle
	}
}

// Delay returns the debounce delay
func (n *Notifier) Delay() time.Duration { return n.delay }

// Stop cancels any pending rebuild. The notifier ignores later calls.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelLocked()
	n.stopped = true
	n.cancel()
}

func (n *Notifier) cancelLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
}

func (n *Notifier) run(ctx context.Context) error {
	return n.track(ctx, n.rebuild)
}

func (n *Notifier) track(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	n.mu.Lock()
	n.running++
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.running--
		n.mu.Unlock()
	}()
	return fn(ctx)
}
