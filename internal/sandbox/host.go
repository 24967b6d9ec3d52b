package sandbox

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/codelive/internal/preview"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// Host executes preview documents, one live instance at a time. Every
// Render builds a fresh instance and closes the previous one, so timers,
// listeners and globals never carry over.
type Host struct {
	cfg     Config
	sinkFor SinkFactory
	logger  *zap.Logger

	mu      sync.Mutex
	current *Instance
	closed  bool
}

// NewHost creates an execution host. sinkFor provides the postMessage
// destination for each new instance; it may be nil to discard messages.
func NewHost(cfg Config, sinkFor SinkFactory, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		cfg:     cfg,
		sinkFor: sinkFor,
		logger:  logger,
	}
}

// Render replaces the current instance with one executing doc. It returns
// once the document's scripts and load handlers have run; timers keep running
// on the instance afterwards.
func (h *Host) Render(ctx context.Context, doc preview.Document) (*Result, error) {
	instanceID := id.NewInstanceID()

	var sink func([]byte)
	if h.sinkFor != nil {
		sink = h.sinkFor(instanceID)
	}

	inst, err := newInstance(instanceID, h.cfg, doc, sink, h.logger)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		inst.Close()
		return nil, ErrClosed
	}
	prev := h.current
	h.current = inst
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	result, err := inst.start(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Rendered preview",
		zap.String("instance", instanceID.String()),
		zap.Int("scripts", result.Scripts),
		zap.Duration("duration", result.Duration),
		zap.Bool("uncaught", result.Error != nil))
	return result, nil
}

// Current returns the live instance
func (h *Host) Current() (*Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.current != nil
}

func (h *Host) live() (*Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.current == nil {
		return nil, ErrNoInstance
	}
	return h.current, nil
}

// Dispatch fires event at the first element matching selector in the live
// instance and returns how many handlers ran
func (h *Host) Dispatch(ctx context.Context, selector, event string) (int, error) {
	inst, err := h.live()
	if err != nil {
		return 0, err
	}
	return inst.Dispatch(ctx, selector, event)
}

// Snapshot renders the live instance's DOM after script execution
func (h *Host) Snapshot(ctx context.Context) (string, error) {
	inst, err := h.live()
	if err != nil {
		return "", err
	}
	return inst.Snapshot(ctx)
}

// Close shuts down the live instance. Later renders fail with ErrClosed.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	inst := h.current
	h.mu.Unlock()

	if inst != nil {
		inst.Close()
	}
}
