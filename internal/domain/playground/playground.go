package playground

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/domain/template"
	"github.com/GriffinCanCode/codelive/internal/notifier"
	"github.com/GriffinCanCode/codelive/internal/preview"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/sandbox"
	"github.com/GriffinCanCode/codelive/internal/shared/broadcast"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// ErrClosed is returned by operations on a closed playground
var ErrClosed = errors.New("playground closed")

// Renderer executes assembled documents
type Renderer interface {
	Render(ctx context.Context, doc preview.Document) (*sandbox.Result, error)
	Dispatch(ctx context.Context, selector, event string) (int, error)
	Snapshot(ctx context.Context) (string, error)
	Close()
}

// Options wires a Playground
type Options struct {
	Store    *buffer.Store
	Host     Renderer
	Relay    *relay.Relay
	Gallery  *template.Gallery
	AutoRun  bool
	Delay    time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
	Observer Observer
}

// Status summarizes the playground for health and status endpoints
type Status struct {
	AutoRun   bool          `json:"auto_run"`
	State     string        `json:"state"`
	Instance  id.InstanceID `json:"instance,omitempty"`
	LastSaved string        `json:"last_saved,omitempty"`
	Console   int           `json:"console_lines"`
}

// Playground is the application context: the current buffer set, its
// persistence, the debounced rebuild pipeline and the live preview.
// Buffer mutation is serialized by mu; rebuilds are serialized by runMu so
// a slow render never blocks editing.
type Playground struct {
	store    *buffer.Store
	host     Renderer
	relay    *relay.Relay
	gallery  *template.Gallery
	notifier *notifier.Notifier
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
	events   *broadcast.Broadcaster[Event]

	mu        sync.Mutex
	buffers   buffer.Set
	doc       preview.Document
	rendered  bool
	instance  id.InstanceID
	lastSaved string
	closed    bool

	runMu sync.Mutex
}

// New restores the saved session, or starts empty when there is none
func New(ctx context.Context, opts Options) (*Playground, error) {
	if opts.Store == nil || opts.Host == nil || opts.Relay == nil {
		return nil, fmt.Errorf("playground requires a store, a host and a relay")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	p := &Playground{
		store:    opts.Store,
		host:     opts.Host,
		relay:    opts.Relay,
		gallery:  opts.Gallery,
		clock:    opts.Clock,
		logger:   opts.Logger,
		observer: opts.Observer,
		events:   broadcast.New[Event](),
	}

	if rec, ok := p.store.Load(ctx); ok {
		p.buffers = rec.Buffers()
		p.lastSaved = rec.Timestamp
		p.logger.Info("Restored saved session", zap.String("saved_at", rec.Timestamp))
	}

	p.notifier = notifier.New(
		func() { _, _ = p.persist(context.Background()) },
		func(ctx context.Context) error {
			_, err := p.rebuild(ctx)
			return err
		},
		notifier.Options{
			Delay:   opts.Delay,
			AutoRun: opts.AutoRun,
			Clock:   opts.Clock,
			Logger:  opts.Logger.Named("notifier"),
		},
	)
	return p, nil
}

// Buffers returns the current buffer set
func (p *Playground) Buffers() buffer.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers
}

// Edit replaces the text of one pane. The set is saved immediately and, with
// auto-run on, a rebuild is scheduled.
func (p *Playground) Edit(pane buffer.Pane, text string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	next, err := p.buffers.With(pane, text)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.buffers = next
	p.mu.Unlock()

	p.notifier.Changed()
	return nil
}

// Replace swaps in a whole buffer set. With run set the preview rebuilds
// immediately instead of waiting for the debounce.
func (p *Playground) Replace(ctx context.Context, set buffer.Set, run bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.buffers = set
	p.mu.Unlock()

	p.notifier.Changed()
	if run {
		return p.notifier.RunNow(ctx)
	}
	return nil
}

// Run rebuilds the preview now, cancelling any pending scheduled rebuild
func (p *Playground) Run(ctx context.Context) (*sandbox.Result, error) {
	var result *sandbox.Result
	err := p.runNow(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.rebuild(ctx)
		return err
	})
	return result, err
}

// runNow rebuilds through the notifier so Status reports the run
func (p *Playground) runNow(ctx context.Context, fn func(context.Context) error) error {
	err := p.notifier.RunWith(ctx, fn)
	if errors.Is(err, notifier.ErrStopped) {
		return ErrClosed
	}
	return err
}

// AutoRun reports whether edits schedule rebuilds
func (p *Playground) AutoRun() bool {
	return p.notifier.AutoRun()
}

// SetAutoRun toggles scheduled rebuilds; enabling rebuilds immediately
func (p *Playground) SetAutoRun(ctx context.Context, on bool) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.notifier.SetAutoRun(ctx, on)
}

// Save persists the current buffer set
func (p *Playground) Save(ctx context.Context) (buffer.SavedSession, error) {
	if p.isClosed() {
		return buffer.SavedSession{}, ErrClosed
	}
	return p.persist(ctx)
}

// Clear empties all three panes and the console, then rebuilds
func (p *Playground) Clear(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.buffers = buffer.Set{}
	p.mu.Unlock()

	p.notifier.Cancel()
	if _, err := p.persist(ctx); err != nil {
		p.logger.Warn("Clear could not persist the empty session", zap.Error(err))
	}
	p.relay.Panel().Clear()
	return p.runNow(ctx, func(ctx context.Context) error {
		_, err := p.rebuild(ctx)
		return err
	})
}

// Templates lists the starter gallery
func (p *Playground) Templates() []template.Template {
	if p.gallery == nil {
		return nil
	}
	return p.gallery.List()
}

// LoadTemplate replaces the buffers with a gallery template and rebuilds
func (p *Playground) LoadTemplate(ctx context.Context, tid template.ID) (template.Template, error) {
	if p.gallery == nil {
		return template.Template{}, fmt.Errorf("%w: no gallery", template.ErrTemplateNotFound)
	}
	t, err := p.gallery.Lookup(tid)
	if err != nil {
		return template.Template{}, err
	}
	if err := p.Replace(ctx, t.Buffers(), true); err != nil {
		return template.Template{}, err
	}
	p.logger.Info("Template loaded", zap.String("template", string(tid)))
	return t, nil
}

// Document returns the last rendered document, or the assembly of the
// current buffers when nothing has been rendered yet
func (p *Playground) Document() preview.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rendered {
		return p.doc
	}
	return preview.Assemble(p.buffers)
}

// Console returns the console panel lines
func (p *Playground) Console() []relay.Event {
	return p.relay.Panel().Lines()
}

// ConsoleSince returns console lines with a sequence number above seq
func (p *Playground) ConsoleSince(seq uint64) []relay.Event {
	return p.relay.Since(seq)
}

// ConsoleHTML renders the console panel as a sanitized HTML fragment
func (p *Playground) ConsoleHTML() string {
	return p.relay.Panel().HTML()
}

// ClearConsole empties the console panel
func (p *Playground) ClearConsole() {
	p.relay.Panel().Clear()
}

// SubscribeConsole streams console events as they are relayed
func (p *Playground) SubscribeConsole(buffer int) (<-chan relay.Event, func()) {
	return p.relay.Subscribe(buffer)
}

// Dispatch fires a DOM event inside the live preview
func (p *Playground) Dispatch(ctx context.Context, selector, event string) (int, error) {
	if p.isClosed() {
		return 0, ErrClosed
	}
	return p.host.Dispatch(ctx, selector, event)
}

// Snapshot returns the live preview's DOM after script execution
func (p *Playground) Snapshot(ctx context.Context) (string, error) {
	if p.isClosed() {
		return "", ErrClosed
	}
	return p.host.Snapshot(ctx)
}

// Subscribe streams lifecycle events
func (p *Playground) Subscribe(buffer int) (<-chan Event, func()) {
	return p.events.Subscribe(buffer)
}

// Status reports the current state
func (p *Playground) Status() Status {
	p.mu.Lock()
	s := Status{
		Instance:  p.instance,
		LastSaved: p.lastSaved,
	}
	p.mu.Unlock()

	s.AutoRun = p.notifier.AutoRun()
	s.State = p.notifier.State().String()
	s.Console = p.relay.Panel().Len()
	return s
}

// Close stops scheduled work and the live preview
func (p *Playground) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.notifier.Stop()
	p.runMu.Lock()
	p.host.Close()
	p.runMu.Unlock()
	p.events.Close()
}

func (p *Playground) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// persist writes the current buffers. Failures are reported as a
// save_failed event and never interrupt editing or rebuilding.
func (p *Playground) persist(ctx context.Context) (buffer.SavedSession, error) {
	set := p.Buffers()

	rec, err := p.store.Save(ctx, set)
	p.observer.ObserveSave(err)
	if err != nil {
		p.logger.Warn("Failed to save session", zap.Error(err))
		p.events.Publish(Event{Type: EventSaveFailed, Time: p.clock.Now(), Error: err.Error()})
		return buffer.SavedSession{}, err
	}

	p.mu.Lock()
	p.lastSaved = rec.Timestamp
	p.mu.Unlock()

	p.events.Publish(Event{Type: EventSaved, Time: p.clock.Now(), Timestamp: rec.Timestamp})
	return rec, nil
}

// rebuild assembles the current buffers and replaces the live preview
func (p *Playground) rebuild(ctx context.Context) (*sandbox.Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	set := p.buffers
	p.mu.Unlock()

	start := p.clock.Now()
	doc := preview.Assemble(set)
	result, err := p.host.Render(ctx, doc)
	elapsed := p.clock.Since(start)
	if err != nil {
		p.observer.ObserveRebuild(elapsed, false, err)
		p.logger.Warn("Rebuild failed", zap.Error(err))
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}

	uncaught := result.Error != nil
	p.observer.ObserveRebuild(elapsed, uncaught, nil)

	p.mu.Lock()
	p.doc = doc
	p.rendered = true
	p.instance = result.Instance
	p.mu.Unlock()

	p.logger.Debug("Preview rebuilt",
		zap.String("instance", result.Instance.String()),
		zap.Int("bytes", len(doc)),
		zap.Bool("uncaught", uncaught))
	p.events.Publish(Event{
		Type:     EventRebuilt,
		Time:     p.clock.Now(),
		Instance: result.Instance,
		Duration: result.Duration,
		Uncaught: uncaught,
	})
	return result, nil
}
