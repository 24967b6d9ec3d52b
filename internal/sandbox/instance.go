package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/codelive/internal/preview"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// stackOverflowReason is the message browsers give the RangeError thrown on
// runaway recursion
const stackOverflowReason = "Maximum call stack size exceeded"

const (
	// SourceName is the script URL reported to onerror
	SourceName = "about:srcdoc"

	frameInterval = 16 * time.Millisecond
	minInterval   = 4 * time.Millisecond
)

var (
	syntaxPosition = regexp.MustCompile(`Line (\d+):(\d+)`)
	stackPosition  = regexp.MustCompile(`:(\d+):(\d+)\(\d+\)`)
)

// timeoutError is the interrupt value used by the execution watchdog
type timeoutError struct {
	after time.Duration
}

func (e timeoutError) Error() string {
	return fmt.Sprintf("script execution timed out after %s", e.after)
}

// timer is one pending setTimeout, setInterval or requestAnimationFrame
type timer struct {
	id     int64
	fn     goja.Callable
	args   []goja.Value
	delay  time.Duration
	repeat bool
	frame  bool
	t      *time.Timer
}

// Instance is one rendered document with its own runtime, DOM and event
// loop. Everything below the loop marker is owned by the loop goroutine.
type Instance struct {
	id      id.InstanceID
	cfg     Config
	doc     preview.Document
	sink    func([]byte)
	logger  *zap.Logger
	loop    *loop
	started time.Time
	closing atomic.Bool

	consoleMu sync.Mutex
	console   []LogEntry

	// loop
	vm        *goja.Runtime
	dom       *DOM
	document  goja.Value
	stringify goja.Callable
	elements  map[*html.Node]*element
	proxies   map[*goja.Object]*element
	docEvents listeners
	winEvents listeners
	timers    map[int64]*timer
	nextTimer int64
	firstErr  error
}

func newInstance(instanceID id.InstanceID, cfg Config, doc preview.Document, sink func([]byte), logger *zap.Logger) (*Instance, error) {
	dom, err := ParseDOM(doc.String())
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	in := &Instance{
		id:        instanceID,
		cfg:       cfg,
		doc:       doc,
		sink:      sink,
		logger:    logger.With(zap.String("instance", instanceID.String())),
		started:   time.Now(),
		vm:        vm,
		dom:       dom,
		elements:  make(map[*html.Node]*element),
		proxies:   make(map[*goja.Object]*element),
		docEvents: listeners{},
		winEvents: listeners{},
		timers:    make(map[int64]*timer),
	}
	in.loop = newLoop()
	return in, nil
}

// ID returns the instance identifier
func (in *Instance) ID() id.InstanceID { return in.id }

// Document returns the document this instance rendered
func (in *Instance) Document() preview.Document { return in.doc }

// Console returns the instance's own console output
func (in *Instance) Console() []LogEntry {
	in.consoleMu.Lock()
	defer in.consoleMu.Unlock()
	return append([]LogEntry{}, in.console...)
}

// DOMChanges returns the modifications sandboxed code made to the document
func (in *Instance) DOMChanges() []DOMChange {
	return in.dom.GetChanges()
}

// start installs the globals, evaluates every inline script in document
// order and fires the load events
func (in *Instance) start(ctx context.Context) (*Result, error) {
	begin := time.Now()
	result := &Result{Instance: in.id}

	err := in.loop.do(ctx, func() {
		in.setupGlobals()

		scripts := in.dom.scripts()
		for _, s := range scripts {
			name := SourceName
			if len(scripts) > 1 {
				name = SourceName + "#script" + strconv.Itoa(s.index)
			}
			code := strings.Repeat("\n", s.line) + s.code
			guarded := preview.Guarded(s.code)
			in.guard(func() error {
				_, err := in.vm.RunScript(name, code)
				if guarded && isStackOverflow(err) {
					// goja overflows are uncatchable; report what the
					// boundary would have caught
					return in.boundary(stackOverflowReason, err)
				}
				return err
			})
		}
		result.Scripts = len(scripts)

		in.guard(func() error {
			in.fireLoaded()
			return nil
		})
		result.Error = in.firstErr
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(begin)
	result.Console = in.Console()
	result.DOMChanges = in.dom.GetChanges()
	return result, nil
}

// Close interrupts running code, stops all timers and exits the loop
func (in *Instance) Close() {
	if in.closing.Swap(true) {
		return
	}
	in.vm.Interrupt(ErrClosed)
	in.loop.close()

	// The loop has exited; timers are no longer shared.
	for tid, t := range in.timers {
		t.t.Stop()
		delete(in.timers, tid)
	}
	in.logger.Debug("Sandbox instance closed")
}

// setupGlobals configures global objects and security
func (in *Instance) setupGlobals() {
	vm := in.vm
	global := vm.GlobalObject()

	// Remove dangerous globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	vm.Set("window", global)
	vm.Set("self", global)

	if fn, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify")); ok {
		in.stringify = fn
	}

	// The parent context is reachable only through postMessage
	parent := vm.NewObject()
	_ = parent.Set("postMessage", in.postMessage)
	vm.Set("parent", parent)
	vm.Set("top", parent)

	if in.cfg.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			_ = console.Set(level, in.makeConsoleFunc(level))
		}
		vm.Set("console", console)
	}

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return in.schedule(call, false) })
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return in.schedule(call, true) })
	vm.Set("clearTimeout", in.clearTimer)
	vm.Set("clearInterval", in.clearTimer)
	vm.Set("requestAnimationFrame", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("requestAnimationFrame: callback is not a function"))
		}
		return in.addTimer(&timer{fn: fn, delay: frameInterval, frame: true})
	})
	vm.Set("cancelAnimationFrame", in.clearTimer)

	performance := vm.NewObject()
	_ = performance.Set("now", func(goja.FunctionCall) goja.Value { return vm.ToValue(in.now()) })
	vm.Set("performance", performance)

	// Dialogs have no user to answer them
	vm.Set("alert", func(call goja.FunctionCall) goja.Value {
		in.record("alert", call.Argument(0).String())
		return goja.Undefined()
	})
	vm.Set("confirm", func(goja.FunctionCall) goja.Value { return vm.ToValue(false) })
	vm.Set("prompt", func(goja.FunctionCall) goja.Value { return goja.Null() })

	vm.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		if _, ok := goja.AssertFunction(call.Argument(1)); ok {
			in.winEvents.add(call.Argument(0).String(), call.Argument(1))
		}
		return goja.Undefined()
	})
	vm.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		in.winEvents.remove(call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	})

	if in.cfg.EnableDOM {
		in.document = vm.NewDynamicObject(&documentObject{in: in})
		vm.Set("document", in.document)
	}
}

// postMessage serializes the message inside the VM and hands the bytes to
// the sink
func (in *Instance) postMessage(call goja.FunctionCall) goja.Value {
	if in.closing.Load() || in.sink == nil || in.stringify == nil {
		return goja.Undefined()
	}
	payload, err := in.stringify(goja.Undefined(), call.Argument(0))
	if err != nil {
		panic(in.vm.NewTypeError("DataCloneError: %s", err.Error()))
	}
	if payload == nil || goja.IsUndefined(payload) {
		return goja.Undefined()
	}
	in.sink([]byte(payload.String()))
	return goja.Undefined()
}

// makeConsoleFunc creates a console function
func (in *Instance) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		in.record(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (in *Instance) record(level, msg string) {
	in.consoleMu.Lock()
	defer in.consoleMu.Unlock()

	in.console = append(in.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
	if max := in.cfg.MaxConsoleEntries; max > 0 && len(in.console) > max {
		in.console = append([]LogEntry(nil), in.console[len(in.console)-max:]...)
	}
}

func (in *Instance) now() float64 {
	return float64(time.Since(in.started).Microseconds()) / 1000
}

// Timers

func (in *Instance) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		// String handlers are compiled the way eval would
		code := call.Argument(0).String()
		fn = func(goja.Value, ...goja.Value) (goja.Value, error) {
			return in.vm.RunScript(SourceName, code)
		}
	}

	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < minInterval {
		delay = minInterval
	}

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}
	return in.addTimer(&timer{fn: fn, args: args, delay: delay, repeat: repeat})
}

func (in *Instance) addTimer(t *timer) goja.Value {
	in.nextTimer++
	t.id = in.nextTimer
	in.timers[t.id] = t
	in.arm(t)
	return in.vm.ToValue(t.id)
}

func (in *Instance) arm(t *timer) {
	t.t = time.AfterFunc(t.delay, func() {
		in.loop.post(func() { in.fire(t) })
	})
}

func (in *Instance) fire(t *timer) {
	if in.timers[t.id] != t {
		return
	}
	if !t.repeat {
		delete(in.timers, t.id)
	}

	args := t.args
	if t.frame {
		args = []goja.Value{in.vm.ToValue(in.now())}
	}
	in.guard(func() error {
		_, err := t.fn(goja.Undefined(), args...)
		return err
	})

	if t.repeat && in.timers[t.id] == t {
		in.arm(t)
	}
}

func (in *Instance) clearTimer(call goja.FunctionCall) goja.Value {
	tid := call.Argument(0).ToInteger()
	if t, ok := in.timers[tid]; ok {
		t.t.Stop()
		delete(in.timers, tid)
	}
	return goja.Undefined()
}

// Events

func (in *Instance) newEvent(kind string, target goja.Value, stopped *bool) *goja.Object {
	vm := in.vm
	event := vm.NewObject()
	_ = event.Set("type", kind)
	_ = event.Set("target", target)
	_ = event.Set("currentTarget", target)
	_ = event.Set("timeStamp", in.now())
	_ = event.Set("defaultPrevented", false)
	_ = event.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		_ = event.Set("defaultPrevented", true)
		return goja.Undefined()
	})
	_ = event.Set("stopPropagation", func(goja.FunctionCall) goja.Value {
		*stopped = true
		return goja.Undefined()
	})
	return event
}

// dispatch fires kind at n and bubbles it through the ancestors to the
// document. It returns how many handlers ran.
func (in *Instance) dispatch(n *html.Node, kind string) int {
	var stopped bool
	target := in.wrap(n)
	event := in.newEvent(kind, target, &stopped)

	count := 0
	for cur := n; cur != nil && !stopped; cur = cur.Parent {
		switch cur.Type {
		case html.ElementNode:
			el := in.element(cur)
			_ = event.Set("currentTarget", el.obj)
			count += in.fireElement(el, kind, event)
		case html.DocumentNode:
			if in.document != nil {
				_ = event.Set("currentTarget", in.document)
			}
			count += in.fireAll(in.docEvents.snapshot(kind), in.document, event)
		}
	}
	return count
}

func (in *Instance) fireElement(el *element, kind string, event *goja.Object) int {
	count := in.fireAll(el.events.snapshot(kind), el.obj, event)

	// Property handler wins over the attribute, as in browsers
	if fn, ok := goja.AssertFunction(el.props["on"+kind]); ok {
		in.invoke(fn, el.obj, event)
		return count + 1
	}
	if code, ok := selection(el.node).Attr("on" + kind); ok && strings.TrimSpace(code) != "" {
		handler, err := in.vm.RunScript(SourceName, "(function (event) {\n"+code+"\n})")
		if err != nil {
			in.uncaught(err)
			return count
		}
		if fn, ok := goja.AssertFunction(handler); ok {
			in.invoke(fn, el.obj, event)
			return count + 1
		}
	}
	return count
}

func (in *Instance) fireAll(handlers []goja.Value, this goja.Value, event goja.Value) int {
	count := 0
	for _, h := range handlers {
		if fn, ok := goja.AssertFunction(h); ok {
			in.invoke(fn, this, event)
			count++
		}
	}
	return count
}

// fireLoaded runs DOMContentLoaded on the document, then load on window
func (in *Instance) fireLoaded() {
	var stopped bool
	if in.document != nil {
		in.fireAll(in.docEvents.snapshot("DOMContentLoaded"), in.document,
			in.newEvent("DOMContentLoaded", in.document, &stopped))
	}

	global := in.vm.GlobalObject()
	event := in.newEvent("load", global, &stopped)
	in.fireAll(in.winEvents.snapshot("load"), global, event)
	if fn, ok := goja.AssertFunction(global.Get("onload")); ok {
		in.invoke(fn, global, event)
	}
}

// invoke calls a handler from inside a running job. Exceptions are reported
// and swallowed so the remaining handlers still run.
func (in *Instance) invoke(fn goja.Callable, this goja.Value, args ...goja.Value) {
	if this == nil {
		this = goja.Undefined()
	}
	_, err := fn(this, args...)
	if err == nil {
		return
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		// The interrupt flag is still set; the enclosing job stops next.
		return
	}
	in.uncaught(err)
}

// Jobs

// guard runs one top-level job under the execution watchdog and routes an
// uncaught error to window.onerror
func (in *Instance) guard(job func() error) {
	if in.closing.Load() {
		return
	}
	if err := in.watch(job); err != nil {
		_ = in.watch(func() error {
			in.uncaught(err)
			return nil
		})
	}
}

func (in *Instance) watch(job func() error) (err error) {
	var (
		watchdog *time.Timer
		fired    = make(chan struct{})
	)
	if in.cfg.Timeout > 0 {
		watchdog = time.AfterFunc(in.cfg.Timeout, func() {
			defer close(fired)
			in.vm.Interrupt(timeoutError{after: in.cfg.Timeout})
		})
	}
	defer func() {
		// A watchdog that already fired must land before the flag is cleared
		if watchdog != nil && !watchdog.Stop() {
			<-fired
		}
		in.vm.ClearInterrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sandbox panic: %v", r)
		}
	}()
	return job()
}

// uncaught reports an error the script did not catch
func (in *Instance) uncaught(err error) {
	if in.closing.Load() {
		return
	}

	msg, line, col := errorPosition(err)
	if in.firstErr == nil {
		in.firstErr = err
	}
	in.record("error", msg)
	in.logger.Debug("Uncaught sandbox error", zap.String("message", msg), zap.Int("line", line))

	var errValue goja.Value = goja.Undefined()
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		errValue = ex.Value()
	}

	handler, ok := goja.AssertFunction(in.vm.GlobalObject().Get("onerror"))
	if !ok {
		return
	}
	vm := in.vm
	if _, herr := handler(goja.Undefined(), vm.ToValue(msg), vm.ToValue(SourceName),
		vm.ToValue(line), vm.ToValue(col), errValue); herr != nil {
		in.record("error", "onerror failed: "+herr.Error())
	}
}

// boundary reports reason on the console exactly as the failure boundary's
// catch clause does. Without a console the original error is returned.
func (in *Instance) boundary(reason string, err error) error {
	console, ok := in.vm.GlobalObject().Get("console").(*goja.Object)
	if !ok {
		return err
	}
	report, ok := goja.AssertFunction(console.Get("error"))
	if !ok {
		return err
	}
	_, rerr := report(console, in.vm.ToValue(preview.RuntimeErrorPrefix+reason))
	return rerr
}

func isStackOverflow(err error) bool {
	var overflow *goja.StackOverflowError
	return errors.As(err, &overflow)
}

// errorPosition builds the onerror message and extracts the 1-based
// position, or zero when none is known
func errorPosition(err error) (msg string, line, col int) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("Uncaught %v", interrupted.Value()), 0, 0
	}

	var ex *goja.Exception
	if isStackOverflow(err) {
		msg = "Uncaught RangeError: " + stackOverflowReason
	} else if errors.As(err, &ex) && ex.Value() != nil {
		msg = "Uncaught " + ex.Value().String()
	} else {
		msg = "Uncaught " + err.Error()
	}

	text := err.Error()
	for _, re := range []*regexp.Regexp{syntaxPosition, stackPosition} {
		if m := re.FindStringSubmatch(text); m != nil {
			line, _ = strconv.Atoi(m[1])
			col, _ = strconv.Atoi(m[2])
			return msg, line, col
		}
	}
	return msg, 0, 0
}

// Host-side operations, run on the loop

// Dispatch fires event at the first element matching selector
func (in *Instance) Dispatch(ctx context.Context, selector, event string) (int, error) {
	var (
		count int
		found bool
	)
	err := in.loop.do(ctx, func() {
		nodes := in.dom.Find(selector)
		if len(nodes) == 0 {
			return
		}
		found = true
		in.guard(func() error {
			count = in.dispatch(nodes[0], event)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNoTarget, selector)
	}
	return count, nil
}

// Snapshot renders the live DOM
func (in *Instance) Snapshot(ctx context.Context) (string, error) {
	var (
		out    string
		renErr error
	)
	if err := in.loop.do(ctx, func() { out, renErr = in.dom.HTML() }); err != nil {
		return "", err
	}
	return out, renErr
}

// PendingTimers reports how many timers are armed
func (in *Instance) PendingTimers(ctx context.Context) (int, error) {
	var n int
	err := in.loop.do(ctx, func() { n = len(in.timers) })
	return n, err
}
