package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/preview"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// collector decodes everything the instances post
type collector struct {
	mu   sync.Mutex
	msgs []relay.Message
	from []id.InstanceID
}

func (c *collector) sinkFor(instance id.InstanceID) func([]byte) {
	return func(raw []byte) {
		msg, ok := relay.Decode(raw)
		if !ok {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.msgs = append(c.msgs, msg)
		c.from = append(c.from, instance)
	}
}

func (c *collector) messages() []relay.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]relay.Message(nil), c.msgs...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func newTestHost(t *testing.T, cfg Config) (*Host, *collector) {
	t.Helper()
	c := &collector{}
	h := NewHost(cfg, c.sinkFor, nil)
	t.Cleanup(h.Close)
	return h, c
}

func render(t *testing.T, h *Host, set buffer.Set) *Result {
	t.Helper()
	result, err := h.Render(context.Background(), preview.Assemble(set))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRenderRelaysConsole(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	result := render(t, h, buffer.Set{Markup: "<p>hi</p>", Style: "p{color:red}", Script: "console.log('ok')"})
	assert.NoError(t, result.Error)
	assert.Equal(t, 1, result.Scripts)

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, relay.MethodLog, msgs[0].Method)
	assert.Equal(t, []string{"ok"}, msgs[0].Args)

	// The wrapped console still records locally
	require.NotEmpty(t, result.Console)
	assert.Equal(t, "ok", result.Console[0].Message)
}

func TestRenderCaughtError(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	result := render(t, h, buffer.Set{Script: `throw new Error("x")`})
	assert.NoError(t, result.Error, "failure boundary should catch the throw")

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, relay.MethodError, msgs[0].Method)
	require.Len(t, msgs[0].Args, 1)
	assert.Equal(t, "Error: x", msgs[0].Args[0])
}

func TestRenderPreservesOrder(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: "console.log('a'); console.warn('b'); console.error('c');"})

	msgs := c.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, relay.MethodLog, msgs[0].Method)
	assert.Equal(t, relay.MethodWarn, msgs[1].Method)
	assert.Equal(t, relay.MethodError, msgs[2].Method)
	assert.Equal(t, []string{"a"}, msgs[0].Args)
	assert.Equal(t, []string{"b"}, msgs[1].Args)
	assert.Equal(t, []string{"c"}, msgs[2].Args)
}

func TestRenderSerializesArguments(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: `
var loop = {}; loop.self = loop;
console.log('n', 42, {a: 1}, [1, 2], null, undefined, loop);`})

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"n", "42", `{"a":1}`, "[1,2]", "null", "undefined", "[object Object]"}, msgs[0].Args)
}

func TestRecursionIsCaughtByBoundary(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	result := render(t, h, buffer.Set{Script: "function f() { return f(); }\nf();"})
	assert.NoError(t, result.Error, "failure boundary should report the overflow")

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, relay.MethodError, msgs[0].Method)
	assert.Equal(t, []string{"Error: Maximum call stack size exceeded"}, msgs[0].Args)

	// The next rebuild is unaffected
	render(t, h, buffer.Set{Script: "console.log('after')"})
	msgs = c.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"after"}, msgs[1].Args)
}

func TestRecursionOutsideBoundaryReachesOnError(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: "setTimeout(function f() { return f(); }, 1);"})

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	msg := c.messages()[0]
	assert.Equal(t, relay.MethodError, msg.Method)
	require.Len(t, msg.Args, 1)
	assert.Contains(t, msg.Args[0], "Uncaught RangeError: Maximum call stack size exceeded")
	assert.Contains(t, msg.Args[0], "(Line: ")
}

func TestUncaughtTimerErrorReachesOnError(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: "setTimeout(function () {\n  throw new Error('late');\n}, 1);"})

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	msg := c.messages()[0]
	assert.Equal(t, relay.MethodError, msg.Method)
	require.Len(t, msg.Args, 1)
	assert.Contains(t, msg.Args[0], "Uncaught Error: late")
	assert.Contains(t, msg.Args[0], "(Line: ")
}

func TestSyntaxErrorIsReported(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	result := render(t, h, buffer.Set{Script: "console.log('never'"})

	require.Error(t, result.Error)
	// The whole script failed to compile, so the preamble never installed
	// its console bridge.
	assert.Zero(t, c.count())
	require.NotEmpty(t, result.Console)
	assert.Equal(t, "error", result.Console[0].Level)
}

func TestInfiniteLoopIsInterrupted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	h, c := newTestHost(t, cfg)

	start := time.Now()
	result := render(t, h, buffer.Set{Script: "while (true) {}"})
	assert.Less(t, time.Since(start), 5*time.Second)

	var interrupted *goja.InterruptedError
	require.True(t, errors.As(result.Error, &interrupted), "want interrupt, got %v", result.Error)

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Args[0], "timed out")

	// The host stays usable
	render(t, h, buffer.Set{Script: "console.log('after')"})
	msgs = c.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"after"}, msgs[1].Args)
}

func TestRenderReplacesInstance(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	first := render(t, h, buffer.Set{Script: "setInterval(function () { console.log('tick'); }, 5);"})
	require.Eventually(t, func() bool { return c.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	old, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, first.Instance, old.ID())

	second := render(t, h, buffer.Set{Script: "console.log('fresh')"})
	assert.NotEqual(t, first.Instance, second.Instance)

	cur, _ := h.Current()
	assert.Equal(t, second.Instance, cur.ID())

	_, err := old.PendingTimers(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	settled := c.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, c.count(), "replaced instance kept running")
}

func TestNoStateSharedBetweenRenders(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: "var leaked = 'first';"})
	render(t, h, buffer.Set{Script: "console.log(typeof leaked);"})

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"undefined"}, msgs[0].Args)
}

func TestDangerousGlobalsRemoved(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: "console.log(typeof require, typeof process, typeof module, typeof exports);"})

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"undefined", "undefined", "undefined", "undefined"}, msgs[0].Args)
}

func TestDOMManipulationAndSnapshot(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{
		Markup: `<p id="out">before</p><ul class="list"></ul><div id="box"></div>`,
		Script: `
document.getElementById('out').textContent = 'after';
var ul = document.querySelector('ul.list');
['a', 'b'].forEach(function (t) {
  var li = document.createElement('li');
  li.textContent = t;
  ul.appendChild(li);
});
var box = document.getElementById('box');
box.style.backgroundColor = 'red';
box.classList.add('ready');
document.querySelectorAll('li').forEach(function (li) { console.log(li.tagName, li.textContent); });
console.log(document.getElementById('missing') === null);`,
	})

	msgs := c.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"LI", "a"}, msgs[0].Args)
	assert.Equal(t, []string{"LI", "b"}, msgs[1].Args)
	assert.Equal(t, []string{"true"}, msgs[2].Args)

	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap, `<p id="out">after</p>`)
	assert.Contains(t, snap, `<ul class="list"><li>a</li><li>b</li></ul>`)
	assert.Contains(t, snap, `style="background-color: red;"`)
	assert.Contains(t, snap, `class="ready"`)

	cur, _ := h.Current()
	changes := cur.DOMChanges()
	require.NotEmpty(t, changes)
	assert.Equal(t, DOMChange{Type: "set_text", Target: "p#out", Value: "after"}, changes[0])
}

func TestDispatch(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	_, err := h.Dispatch(context.Background(), "#btn", "click")
	assert.ErrorIs(t, err, ErrNoInstance)

	render(t, h, buffer.Set{
		Markup: `<div id="wrap"><button id="btn" onclick="console.log('attr')">Go</button></div><button id="plain">x</button>`,
		Script: `
document.getElementById('btn').addEventListener('click', function (e) {
  console.log('listener', e.type, e.target.id);
});
document.getElementById('wrap').addEventListener('click', function () { console.log('bubbled'); });
document.getElementById('plain').onclick = function () { throw new Error('handler'); };`,
	})
	require.Zero(t, c.count())

	n, err := h.Dispatch(context.Background(), "#btn", "click")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs := c.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"listener", "click", "btn"}, msgs[0].Args)
	assert.Equal(t, []string{"attr"}, msgs[1].Args)
	assert.Equal(t, []string{"bubbled"}, msgs[2].Args)

	_, err = h.Dispatch(context.Background(), "#plain", "click")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, c.messages()[3].Args[0], "Uncaught Error: handler")

	_, err = h.Dispatch(context.Background(), "#missing", "click")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestLoadEvents(t *testing.T) {
	h, c := newTestHost(t, DefaultConfig())

	render(t, h, buffer.Set{Script: `
document.addEventListener('DOMContentLoaded', function () { console.log('ready'); });
window.addEventListener('load', function () { console.log('load'); });
console.log('script');`})

	msgs := c.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"script"}, msgs[0].Args)
	assert.Equal(t, []string{"ready"}, msgs[1].Args)
	assert.Equal(t, []string{"load"}, msgs[2].Args)
}

func TestClosedHost(t *testing.T) {
	h := NewHost(DefaultConfig(), nil, nil)
	render(t, h, buffer.Set{Script: "setInterval(function () {}, 5);"})

	h.Close()
	h.Close()

	_, err := h.Render(context.Background(), preview.Assemble(buffer.Set{}))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestErrorPosition(t *testing.T) {
	vm := goja.New()

	_, err := vm.RunScript("page.html", "\n\nthrow new Error('boom');")
	require.Error(t, err)
	msg, line, _ := errorPosition(err)
	assert.Equal(t, "Uncaught Error: boom", msg)
	assert.Equal(t, 3, line)

	_, err = vm.RunScript("page.html", "var = ;")
	require.Error(t, err)
	msg, line, _ = errorPosition(err)
	assert.Contains(t, msg, "Uncaught ")
	assert.Equal(t, 1, line)

	overflow := goja.New()
	overflow.SetMaxCallStackSize(8)
	_, err = overflow.RunScript("page.html", "\nfunction f() { return f(); }\nf();")
	require.Error(t, err)
	msg, line, _ = errorPosition(err)
	assert.Equal(t, "Uncaught RangeError: Maximum call stack size exceeded", msg)
	assert.Equal(t, 2, line)

	msg, line, col := errorPosition(errors.New("plain"))
	assert.Equal(t, "Uncaught plain", msg)
	assert.Zero(t, line)
	assert.Zero(t, col)
}
