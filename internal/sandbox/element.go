package sandbox

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// listeners maps event types to handlers in registration order
type listeners map[string][]goja.Value

func (l listeners) add(kind string, fn goja.Value) {
	for _, existing := range l[kind] {
		if existing.StrictEquals(fn) {
			return
		}
	}
	l[kind] = append(l[kind], fn)
}

func (l listeners) remove(kind string, fn goja.Value) {
	handlers := l[kind]
	for i, existing := range handlers {
		if existing.StrictEquals(fn) {
			l[kind] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// snapshot copies the handlers so listeners added during dispatch do not run
func (l listeners) snapshot(kind string) []goja.Value {
	return append([]goja.Value(nil), l[kind]...)
}

// element is the script-facing proxy for one DOM node. Proxies are cached per
// node so identity holds across lookups.
type element struct {
	in     *Instance
	node   *html.Node
	obj    *goja.Object
	style  *goja.Object
	props  map[string]goja.Value
	events listeners
}

// wrap returns the proxy object for n, or null
func (in *Instance) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	return in.element(n).obj
}

func (in *Instance) element(n *html.Node) *element {
	if e, ok := in.elements[n]; ok {
		return e
	}
	e := &element{
		in:     in,
		node:   n,
		props:  map[string]goja.Value{},
		events: listeners{},
	}
	e.obj = in.vm.NewDynamicObject(e)
	e.style = in.vm.NewDynamicObject(&styleDecl{el: e})
	in.elements[n] = e
	in.proxies[e.obj] = e
	return e
}

// unwrap resolves a script value back to its element
func (in *Instance) unwrap(v goja.Value) (*element, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	e, ok := in.proxies[obj]
	return e, ok
}

// wrapAll returns an array of proxies
func (in *Instance) wrapAll(nodes []*html.Node) goja.Value {
	items := make([]interface{}, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, in.element(n).obj)
	}
	return in.vm.NewArray(items...)
}

func (e *element) fn(call func(goja.FunctionCall) goja.Value) goja.Value {
	return e.in.vm.ToValue(call)
}

func (e *element) attr(name string) string {
	return attrValue(e.node, name)
}

func (e *element) setAttr(name, value string) {
	selection(e.node).SetAttr(name, value)
	e.in.dom.RecordChange(DOMChange{Type: "set_attribute", Target: describe(e.node), Property: name, Value: value})
}

// Get implements goja.DynamicObject
func (e *element) Get(key string) goja.Value {
	vm := e.in.vm
	switch key {
	case "tagName", "nodeName":
		return vm.ToValue(strings.ToUpper(e.node.Data))
	case "nodeType":
		return vm.ToValue(1)
	case "id":
		return vm.ToValue(e.attr("id"))
	case "className":
		return vm.ToValue(e.attr("class"))
	case "value":
		return vm.ToValue(e.attr("value"))
	case "textContent", "innerText":
		return vm.ToValue(selection(e.node).Text())
	case "innerHTML":
		s, _ := selection(e.node).Html()
		return vm.ToValue(s)
	case "outerHTML":
		s, _ := goquery.OuterHtml(selection(e.node))
		return vm.ToValue(s)
	case "children":
		return e.in.wrapAll(elementChildren(e.node))
	case "firstElementChild":
		if kids := elementChildren(e.node); len(kids) > 0 {
			return e.in.wrap(kids[0])
		}
		return goja.Null()
	case "parentElement", "parentNode":
		if p := e.node.Parent; p != nil && p.Type == html.ElementNode {
			return e.in.wrap(p)
		}
		if key == "parentNode" && e.node.Parent != nil {
			return e.in.document
		}
		return goja.Null()
	case "style":
		return e.style
	case "classList":
		return e.classList()
	case "getAttribute":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(call.Argument(0).String())
			if v, ok := selection(e.node).Attr(name); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		})
	case "hasAttribute":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			_, ok := selection(e.node).Attr(strings.ToLower(call.Argument(0).String()))
			return vm.ToValue(ok)
		})
	case "setAttribute":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			e.setAttr(strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
			return goja.Undefined()
		})
	case "removeAttribute":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(call.Argument(0).String())
			selection(e.node).RemoveAttr(name)
			e.in.dom.RecordChange(DOMChange{Type: "remove_attribute", Target: describe(e.node), Property: name})
			return goja.Undefined()
		})
	case "addEventListener":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			if _, ok := goja.AssertFunction(call.Argument(1)); ok {
				e.events.add(call.Argument(0).String(), call.Argument(1))
			}
			return goja.Undefined()
		})
	case "removeEventListener":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			e.events.remove(call.Argument(0).String(), call.Argument(1))
			return goja.Undefined()
		})
	case "click":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			e.in.dispatch(e.node, "click")
			return goja.Undefined()
		})
	case "focus", "blur":
		return e.fn(func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	case "appendChild":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			child, ok := e.in.unwrap(call.Argument(0))
			if !ok {
				panic(vm.NewTypeError("appendChild: argument is not an element"))
			}
			if isAncestor(child.node, e.node) {
				panic(vm.NewTypeError("appendChild: the new child is an ancestor of the parent"))
			}
			detach(child.node)
			e.node.AppendChild(child.node)
			e.in.dom.RecordChange(DOMChange{Type: "append_child", Target: describe(e.node), Value: describe(child.node)})
			return child.obj
		})
	case "remove":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			if e.node.Parent != nil {
				e.in.dom.RecordChange(DOMChange{Type: "remove", Target: describe(e.node)})
				detach(e.node)
			}
			return goja.Undefined()
		})
	case "querySelector":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			nodes := selection(e.node).Find(call.Argument(0).String()).Nodes
			if len(nodes) == 0 {
				return goja.Null()
			}
			return e.in.wrap(nodes[0])
		})
	case "querySelectorAll":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			return e.in.wrapAll(selection(e.node).Find(call.Argument(0).String()).Nodes)
		})
	case "getContext":
		if e.node.Data != "canvas" {
			break
		}
		return e.fn(func(call goja.FunctionCall) goja.Value {
			return vm.NewDynamicObject(&drawingContext{canvas: e, props: map[string]goja.Value{}})
		})
	case "getBoundingClientRect":
		return e.fn(func(call goja.FunctionCall) goja.Value {
			rect := vm.NewObject()
			for _, k := range []string{"x", "y", "top", "left", "right", "bottom", "width", "height"} {
				_ = rect.Set(k, 0)
			}
			return rect
		})
	}

	if v, ok := e.props[key]; ok {
		return v
	}
	return nil
}

// Set implements goja.DynamicObject
func (e *element) Set(key string, val goja.Value) bool {
	switch key {
	case "textContent", "innerText":
		text := valueString(val)
		selection(e.node).SetText(text)
		e.in.dom.RecordChange(DOMChange{Type: "set_text", Target: describe(e.node), Value: text})
	case "innerHTML":
		markup := valueString(val)
		selection(e.node).SetHtml(markup)
		e.in.dom.RecordChange(DOMChange{Type: "set_html", Target: describe(e.node), Value: markup})
	case "id":
		e.setAttr("id", valueString(val))
	case "className":
		e.setAttr("class", valueString(val))
	case "value":
		e.setAttr("value", valueString(val))
	case "style":
		e.setAttr("style", valueString(val))
	default:
		e.props[key] = val
	}
	return true
}

// Has implements goja.DynamicObject
func (e *element) Has(key string) bool {
	switch key {
	case "tagName", "nodeName", "nodeType", "id", "className", "value", "textContent",
		"innerText", "innerHTML", "outerHTML", "children", "parentElement", "parentNode", "style", "classList":
		return true
	}
	_, ok := e.props[key]
	return ok
}

// Delete implements goja.DynamicObject
func (e *element) Delete(key string) bool {
	delete(e.props, key)
	return true
}

// Keys implements goja.DynamicObject
func (e *element) Keys() []string {
	keys := make([]string, 0, len(e.props))
	for k := range e.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *element) classList() goja.Value {
	vm := e.in.vm
	list := vm.NewObject()
	classes := func() []string { return strings.Fields(e.attr("class")) }
	write := func(cs []string) { e.setAttr("class", strings.Join(cs, " ")) }
	has := func(cs []string, name string) bool {
		for _, c := range cs {
			if c == name {
				return true
			}
		}
		return false
	}

	_ = list.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(has(classes(), call.Argument(0).String()))
	})
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		cs := classes()
		for _, arg := range call.Arguments {
			if name := arg.String(); !has(cs, name) {
				cs = append(cs, name)
			}
		}
		write(cs)
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		var kept []string
		for _, c := range classes() {
			drop := false
			for _, arg := range call.Arguments {
				if arg.String() == c {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, c)
			}
		}
		write(kept)
		return goja.Undefined()
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		cs := classes()
		if has(cs, name) {
			var kept []string
			for _, c := range cs {
				if c != name {
					kept = append(kept, c)
				}
			}
			write(kept)
			return vm.ToValue(false)
		}
		write(append(cs, name))
		return vm.ToValue(true)
	})
	return list
}

// styleDecl exposes the inline style attribute as a property bag
type styleDecl struct {
	el *element
}

func (s *styleDecl) Get(key string) goja.Value {
	attr := s.el.attr("style")
	if key == "cssText" {
		return s.el.in.vm.ToValue(attr)
	}
	name := cssName(key)
	for _, d := range parseStyle(attr) {
		if d[0] == name {
			return s.el.in.vm.ToValue(d[1])
		}
	}
	return nil
}

func (s *styleDecl) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		s.el.setAttr("style", valueString(val))
		return true
	}
	name, value := cssName(key), valueString(val)
	decls := parseStyle(s.el.attr("style"))
	replaced := false
	for i, d := range decls {
		if d[0] == name {
			if value == "" {
				decls = append(decls[:i], decls[i+1:]...)
			} else {
				decls[i][1] = value
			}
			replaced = true
			break
		}
	}
	if !replaced && value != "" {
		decls = append(decls, [2]string{name, value})
	}
	s.el.setAttr("style", formatStyle(decls))
	return true
}

func (s *styleDecl) Has(key string) bool {
	return s.Get(key) != nil
}

func (s *styleDecl) Delete(key string) bool {
	return s.Set(key, s.el.in.vm.ToValue(""))
}

func (s *styleDecl) Keys() []string {
	decls := parseStyle(s.el.attr("style"))
	keys := make([]string, 0, len(decls))
	for _, d := range decls {
		keys = append(keys, d[0])
	}
	return keys
}

func isAncestor(candidate, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

func valueString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// drawingContext accepts the canvas 2D API without rendering anything.
// Properties read back what was written; every other member is a no-op
// method.
type drawingContext struct {
	canvas *element
	props  map[string]goja.Value
}

func (c *drawingContext) Get(key string) goja.Value {
	if key == "canvas" {
		return c.canvas.obj
	}
	if v, ok := c.props[key]; ok {
		return v
	}
	return c.canvas.in.vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() })
}

func (c *drawingContext) Set(key string, val goja.Value) bool {
	c.props[key] = val
	return true
}

func (c *drawingContext) Has(key string) bool { return true }

func (c *drawingContext) Delete(key string) bool {
	delete(c.props, key)
	return true
}

func (c *drawingContext) Keys() []string { return nil }
