package sandbox

import (
	"strings"

	"github.com/dop251/goja"
)

// documentObject is the script-facing document
type documentObject struct {
	in    *Instance
	props map[string]goja.Value
}

func (d *documentObject) first(tag string) goja.Value {
	nodes := d.in.dom.Find(tag)
	if len(nodes) == 0 {
		return goja.Null()
	}
	return d.in.wrap(nodes[0])
}

// Get implements goja.DynamicObject
func (d *documentObject) Get(key string) goja.Value {
	in := d.in
	vm := in.vm
	fn := func(call func(goja.FunctionCall) goja.Value) goja.Value { return vm.ToValue(call) }

	switch key {
	case "body":
		return d.first("body")
	case "head":
		return d.first("head")
	case "documentElement":
		return d.first("html")
	case "readyState":
		return vm.ToValue("complete")
	case "title":
		nodes := in.dom.Find("title")
		if len(nodes) == 0 {
			return vm.ToValue("")
		}
		return vm.ToValue(strings.TrimSpace(selection(nodes[0]).Text()))
	case "getElementById":
		return fn(func(call goja.FunctionCall) goja.Value {
			want := call.Argument(0).String()
			for _, n := range in.dom.Find("[id]") {
				if attrValue(n, "id") == want {
					return in.wrap(n)
				}
			}
			return goja.Null()
		})
	case "querySelector":
		return fn(func(call goja.FunctionCall) goja.Value {
			nodes := in.dom.Find(call.Argument(0).String())
			if len(nodes) == 0 {
				return goja.Null()
			}
			return in.wrap(nodes[0])
		})
	case "querySelectorAll":
		return fn(func(call goja.FunctionCall) goja.Value {
			return in.wrapAll(in.dom.Find(call.Argument(0).String()))
		})
	case "getElementsByClassName":
		return fn(func(call goja.FunctionCall) goja.Value {
			var sel []string
			for _, c := range strings.Fields(call.Argument(0).String()) {
				sel = append(sel, "."+c)
			}
			if len(sel) == 0 {
				return vm.NewArray()
			}
			return in.wrapAll(in.dom.Find(strings.Join(sel, "")))
		})
	case "getElementsByTagName":
		return fn(func(call goja.FunctionCall) goja.Value {
			return in.wrapAll(in.dom.Find(call.Argument(0).String()))
		})
	case "createElement":
		return fn(func(call goja.FunctionCall) goja.Value {
			tag := call.Argument(0).String()
			if strings.TrimSpace(tag) == "" {
				panic(vm.NewTypeError("createElement: tag name is required"))
			}
			return in.wrap(newElementNode(tag))
		})
	case "addEventListener":
		return fn(func(call goja.FunctionCall) goja.Value {
			if _, ok := goja.AssertFunction(call.Argument(1)); ok {
				in.docEvents.add(call.Argument(0).String(), call.Argument(1))
			}
			return goja.Undefined()
		})
	case "removeEventListener":
		return fn(func(call goja.FunctionCall) goja.Value {
			in.docEvents.remove(call.Argument(0).String(), call.Argument(1))
			return goja.Undefined()
		})
	}

	if v, ok := d.props[key]; ok {
		return v
	}
	return nil
}

// Set implements goja.DynamicObject
func (d *documentObject) Set(key string, val goja.Value) bool {
	if key == "title" {
		if nodes := d.in.dom.Find("title"); len(nodes) > 0 {
			selection(nodes[0]).SetText(valueString(val))
			d.in.dom.RecordChange(DOMChange{Type: "set_text", Target: "title", Value: valueString(val)})
		}
		return true
	}
	if d.props == nil {
		d.props = map[string]goja.Value{}
	}
	d.props[key] = val
	return true
}

// Has implements goja.DynamicObject
func (d *documentObject) Has(key string) bool {
	switch key {
	case "body", "head", "documentElement", "readyState", "title":
		return true
	}
	_, ok := d.props[key]
	return ok
}

// Delete implements goja.DynamicObject
func (d *documentObject) Delete(key string) bool {
	delete(d.props, key)
	return true
}

// Keys implements goja.DynamicObject
func (d *documentObject) Keys() []string {
	keys := make([]string, 0, len(d.props))
	for k := range d.props {
		keys = append(keys, k)
	}
	return keys
}
