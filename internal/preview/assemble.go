package preview

import (
	"strings"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
)

// Document is one fully assembled, self-contained preview page
type Document string

func (d Document) String() string { return string(d) }

// RuntimeErrorPrefix marks errors caught by the failure boundary around the
// user script
const RuntimeErrorPrefix = "Error: "

// boundaryCatch opens the catch clause of the failure boundary
const boundaryCatch = "\n} catch (err) {\n  console.error('" + RuntimeErrorPrefix + "'"

// Guarded reports whether a script carries the failure boundary, meaning any
// exception thrown by the user code in it is reported with
// RuntimeErrorPrefix instead of escaping to window.onerror.
func Guarded(script string) bool {
	return strings.Contains(script, boundaryCatch)
}

// consolePreamble runs inside the sandbox before any user code. It forwards
// console.log/warn/error to the parent context as
// {type: 'console', method, args} and reports uncaught errors the same way.
const consolePreamble = `(function () {
  var post = function (method, args) {
    try {
      window.parent.postMessage({ type: 'console', method: method, args: args }, '*');
    } catch (e) {}
  };
  var serialize = function (arg) {
    if (arg === null || typeof arg === 'object') {
      try {
        var out = JSON.stringify(arg);
        return out === undefined ? String(arg) : out;
      } catch (e) {
        return String(arg);
      }
    }
    return String(arg);
  };
  ['log', 'warn', 'error'].forEach(function (method) {
    var original = console[method];
    console[method] = function () {
      var args = Array.prototype.slice.call(arguments);
      post(method, args.map(serialize));
      if (typeof original === 'function') {
        original.apply(console, args);
      }
    };
  });
  window.onerror = function (msg, url, line, col, error) {
    try {
      post('error', [String(msg) + ' (Line: ' + line + ')']);
    } catch (e) {}
  };
})();`

// Assemble wraps the three buffers into one renderable document: header,
// style block, markup, then a script holding the console preamble followed by
// the user script inside a failure boundary. Nothing is escaped; the output
// depends only on the input.
func Assemble(set buffer.Set) Document {
	var b strings.Builder
	b.Grow(len(set.Markup) + len(set.Style) + len(set.Script) + len(consolePreamble) + 512)

	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html>\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<style>")
	b.WriteString(set.Style)
	b.WriteString("</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(set.Markup)
	b.WriteString("\n<script>\n")
	b.WriteString(consolePreamble)
	b.WriteString("\ntry {\n")
	b.WriteString(set.Script)
	b.WriteString(boundaryCatch)
	b.WriteString(" + (err && err.message !== undefined ? err.message : err));\n}\n")
	b.WriteString("</script>\n</body>\n</html>\n")

	return Document(b.String())
}
