// Package preview assembles the three playground buffers into one
// renderable document.
//
// The document carries its own console bridge: a preamble redefines
// console.log, console.warn and console.error so every call is posted to the
// parent context as {type: "console", method, args} before reaching the
// original console, and window.onerror reports uncaught exceptions the same
// way. The user script is wrapped in try/catch so a synchronous throw is
// reported as a console error instead of stopping the page.
package preview
