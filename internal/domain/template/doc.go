// Package template provides the fixed gallery of starter buffer sets.
//
// Definitions live as YAML files embedded in the binary, one per template:
//
//	id: basic
//	name: Basic HTML
//	description: ...
//	html: |-
//	  <div class="container">...</div>
//	css: |-
//	  body { ... }
//	js: |-
//	  function handleClick() { ... }
//
// The set of IDs is closed; Lookup either returns a template or wraps
// ErrTemplateNotFound.
package template
