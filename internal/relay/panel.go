package relay

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxLines bounds the console panel
const DefaultMaxLines = 1000

// Panel is the host-side console: an ordered, bounded list of lines
type Panel struct {
	mu       sync.RWMutex
	lines    []Event
	maxLines int
	policy   *bluemonday.Policy
}

// NewPanel creates a panel holding at most maxLines lines
func NewPanel(maxLines int) *Panel {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Panel{
		maxLines: maxLines,
		policy:   bluemonday.StrictPolicy(),
	}
}

// Append adds one line, dropping the oldest when full
func (p *Panel) Append(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines = append(p.lines, e)
	if over := len(p.lines) - p.maxLines; over > 0 {
		p.lines = append(p.lines[:0:0], p.lines[over:]...)
	}
}

// Lines returns a copy of the panel contents in arrival order
func (p *Panel) Lines() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event(nil), p.lines...)
}

// Len returns the number of lines held
func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lines)
}

// Clear empties the panel
func (p *Panel) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = nil
}

// HTML renders the panel as one div per line, tagged by method. Line text is
// stripped of markup.
func (p *Panel) HTML() string {
	lines := p.Lines()

	var b strings.Builder
	for _, e := range lines {
		b.WriteString(`<div class="console-log `)
		b.WriteString(string(e.Method))
		b.WriteString(`">`)
		b.WriteString(p.policy.Sanitize(e.Text()))
		b.WriteString("</div>\n")
	}
	return b.String()
}
