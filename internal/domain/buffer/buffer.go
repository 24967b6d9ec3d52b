package buffer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownPane is returned for a pane name outside html, css and js
var ErrUnknownPane = errors.New("unknown pane")

// Pane identifies one of the three editor buffers
type Pane string

const (
	PaneHTML Pane = "html"
	PaneCSS  Pane = "css"
	PaneJS   Pane = "js"
)

// Panes lists every pane in display order
var Panes = []Pane{PaneHTML, PaneCSS, PaneJS}

// ParsePane converts a pane name into a Pane
func ParsePane(name string) (Pane, error) {
	p := Pane(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Panes {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %v)", ErrUnknownPane, name, Panes)
}

// Set holds the three authored source texts. The zero value is three empty
// buffers.
type Set struct {
	Markup string `json:"html"`
	Style  string `json:"css"`
	Script string `json:"js"`
}

// Get returns the text of one pane
func (s Set) Get(p Pane) (string, error) {
	switch p {
	case PaneHTML:
		return s.Markup, nil
	case PaneCSS:
		return s.Style, nil
	case PaneJS:
		return s.Script, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPane, p)
}

// With returns a copy of s with one pane replaced
func (s Set) With(p Pane, text string) (Set, error) {
	switch p {
	case PaneHTML:
		s.Markup = text
	case PaneCSS:
		s.Style = text
	case PaneJS:
		s.Script = text
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownPane, p)
	}
	return s, nil
}

// IsEmpty reports whether all three buffers are empty
func (s Set) IsEmpty() bool {
	return s.Markup == "" && s.Style == "" && s.Script == ""
}

// SavedSession is the persisted form of a Set
type SavedSession struct {
	HTML      string `json:"html"`
	CSS       string `json:"css"`
	JS        string `json:"js"`
	Timestamp string `json:"timestamp"`
}

// NewSavedSession stamps a Set with the save time
func NewSavedSession(s Set, at time.Time) SavedSession {
	return SavedSession{
		HTML:      s.Markup,
		CSS:       s.Style,
		JS:        s.Script,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// Buffers converts the record back into a Set
func (s SavedSession) Buffers() Set {
	return Set{Markup: s.HTML, Style: s.CSS, Script: s.JS}
}

// SavedAt parses the record timestamp. A missing or unparsable timestamp
// yields the zero time.
func (s SavedSession) SavedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
