package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

var (
	ErrClosed     = errors.New("sandbox instance is closed")
	ErrNoInstance = errors.New("no sandbox instance rendered yet")
	ErrNoTarget   = errors.New("no element matches selector")
)

// Config defines sandbox configuration
type Config struct {
	Timeout           time.Duration // Budget for one job (script, callback, event)
	MaxCallStackSize  int           // goja call stack limit
	MaxConsoleEntries int           // Entries kept in the instance's own console
	EnableConsole     bool          // Provide console.log/warn/error/info
	EnableDOM         bool          // Provide document and element proxies
}

// DefaultConfig returns the configuration used for previews
func DefaultConfig() Config {
	return Config{
		Timeout:           5 * time.Second,
		MaxCallStackSize:  1024,
		MaxConsoleEntries: 500,
		EnableConsole:     true,
		EnableDOM:         true,
	}
}

// SinkFactory returns the sink that receives each postMessage payload of a
// new instance as serialized JSON
type SinkFactory func(instance id.InstanceID) func([]byte)

// Result holds the outcome of rendering one document
type Result struct {
	Instance   id.InstanceID // Instance that now owns the preview
	Scripts    int           // Inline scripts evaluated
	Console    []LogEntry    // Sandbox-local console output during evaluation
	DOMChanges []DOMChange   // DOM modifications during evaluation
	Duration   time.Duration // Evaluation time
	Error      error         // First uncaught error, if any
}

// LogEntry represents output on the sandbox's own console
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// DOMChange represents a DOM modification made by sandboxed code
type DOMChange struct {
	Type     string `json:"type"` // set_text, set_html, set_attribute, remove_attribute, append_child, remove
	Target   string `json:"target"`
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"`
}
