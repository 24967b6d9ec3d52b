package playground

import (
	"time"

	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// EventType names a lifecycle event
type EventType string

const (
	EventSaved      EventType = "saved"
	EventSaveFailed EventType = "save_failed"
	EventRebuilt    EventType = "rebuilt"
)

// Event is published after every save attempt and every rebuild
type Event struct {
	Type      EventType     `json:"type"`
	Time      time.Time     `json:"time"`
	Timestamp string        `json:"timestamp,omitempty"` // saved record timestamp
	Instance  id.InstanceID `json:"instance,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Uncaught  bool          `json:"uncaught,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Observer receives save and rebuild outcomes, typically for metrics
type Observer interface {
	ObserveSave(err error)
	ObserveRebuild(d time.Duration, uncaught bool, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSave(error)                         {}
func (nopObserver) ObserveRebuild(time.Duration, bool, error) {}
