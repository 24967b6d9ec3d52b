package relay

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// MessageType is the only type tag the relay acts on
const MessageType = "console"

// Method is the console entry point that produced a message
type Method string

const (
	MethodLog   Method = "log"
	MethodWarn  Method = "warn"
	MethodError Method = "error"
)

// Valid reports whether m is one of log, warn, error
func (m Method) Valid() bool {
	switch m {
	case MethodLog, MethodWarn, MethodError:
		return true
	}
	return false
}

// Message is the wire shape posted from the sandbox to the host
type Message struct {
	Type   string   `json:"type"`
	Method Method   `json:"method"`
	Args   []string `json:"args"`
}

// Decode parses a raw sandbox payload. Anything that is not a well-formed
// console message reports ok=false; callers drop it without error.
func Decode(raw []byte) (Message, bool) {
	var msg Message
	if err := sonic.ConfigStd.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}
	if msg.Type != MessageType || !msg.Method.Valid() {
		return Message{}, false
	}
	if msg.Args == nil {
		msg.Args = []string{}
	}
	return msg, true
}

// Encode serializes a console message in wire form
func Encode(method Method, args ...string) []byte {
	if args == nil {
		args = []string{}
	}
	data, _ := sonic.ConfigStd.Marshal(Message{Type: MessageType, Method: method, Args: args})
	return data
}

// Event is one console line as the host sees it
type Event struct {
	Seq      uint64        `json:"seq"`
	Instance id.InstanceID `json:"instance"`
	Method   Method        `json:"method"`
	Args     []string      `json:"args"`
	Time     time.Time     `json:"time"`
}

// Text joins the arguments the way the console panel shows them
func (e Event) Text() string {
	return strings.Join(e.Args, " ")
}
