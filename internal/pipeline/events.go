// Package pipeline ties collection and verification together into a
// target-seeking loop, emitting progress and result events to a caller-
// provided sink.
package pipeline

// Event is one member of the result event vocabulary: start, progress,
// item, done, error.
type Event interface {
	Kind() string
}

// StartEvent opens a session's event stream.
type StartEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

func (StartEvent) Kind() string { return "start" }

// ProgressEvent reports aggregate counters after each batch.
type ProgressEvent struct {
	Searched       int `json:"searched"`
	ConfirmedCount int `json:"confirmedCount"`
	RejectedCount  int `json:"rejectedCount"`
}

func (ProgressEvent) Kind() string { return "progress" }

// ItemEvent delivers one accepted number. Confirmed is nil when
// verification was not requested.
type ItemEvent struct {
	Phone     string `json:"phone"`
	Confirmed *bool  `json:"confirmed"`
}

func (ItemEvent) Kind() string { return "item" }

// DoneEvent closes the stream with the session totals.
type DoneEvent struct {
	Count          int  `json:"count"`
	ConfirmedCount int  `json:"confirmedCount"`
	RejectedCount  int  `json:"rejectedCount"`
	Searched       int  `json:"searched"`
	Exhausted      bool `json:"exhausted"`
}

func (DoneEvent) Kind() string { return "done" }

// ErrorEvent reports a session-level fatal failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) Kind() string { return "error" }

// Sink receives events as the session progresses.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// DiscardSink drops every event.
var DiscardSink Sink = SinkFunc(func(Event) {})
