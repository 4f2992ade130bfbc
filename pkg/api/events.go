package api

// StreamEventType identifies the kind of a streamed relay event.
type StreamEventType string

const (
	// EventFragment carries one non-empty text fragment.
	EventFragment StreamEventType = "fragment"

	// EventDone terminates a stream that completed normally.
	EventDone StreamEventType = "done"

	// EventError terminates a stream that failed.
	EventError StreamEventType = "error"
)

// DoneData is the payload of the done termination signal.
const DoneData = "end"

// StreamEvent is one event of a relayed stream. A stream is a sequence of
// fragment events followed by exactly one terminal event.
type StreamEvent struct {
	Type StreamEventType
	Data string
}

// FragmentEvent wraps a text fragment.
func FragmentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventFragment, Data: text}
}

// DoneEvent returns the normal termination signal.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone, Data: DoneData}
}

// ErrorEvent returns the failure termination signal carrying message.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Data: message}
}

// IsTerminal reports whether the event ends a stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
