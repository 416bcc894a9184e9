package stream

import "strings"

// Wire protocol literals.
const (
	DataPrefix    = "data: "
	DoneSentinel  = "[DONE]"
	ErrorSentinel = "[ERROR]"
)

// EventKind tags a chat Event.
type EventKind int

const (
	// EventDelta carries a fragment of assistant text to append.
	EventDelta EventKind = iota + 1
	// EventDone signals a successfully completed answer.
	EventDone
	// EventError signals that the service failed to produce an answer.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a classified frame. Text holds the delta for EventDelta and the
// error message for EventError.
type Event struct {
	Kind EventKind
	Text string
}

func DeltaEvent(text string) Event {
	return Event{Kind: EventDelta, Text: text}
}

func DoneEvent() Event {
	return Event{Kind: EventDone}
}

func ErrorEvent(message string) Event {
	return Event{Kind: EventError, Text: message}
}

// Terminal reports whether no event may follow e on the same stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Classify maps a frame to an Event. The second result is false for frames
// that carry no event: frames without the data prefix (comments, heartbeats)
// and frames with an empty payload.
func Classify(frame string) (Event, bool) {
	payload, ok := strings.CutPrefix(frame, DataPrefix)
	if !ok || payload == "" {
		return Event{}, false
	}

	if payload == DoneSentinel {
		return DoneEvent(), true
	}

	if rest, ok := strings.CutPrefix(payload, ErrorSentinel); ok {
		message := strings.TrimSpace(rest)
		if message == "" {
			message = "unknown error"
		}
		return ErrorEvent(message), true
	}

	return DeltaEvent(payload), true
}
