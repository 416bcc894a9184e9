// Package transcript folds chat events into an ordered conversation.
//
// At most one turn is open at a time. An open turn is always the last turn
// and always belongs to the assistant; closed turns never change.
package transcript

import "github.com/markis/coach/internal/stream"

// DefaultFallback is shown when an exchange fails before any text arrived.
const DefaultFallback = "Sorry, something went wrong. Please try again."

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation. Open is true while an assistant
// turn is still receiving deltas.
type Turn struct {
	Role Role
	Text string
	Open bool
}

// Transcript is the reducer state for a conversation. It is not safe for
// concurrent use; the owning session serializes access.
type Transcript struct {
	turns    []Turn
	fallback string

	// settled is true once the current exchange has been closed by Done,
	// Error or Abort. Events folded after that are ignored.
	settled bool
}

func New(fallback string) *Transcript {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Transcript{fallback: fallback, settled: true}
}

// Begin starts a new exchange by appending a closed user turn.
func (t *Transcript) Begin(query string) {
	t.closeOpen()
	t.turns = append(t.turns, Turn{Role: RoleUser, Text: query})
	t.settled = false
}

// Apply folds one event into the transcript and reports whether the
// transcript or the exchange state changed.
func (t *Transcript) Apply(event stream.Event) bool {
	if t.settled {
		return false
	}

	switch event.Kind {
	case stream.EventDelta:
		if event.Text == "" {
			return false
		}
		if open := t.open(); open != nil {
			open.Text += event.Text
			return true
		}
		t.turns = append(t.turns, Turn{Role: RoleAssistant, Text: event.Text, Open: true})
		return true

	case stream.EventDone:
		// Zero deltas is a valid empty answer: nothing is appended.
		t.closeOpen()
		t.settled = true
		return true

	case stream.EventError:
		switch open := t.open(); {
		case open == nil:
			t.turns = append(t.turns, Turn{Role: RoleAssistant, Text: t.fallback})
		case open.Text == "":
			open.Text = t.fallback
			open.Open = false
		default:
			// Partial output already shown is kept as the final answer.
			open.Open = false
		}
		t.settled = true
		return true
	}

	return false
}

// Abort closes the current exchange without folding anything further. Any
// partial assistant text becomes the final content of its turn.
func (t *Transcript) Abort() bool {
	if t.settled {
		return false
	}
	t.closeOpen()
	t.settled = true
	return true
}

// Turns returns a copy of the conversation in order.
func (t *Transcript) Turns() []Turn {
	turns := make([]Turn, len(t.turns))
	copy(turns, t.turns)
	return turns
}

func (t *Transcript) open() *Turn {
	if len(t.turns) == 0 {
		return nil
	}
	last := &t.turns[len(t.turns)-1]
	if !last.Open {
		return nil
	}
	return last
}

func (t *Transcript) closeOpen() {
	if open := t.open(); open != nil {
		open.Open = false
	}
}
