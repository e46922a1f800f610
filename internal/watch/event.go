// Package watch runs one long-lived monitoring loop per watched
// mailbox. Each loop holds a dedicated IMAP connection, keeps a
// high-water-mark UID cursor, and turns server pushes into change
// events that feed hooks, the journal, and live subscribers.
package watch

// Kind classifies a change event.
type Kind string

const (
	// KindExists reports a newly detected message. UID is set.
	KindExists Kind = "exists"
	// KindExpunge reports a message removal. The cursor is unaffected.
	KindExpunge Kind = "expunge"
	// KindBye reports that a watch session ended and will reconnect.
	KindBye Kind = "bye"
)

// Event is one observed mailbox change.
type Event struct {
	Server      string `json:"server"`
	Mailbox     string `json:"mailbox"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`
	UID         uint32 `json:"uid,omitempty"`
}
