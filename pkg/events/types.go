package events

import "encoding/json"

// Event name constants
const (
	SessionState  = "session.state"
	SessionPrompt = "session.saveprompt"
	SessionSaved  = "session.artifact"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SessionStateEvent is the typed payload for session.state. It carries no
// more than a watching presentation layer needs to refresh its indicators.
type SessionStateEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Reading   bool   `json:"reading"`
	LinkError bool   `json:"linkError"`
	Ts        int64  `json:"ts"`
}

// SessionPromptEvent is the typed payload for session.saveprompt, published
// when an error-path disconnect left buffered data behind and the daemon
// needs a keep-or-discard decision.
type SessionPromptEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Samples int    `json:"samples"`
	Ts      int64  `json:"ts"`
}

// SessionSavedEvent is the typed payload for session.artifact.
type SessionSavedEvent struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Rows int    `json:"rows"`
	Ts   int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.SessionStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.State)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
