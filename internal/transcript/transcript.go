// Package transcript persists the bounded per-session conversation history.
package transcript

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one immutable conversation turn. Entries are only ever appended to
// a transcript or dropped from its head when the retention bound is exceeded.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered history of one session, oldest first.
type Transcript []Entry

// Trim drops the oldest entries until len(t) <= limit. A non-positive limit
// leaves t unchanged.
func Trim(t Transcript, limit int) Transcript {
	if limit <= 0 || len(t) <= limit {
		return t
	}
	return t[len(t)-limit:]
}

// Clone returns an independent copy so callers can mutate freely.
func Clone(t Transcript) Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}
