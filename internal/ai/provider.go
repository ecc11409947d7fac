package ai

import "context"

// Message is a single role-tagged conversation turn in provider format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a full assistant reply for an ordered list of turns.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
//
// Contract: at most one error is sent on errs, and when streaming ends the
// producer closes errs first and then chunks. Consumers that see chunks
// closed can therefore read errs without blocking, and any chunks buffered
// before a failure are still delivered.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message, opts Options) (<-chan string, <-chan error)
}
