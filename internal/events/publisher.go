// Package events publishes best-effort notifications about completed chat
// exchanges for downstream consumers.
package events

import "context"

// Exchange describes one committed user/assistant exchange.
type Exchange struct {
	SessionID  string `json:"session_id"`
	Entries    int    `json:"entries"`
	ReplyBytes int    `json:"reply_bytes"`
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) ExchangeCompleted(ctx context.Context, sessionID string, entries, replyBytes int) error {
	_ = ctx
	_ = sessionID
	_ = entries
	_ = replyBytes
	return nil
}
