package chat

import "errors"

// ErrEmptyMessage rejects a blank user message before any gateway call.
var ErrEmptyMessage = errors.New("chat: message is empty")

// GatewayError wraps a model invocation failure that happened before any
// response bytes were streamed, so the router can map it to a 502.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string { return "chat: gateway: " + e.Err.Error() }

func (e *GatewayError) Unwrap() error { return e.Err }
