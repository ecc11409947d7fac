package client

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SendState is the lifecycle of one send: idle -> sending -> streaming ->
// settled. Settled covers both success and error; Err distinguishes them.
type SendState int

const (
	StateIdle SendState = iota
	StateSending
	StateStreaming
	StateSettled
)

// AgentMessage is one rendered turn in the agent's local message list.
type AgentMessage struct {
	Role    string
	Content string
	Pending bool
	Err     error
}

// Agent keeps the local conversation view and enforces the single-in-flight
// send discipline: starting a new send or retry aborts the previous one, and
// an aborted send never mutates state after the abort is observed.
type Agent struct {
	client *Client

	mu        sync.Mutex
	sessionID string
	messages  []AgentMessage
	state     SendState
	lastSent  string
	lastErr   error
	cancel    context.CancelFunc
	gen       uint64 // increments on every send/abort; stale sends check it
}

func NewAgent(c *Client) *Agent {
	return &Agent{
		client:    c,
		sessionID: newSessionID(),
	}
}

func newSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

func (a *Agent) State() SendState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Messages returns a copy of the local message list.
func (a *Agent) Messages() []AgentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AgentMessage, len(a.messages))
	copy(out, a.messages)
	return out
}

// Send issues one user message and blocks until the reply stream settles.
// Any prior in-flight send is aborted first.
func (a *Agent) Send(ctx context.Context, message string) error {
	a.mu.Lock()
	a.abortLocked()
	gen := a.gen

	sctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = StateSending
	a.lastSent = message
	a.lastErr = nil
	a.messages = append(a.messages,
		AgentMessage{Role: "user", Content: message},
		AgentMessage{Role: "assistant", Pending: true},
	)
	slot := len(a.messages) - 1
	sessionID := a.sessionID
	a.mu.Unlock()

	return a.run(sctx, gen, slot, sessionID, message)
}

// Retry re-sends the last user message into the most recent assistant slot
// that is still pending or settled with an error.
func (a *Agent) Retry(ctx context.Context) error {
	a.mu.Lock()
	if a.lastSent == "" {
		a.mu.Unlock()
		return nil
	}
	a.abortLocked()
	gen := a.gen

	slot := -1
	for i := len(a.messages) - 1; i >= 0; i-- {
		m := a.messages[i]
		if m.Role == "assistant" && (m.Pending || m.Err != nil) {
			slot = i
			break
		}
	}
	if slot == -1 {
		a.messages = append(a.messages, AgentMessage{Role: "assistant", Pending: true})
		slot = len(a.messages) - 1
	} else {
		a.messages[slot] = AgentMessage{Role: "assistant", Pending: true}
	}

	sctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = StateSending
	a.lastErr = nil
	sessionID := a.sessionID
	message := a.lastSent
	a.mu.Unlock()

	return a.run(sctx, gen, slot, sessionID, message)
}

func (a *Agent) run(ctx context.Context, gen uint64, slot int, sessionID, message string) error {
	rc, sid, err := a.client.Send(ctx, sessionID, message)
	if err != nil {
		a.settle(gen, slot, "", err)
		return err
	}
	defer rc.Close()

	if !a.transition(gen, StateStreaming) {
		return context.Canceled
	}

	var full []byte
	buf := make([]byte, 4*1024)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			full = append(full, buf[:n]...)
			if !a.updateSlot(gen, slot, string(full)) {
				return context.Canceled
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			a.settle(gen, slot, string(full), rerr)
			return rerr
		}
	}

	a.mu.Lock()
	if gen == a.gen && sid != "" {
		a.sessionID = sid
	}
	a.mu.Unlock()

	a.settle(gen, slot, string(full), nil)
	return nil
}

// transition flips the state only if this send is still current.
func (a *Agent) transition(gen uint64, s SendState) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return false
	}
	a.state = s
	return true
}

func (a *Agent) updateSlot(gen uint64, slot int, content string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return false
	}
	a.messages[slot].Content = content
	return true
}

func (a *Agent) settle(gen uint64, slot int, content string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.state = StateSettled
	a.lastErr = err
	a.messages[slot].Pending = false
	a.messages[slot].Err = err
	if content != "" {
		a.messages[slot].Content = content
	}
}

// abortLocked cancels any in-flight send and invalidates its generation so a
// cancelled goroutine can no longer mutate agent state.
func (a *Agent) abortLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
}

// Clear aborts any in-flight send, drops the conversation, and starts a
// fresh session identifier.
func (a *Agent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abortLocked()
	a.messages = nil
	a.state = StateIdle
	a.lastErr = nil
	a.lastSent = ""
	a.sessionID = newSessionID()
}
