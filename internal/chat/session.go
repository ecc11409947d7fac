// Package chat owns the per-conversation session: loading the bounded
// transcript, invoking the model gateway, teeing the response stream to the
// caller and to a background collector, and committing completed exchanges.
package chat

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/chatrelay/chatrelay/internal/ai"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

// EventPublisher receives a best-effort notification after each committed
// exchange. Failures are logged and never surfaced to the live response.
type EventPublisher interface {
	ExchangeCompleted(ctx context.Context, sessionID string, entries, replyBytes int) error
}

// Session is the single writer for one conversation's transcript. Instances
// are created by Manager and must not be constructed per request.
type Session struct {
	id       string
	store    transcript.Store
	provider ai.Provider
	opts     ai.Options
	limit    int
	events   EventPublisher

	mu     sync.Mutex
	cache  transcript.Transcript
	loaded bool
}

func newSession(id string, store transcript.Store, provider ai.Provider, opts ai.Options, limit int, events EventPublisher) *Session {
	return &Session{
		id:       id,
		store:    store,
		provider: provider,
		opts:     opts,
		limit:    limit,
		events:   events,
	}
}

// HandleMessage validates the user message, forwards the transcript plus the
// new turn to the gateway, and returns a reader over the model's literal
// output bytes. The returned stream is live: the updated transcript is
// committed in the background once the full response has been captured, and a
// caller that abandons the stream does not stop that capture.
//
// An invocation failure before any bytes were produced is returned as a
// *GatewayError and no stream is handed out.
func (s *Session) HandleMessage(ctx context.Context, message string) (io.ReadCloser, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}

	history, err := s.snapshot(ctx)
	if err != nil {
		// A load failure degrades this exchange to an empty history
		// rather than refusing it; if the exchange then commits, the
		// empty view replaces whatever the store held. The cache stays
		// unloaded so a later message retries the load.
		log.Printf("chat: session %s transcript load failed: %v", s.id, err)
	}

	turns := make([]ai.Message, 0, len(history)+1)
	for _, e := range history {
		turns = append(turns, ai.Message{Role: e.Role, Content: e.Content})
	}
	turns = append(turns, ai.Message{Role: transcript.RoleUser, Content: msg})

	// Once invoked, the exchange runs to completion even if the caller
	// disconnects; collection and commit must not be cancelled with it.
	bg := context.WithoutCancel(ctx)

	sp, ok := s.provider.(ai.StreamProvider)
	if !ok {
		reply, err := s.provider.Chat(bg, turns, s.opts)
		if err != nil {
			return nil, &GatewayError{Err: err}
		}
		s.commit(bg, msg, reply)
		return io.NopCloser(strings.NewReader(reply)), nil
	}

	chunks, errs := sp.StreamChat(bg, turns, s.opts)

	first, haveChunk, pending := awaitFirst(chunks, errs)
	if !haveChunk {
		if pending != nil {
			// failed before producing anything: invocation failure
			return nil, &GatewayError{Err: pending}
		}
		// Stream finished without producing anything: one-shot empty reply.
		s.commit(bg, msg, "")
		return io.NopCloser(strings.NewReader("")), nil
	}

	pr, pw := io.Pipe()
	go s.collect(bg, msg, first, pending, chunks, errs, pw)
	return pr, nil
}

// snapshot returns a copy of the current transcript, loading it from the
// store on first use. A failed load leaves the cache unpopulated so the next
// message retries instead of pinning an empty view of a stored transcript.
func (s *Session) snapshot(ctx context.Context) (transcript.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return transcript.Clone(s.cache), nil
	}
	t, err := s.store.Get(ctx, s.id)
	if err != nil {
		return nil, err
	}
	s.cache = t
	s.loaded = true
	return transcript.Clone(t), nil
}

// awaitFirst blocks until the stream yields its first chunk or terminates.
// An error observed before any chunk is carried back as pending rather than
// ending the wait: chunks buffered ahead of it still count as a started
// stream (mid-stream failure), while an error with no chunks at all is an
// invocation failure. Providers close errs before chunks, so a receive on
// errs after chunks closed never blocks.
func awaitFirst(chunks <-chan string, errs <-chan error) (first string, haveChunk bool, pending error) {
	for {
		select {
		case c, open := <-chunks:
			if open {
				return c, true, pending
			}
			if pending == nil && errs != nil {
				if err, ok := <-errs; ok {
					pending = err
				}
			}
			return "", false, pending
		case err, open := <-errs:
			if !open {
				errs = nil
				continue
			}
			if err != nil && pending == nil {
				pending = err
			}
		}
	}
}

// collect is the capture copy of the tee. It forwards chunks to the client
// pipe while accumulating the full reply, then commits the exchange. The pipe
// write blocks on the reader, which bounds how far the upstream is consumed
// ahead of a slow client; a closed reader flips to capture-only.
func (s *Session) collect(ctx context.Context, userMsg, first string, pending error, chunks <-chan string, errs <-chan error, pw *io.PipeWriter) {
	var full strings.Builder
	clientGone := false

	forward := func(chunk string) {
		full.WriteString(chunk)
		if clientGone {
			return
		}
		if _, err := pw.Write([]byte(chunk)); err != nil {
			clientGone = true
		}
	}

	forward(first)
	for c := range chunks {
		forward(c)
	}

	if pending == nil {
		if err, ok := <-errs; ok && err != nil {
			pending = err
		}
	}
	if pending != nil {
		// Mid-stream failure: the transcript stays untouched and the
		// client stream ends early.
		log.Printf("chat: session %s stream collection failed: %v", s.id, pending)
		pw.CloseWithError(pending)
		return
	}

	s.commit(ctx, userMsg, full.String())
	pw.Close()
}

// commit appends the completed exchange, trims to the retention bound, and
// persists. The in-memory cache is updated first so subsequent requests on
// this instance never wait on the store round-trip.
func (s *Session) commit(ctx context.Context, userMsg, reply string) {
	s.mu.Lock()
	s.cache = append(s.cache,
		transcript.Entry{Role: transcript.RoleUser, Content: userMsg},
		transcript.Entry{Role: transcript.RoleAssistant, Content: reply},
	)
	s.cache = transcript.Trim(s.cache, s.limit)
	// The cache is authoritative from here on: the Put below replaces the
	// stored transcript, including one that an earlier failed load missed.
	s.loaded = true
	snapshot := transcript.Clone(s.cache)
	s.mu.Unlock()

	if err := s.store.Put(ctx, s.id, snapshot); err != nil {
		log.Printf("chat: session %s transcript put failed: %v", s.id, err)
	}

	if s.events != nil {
		if err := s.events.ExchangeCompleted(ctx, s.id, len(snapshot), len(reply)); err != nil {
			log.Printf("chat: session %s exchange event publish failed: %v", s.id, err)
		}
	}
}
