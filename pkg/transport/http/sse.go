package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/debug"
)

// writerState tracks the state of an SSE writer.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // Headers sent, events may follow
	writerClosed                       // Client went away or a write failed
)

// sseWriter frames api.Events as server-sent events:
//
//	event: {type}\n
//	id: {sequence_number}\n
//	data: {json}\n
//	\n
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// start sends the SSE headers. It is idempotent.
func (s *sseWriter) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerIdle {
		return nil
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming
	return s.flushLocked()
}

// WriteEvent sends a single event and flushes it.
func (s *sseWriter) WriteEvent(ev api.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerClosed {
		return errors.New("cannot write event: writer is closed")
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.SequenceNumber, data); err != nil {
		s.state = writerClosed
		return fmt.Errorf("failed to write event: %w", err)
	}
	return s.flushLocked()
}

// ping writes an SSE comment so proxies keep the connection open.
func (s *sseWriter) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerClosed {
		return errors.New("cannot ping: writer is closed")
	}
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		s.state = writerClosed
		return fmt.Errorf("failed to write ping: %w", err)
	}
	return s.flushLocked()
}

func (s *sseWriter) flushLocked() error {
	if err := s.rc.Flush(); err != nil {
		s.state = writerClosed
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// handleEvents handles GET /v1/conversations/{cid}/events.
func (a *Adapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}
	a.streamSSE(w, r, cid)
}

// handlePreferenceEvents handles GET /v1/preferences/events.
func (a *Adapter) handlePreferenceEvents(w http.ResponseWriter, r *http.Request) {
	a.streamSSE(w, r, "")
}

// streamSSE forwards the events of one topic until the client disconnects
// or the subscription is closed by the engine.
func (a *Adapter) streamSSE(w http.ResponseWriter, r *http.Request, conversationID string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := a.manager.Subscribe(ctx, conversationID)
	defer unsubscribe()

	sw := newSSEWriter(w)
	if err := sw.start(); err != nil {
		debug.Log("http", "sse start failed", "conversation_id", conversationID, "error", err)
		return
	}

	var tick <-chan time.Time
	if a.config.KeepAlive > 0 {
		ticker := time.NewTicker(a.config.KeepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.streamsDone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sw.WriteEvent(ev); err != nil {
				slog.Debug("sse write failed", "conversation_id", conversationID, "error", err)
				return
			}
		case <-tick:
			if err := sw.ping(); err != nil {
				return
			}
		}
	}
}
