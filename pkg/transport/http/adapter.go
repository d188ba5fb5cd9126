package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

// Adapter serves the conversation API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	submitter transport.TurnSubmitter
	manager   transport.ConversationManager
	mux       *http.ServeMux
	config    Config

	// streamsDone ends open SSE and WebSocket streams on shutdown.
	streamsDone chan struct{}
	closeOnce   sync.Once
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds

	// WaitTimeout bounds how long ?wait=true blocks before the pending
	// pair is returned with 202.
	WaitTimeout time.Duration

	// KeepAlive is the interval of SSE comment pings. Zero disables them.
	KeepAlive time.Duration

	// OriginPatterns are the origins allowed to open WebSocket streams in
	// addition to same-origin requests.
	OriginPatterns []string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     1 << 20, // 1 MB
		ShutdownTimeout: 30,
		WaitTimeout:     2 * time.Minute,
		KeepAlive:       15 * time.Second,
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// submitter in the given order; the manager is used as is.
func NewAdapter(submitter transport.TurnSubmitter, manager transport.ConversationManager, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		submitter = transport.Chain(middlewares...)(submitter)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultConfig().WaitTimeout
	}

	a := &Adapter{
		submitter:   submitter,
		manager:     manager,
		mux:         http.NewServeMux(),
		config:      cfg,
		streamsDone: make(chan struct{}),
	}

	a.mux.HandleFunc("POST /v1/conversations/{cid}/turns", a.handleSubmit)
	a.mux.HandleFunc("GET /v1/conversations/{cid}/turns", a.handleSnapshot)
	a.mux.HandleFunc("DELETE /v1/conversations/{cid}/turns", a.handleClear)
	a.mux.HandleFunc("PUT /v1/conversations/{cid}/turns/{tid}/active_tab", a.handleSetActiveTab)
	a.mux.HandleFunc("GET /v1/conversations/{cid}/events", a.handleEvents)
	a.mux.HandleFunc("GET /v1/conversations/{cid}/ws", a.handleWebSocket)
	a.mux.HandleFunc("GET /v1/preferences/theme", a.handleGetTheme)
	a.mux.HandleFunc("PUT /v1/preferences/theme", a.handleSetTheme)
	a.mux.HandleFunc("GET /v1/preferences/events", a.handlePreferenceEvents)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// Mux exposes the route table so the server can mount auxiliary endpoints
// next to the API routes.
func (a *Adapter) Mux() *http.ServeMux {
	return a.mux
}

// CloseStreams ends every open event stream. Long-lived streams would
// otherwise hold http.Server.Shutdown until its deadline.
func (a *Adapter) CloseStreams() {
	a.closeOnce.Do(func() { close(a.streamsDone) })
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A client
// supplied ID is put into the context; otherwise one is generated here so
// every response carries the header, not only submissions.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	w.ensureRequestIDHeader()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// TurnPair is the body returned for a submission.
type TurnPair struct {
	User      *api.Turn `json:"user"`
	Assistant *api.Turn `json:"assistant"`
}

// Conversation is the body returned for a snapshot.
type Conversation struct {
	ID    string      `json:"id"`
	Turns []*api.Turn `json:"turns"`
}

// ThemeBody is the body of theme requests and responses.
type ThemeBody struct {
	Theme api.Theme `json:"theme"`
}

// handleSubmit handles POST /v1/conversations/{cid}/turns.
func (a *Adapter) handleSubmit(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}

	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("wait", "wait must be a boolean"))
			return
		}
		wait = b
	}

	var req api.SubmitRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		transport.WriteAPIError(w, api.ValidationError(err))
		return
	}

	sub, err := a.submitter.Submit(r.Context(), cid, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, TurnPair{User: sub.User, Assistant: sub.Assistant})
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), a.config.WaitTimeout)
	defer cancel()
	if err := sub.Wait(waitCtx); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeJSON(w, http.StatusAccepted, TurnPair{User: sub.User, Assistant: sub.Assistant})
		return
	}

	settled, err := a.findTurn(r.Context(), cid, sub.Assistant.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TurnPair{User: sub.User, Assistant: settled})
}

// handleSnapshot handles GET /v1/conversations/{cid}/turns.
func (a *Adapter) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}

	turns, err := a.manager.Snapshot(r.Context(), cid)
	if err != nil {
		writeError(w, err)
		return
	}
	if turns == nil {
		turns = []*api.Turn{}
	}
	writeJSON(w, http.StatusOK, Conversation{ID: cid, Turns: turns})
}

// handleClear handles DELETE /v1/conversations/{cid}/turns.
func (a *Adapter) handleClear(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}

	if err := a.manager.Clear(r.Context(), cid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetActiveTab handles PUT /v1/conversations/{cid}/turns/{tid}/active_tab.
func (a *Adapter) handleSetActiveTab(w http.ResponseWriter, r *http.Request) {
	cid, ok := a.conversationID(w, r)
	if !ok {
		return
	}
	tid := r.PathValue("tid")
	if !api.ValidateTurnID(tid) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("tid", "malformed turn ID"))
		return
	}

	var req api.ActiveTabRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		transport.WriteAPIError(w, api.ValidationError(err))
		return
	}

	turn, err := a.manager.SetActiveTab(r.Context(), cid, tid, req.Tab)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// handleGetTheme handles GET /v1/preferences/theme.
func (a *Adapter) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := a.manager.Theme(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThemeBody{Theme: theme})
}

// handleSetTheme handles PUT /v1/preferences/theme.
func (a *Adapter) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req api.ThemeRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		transport.WriteAPIError(w, api.ValidationError(err))
		return
	}

	if err := a.manager.SetTheme(r.Context(), req.Theme); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThemeBody{Theme: req.Theme})
}

// findTurn looks a turn up in the conversation snapshot.
func (a *Adapter) findTurn(ctx context.Context, conversationID, turnID string) (*api.Turn, error) {
	turns, err := a.manager.Snapshot(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		if t.ID == turnID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("turn %s: %w", turnID, storage.ErrNotFound)
}

func (a *Adapter) conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	cid := r.PathValue("cid")
	if !api.ValidateConversationID(cid) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("cid", "malformed conversation ID"))
		return "", false
	}
	return cid, true
}

// decodeBody reads a JSON request body into v. It writes the error
// response itself and returns false when the body is unusable.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return false
	}
	return true
}

// writeError maps engine and store errors onto API errors.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		transport.WriteAPIError(w, apiErr)
	case errors.Is(err, storage.ErrNotFound):
		transport.WriteAPIError(w, api.NewNotFoundError(err.Error()))
	case errors.Is(err, storage.ErrUnknownStyle), errors.Is(err, storage.ErrNotAssistantTurn):
		transport.WriteAPIError(w, api.NewInvalidRequestError("tab", err.Error()))
	case errors.Is(err, storage.ErrAlreadyResolved), errors.Is(err, storage.ErrConflict):
		transport.WriteAPIError(w, api.NewConflictError("", err.Error()))
	default:
		transport.WriteAPIError(w, api.NewServerError(err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
