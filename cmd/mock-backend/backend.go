package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type options struct {
	FailFirst int
	FailEvery int
	FailStyle string
	Latency   time.Duration
	Empty     bool
}

type backend struct {
	opts  options
	calls atomic.Int64
}

func newBackend(opts options) *backend {
	return &backend{opts: opts}
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	// The segment is "{model}:generateContent".
	mux.HandleFunc("POST /{version}/models/{call}", b.handleGemini)
	mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// styleOf guesses the answer style from a system instruction.
func styleOf(instruction string) string {
	lower := strings.ToLower(instruction)
	for _, style := range []string{"concise", "detailed", "creative", "agent"} {
		if strings.Contains(lower, style) {
			return style
		}
	}
	return "default"
}

func answer(style, query string) string {
	return fmt.Sprintf("[%s] %s", style, query)
}

// inject applies latency and failure rules. It returns the status code to
// fail with, or 0 to answer normally.
func (b *backend) inject(r *http.Request, style string) int {
	n := int(b.calls.Add(1))

	if b.opts.Latency > 0 {
		select {
		case <-time.After(b.opts.Latency):
		case <-r.Context().Done():
			return http.StatusServiceUnavailable
		}
	}

	switch {
	case b.opts.FailStyle != "" && b.opts.FailStyle == style:
		return http.StatusInternalServerError
	case n <= b.opts.FailFirst:
		return http.StatusServiceUnavailable
	case b.opts.FailEvery > 0 && n%b.opts.FailEvery == 0:
		return http.StatusServiceUnavailable
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Gemini ---

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
	ModelVersion  string            `json:"modelVersion"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (b *backend) handleGemini(w http.ResponseWriter, r *http.Request) {
	model, method, ok := strings.Cut(r.PathValue("call"), ":")
	if !ok || method != "generateContent" {
		http.NotFound(w, r)
		return
	}

	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGeminiError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}

	style := "default"
	if req.SystemInstruction != nil {
		style = styleOf(joinParts(req.SystemInstruction.Parts))
	}
	query := ""
	if n := len(req.Contents); n > 0 {
		query = joinParts(req.Contents[n-1].Parts)
	}

	if code := b.inject(r, style); code != 0 {
		slog.Info("injected failure", "api", "gemini", "style", style, "status", code)
		writeGeminiError(w, code, "UNAVAILABLE", "injected failure")
		return
	}

	resp := geminiResponse{ModelVersion: model}
	if !b.opts.Empty {
		text := answer(style, query)
		resp.Candidates = []geminiCandidate{{
			Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}},
			FinishReason: "STOP",
		}}
		resp.UsageMetadata = geminiUsage{
			PromptTokenCount:     len(strings.Fields(query)),
			CandidatesTokenCount: len(strings.Fields(text)),
			TotalTokenCount:      len(strings.Fields(query)) + len(strings.Fields(text)),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeGeminiError(w http.ResponseWriter, code int, status, msg string) {
	var e geminiError
	e.Error.Code = code
	e.Error.Message = msg
	e.Error.Status = status
	writeJSON(w, code, e)
}

func joinParts(parts []geminiPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// --- OpenAI Chat Completions ---

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMsg struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChatError(w, http.StatusBadRequest, "invalid request")
		return
	}

	style, query := "default", ""
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			style = styleOf(messageText(m.Content))
		case "user":
			query = messageText(m.Content)
		}
	}

	if code := b.inject(r, style); code != 0 {
		slog.Info("injected failure", "api", "openai", "style", style, "status", code)
		writeChatError(w, code, "injected failure")
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	resp := chatResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", b.calls.Load()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{},
	}
	if !b.opts.Empty {
		text := answer(style, query)
		resp.Choices = append(resp.Choices, chatChoice{
			Message:      chatMsg{Role: "assistant", Content: &text},
			FinishReason: "stop",
		})
		resp.Usage = chatUsage{
			PromptTokens:     len(strings.Fields(query)),
			CompletionTokens: len(strings.Fields(text)),
			TotalTokens:      len(strings.Fields(query)) + len(strings.Fields(text)),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeChatError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": msg, "type": "server_error", "code": code},
	})
}

// messageText accepts both string content and the array-of-parts form.
func messageText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var texts []string
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				if s, ok := part["text"].(string); ok {
					texts = append(texts, s)
				}
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}
