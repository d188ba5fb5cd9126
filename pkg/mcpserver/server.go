// Package mcpserver exposes conversations as MCP tools, so agents can ask
// a question and read back every style's answer.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

// Implementation identifies this server during the MCP handshake.
var Implementation = &mcp.Implementation{Name: "trianswer", Version: "v1.0.0"}

// Options configures the tool surface.
type Options struct {
	// WaitTimeout bounds how long ask waits for a turn to settle. Zero
	// means two minutes.
	WaitTimeout time.Duration

	// Stateless serves each HTTP request without an MCP session.
	Stateless bool
}

// Server binds the MCP tools to the turn engine.
type Server struct {
	submitter transport.TurnSubmitter
	manager   transport.ConversationManager
	opts      Options
}

// New creates a Server.
func New(submitter transport.TurnSubmitter, manager transport.ConversationManager, opts Options) *Server {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	return &Server{submitter: submitter, manager: manager, opts: opts}
}

// MCP builds an MCP server whose tools act inside tenant. An empty tenant
// uses the default namespace.
func (s *Server) MCP(tenant string) *mcp.Server {
	server := mcp.NewServer(Implementation, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a question in a conversation and wait for every style's answer",
	}, withTenant(tenant, s.ask))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_snapshot",
		Description: "Return the ordered turns of a conversation",
	}, withTenant(tenant, s.snapshot))

	return server
}

// Handler serves the tools over streamable HTTP. The tenant is taken from
// the request that opens the session, as set by the auth middleware.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.MCP(storage.GetTenant(r.Context()))
	}, &mcp.StreamableHTTPOptions{Stateless: s.opts.Stateless})
}

func withTenant[In, Out any](tenant string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	if tenant == "" {
		return h
	}
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		return h(storage.SetTenant(ctx, tenant), req, in)
	}
}

// AskInput is the argument of the ask tool.
type AskInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"conversation to append the question to"`
	Query          string `json:"query" jsonschema:"the question"`
	Mode           string `json:"mode,omitempty" jsonschema:"multi_view (default) or agent"`
}

// StyleAnswer is one style's result.
type StyleAnswer struct {
	Style  string `json:"style"`
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AskOutput is the result of the ask tool.
type AskOutput struct {
	TurnID  string        `json:"turn_id"`
	Mode    string        `json:"mode"`
	Settled bool          `json:"settled"`
	Answers []StyleAnswer `json:"answers"`
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if in.ConversationID == "" {
		return nil, AskOutput{}, errors.New("conversation_id is required")
	}
	req := &api.SubmitRequest{Query: in.Query, Mode: api.Mode(in.Mode)}
	if err := req.Validate(); err != nil {
		return nil, AskOutput{}, fmt.Errorf("invalid request: %w", err)
	}

	sub, err := s.submitter.Submit(ctx, in.ConversationID, req)
	if err != nil {
		return nil, AskOutput{}, err
	}
	slog.Debug("mcp ask submitted", "conversation_id", in.ConversationID, "turn_id", sub.Assistant.ID)

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.WaitTimeout)
	defer cancel()
	settled := sub.Wait(waitCtx) == nil

	turn := sub.Assistant
	if settled {
		turn, err = s.findTurn(ctx, in.ConversationID, sub.Assistant.ID)
		if err != nil {
			return nil, AskOutput{}, err
		}
	}

	return nil, AskOutput{
		TurnID:  turn.ID,
		Mode:    string(turn.Mode),
		Settled: turn.Settled(),
		Answers: answers(turn),
	}, nil
}

func (s *Server) findTurn(ctx context.Context, conversationID, turnID string) (*api.Turn, error) {
	turns, err := s.manager.Snapshot(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		if t.ID == turnID {
			return t, nil
		}
	}
	return nil, errors.New("turn was cleared before it settled")
}

// SnapshotInput is the argument of the conversation_snapshot tool.
type SnapshotInput struct {
	ConversationID string `json:"conversation_id"`
}

// TurnView is a flattened turn.
type TurnView struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Mode      string        `json:"mode"`
	Text      string        `json:"text,omitempty"`
	ActiveTab string        `json:"active_tab,omitempty"`
	Answers   []StyleAnswer `json:"answers,omitempty"`
	CreatedAt string        `json:"created_at"`
}

// SnapshotOutput is the result of the conversation_snapshot tool.
type SnapshotOutput struct {
	ConversationID string     `json:"conversation_id"`
	Turns          []TurnView `json:"turns"`
}

func (s *Server) snapshot(ctx context.Context, _ *mcp.CallToolRequest, in SnapshotInput) (*mcp.CallToolResult, SnapshotOutput, error) {
	if in.ConversationID == "" {
		return nil, SnapshotOutput{}, errors.New("conversation_id is required")
	}
	turns, err := s.manager.Snapshot(ctx, in.ConversationID)
	if err != nil {
		return nil, SnapshotOutput{}, err
	}

	out := SnapshotOutput{ConversationID: in.ConversationID, Turns: make([]TurnView, 0, len(turns))}
	for _, t := range turns {
		out.Turns = append(out.Turns, TurnView{
			ID:        t.ID,
			Role:      string(t.Role),
			Mode:      string(t.Mode),
			Text:      t.Text,
			ActiveTab: string(t.ActiveTab),
			Answers:   answers(t),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return nil, out, nil
}

// answers lists an assistant turn's values in the mode's dispatch order.
func answers(t *api.Turn) []StyleAnswer {
	if t.Role != api.RoleAssistant {
		return nil
	}
	var out []StyleAnswer
	for _, key := range t.Keys() {
		v := t.Responses[key]
		a := StyleAnswer{Style: string(key), Status: string(v.Status), Text: v.Text}
		if v.Error != nil {
			a.Error = v.Error.Message
		}
		out = append(out, a)
	}
	return out
}
