package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/trianswer/pkg/api"
	transporthttp "github.com/rhuss/trianswer/pkg/transport/http"
)

// apiClient talks to a running server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func clientFrom(cmd *cli.Command) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(cmd.String("url"), "/"),
		apiKey:  cmd.String("api-key"),
		http:    &http.Client{},
	}
}

// do sends body as JSON and decodes a 2xx response into out. Error
// responses are returned as *api.APIError when the body carries one.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil && er.Error != nil {
			return resp.StatusCode, er.Error
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func turnsPath(conversationID string) string {
	return "/v1/conversations/" + url.PathEscape(conversationID) + "/turns"
}

// Flags hold parse state, so each command gets its own instances.
func conversationFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "conversation",
		Aliases: []string{"c"},
		Usage:   "Conversation ID",
		Value:   "default",
		Sources: cli.EnvVars("TRIANSWER_CONVERSATION"),
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print raw JSON"}
}

func newAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Submit a question and print every style's answer",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			conversationFlag(),
			jsonFlag(),
			&cli.BoolFlag{
				Name:  "agent",
				Usage: "Use the single agent style",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the answers",
				Value: 2 * time.Minute,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: trianswer ask <question>")
	}

	mode := api.ModeMultiView
	if cmd.Bool("agent") {
		mode = api.ModeAgent
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	var pair transporthttp.TurnPair
	status, err := clientFrom(cmd).do(ctx, http.MethodPost,
		turnsPath(cmd.String("conversation"))+"?wait=true",
		api.SubmitRequest{Query: query, Mode: mode}, &pair)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, pair)
	}
	if status == http.StatusAccepted {
		fmt.Fprintln(w, "(still generating; run `trianswer history` later)")
	}
	printTurn(w, pair.Assistant)
	return nil
}

func newHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "Print the turns of a conversation",
		Flags:  []cli.Flag{conversationFlag(), jsonFlag()},
		Action: runHistory,
	}
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	var conv transporthttp.Conversation
	if _, err := clientFrom(cmd).do(ctx, http.MethodGet, turnsPath(cmd.String("conversation")), nil, &conv); err != nil {
		return err
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, conv)
	}
	if len(conv.Turns) == 0 {
		fmt.Fprintln(w, "No turns.")
		return nil
	}
	for _, t := range conv.Turns {
		printTurn(w, t)
	}
	return nil
}

func newClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every turn of a conversation",
		Flags: []cli.Flag{conversationFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cid := cmd.String("conversation")
			if _, err := clientFrom(cmd).do(ctx, http.MethodDelete, turnsPath(cid), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "cleared %s\n", cid)
			return nil
		},
	}
}

func newThemeCommand() *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or change the theme preference",
		ArgsUsage: "[light|dark|toggle]",
		Action:    runTheme,
	}
}

func runTheme(ctx context.Context, cmd *cli.Command) error {
	c := clientFrom(cmd)
	w := cmd.Root().Writer

	var current transporthttp.ThemeBody
	if _, err := c.do(ctx, http.MethodGet, "/v1/preferences/theme", nil, &current); err != nil {
		return err
	}

	arg := cmd.Args().First()
	if arg == "" {
		fmt.Fprintln(w, current.Theme)
		return nil
	}

	next := api.Theme(arg)
	if arg == "toggle" {
		next = current.Theme.Toggle()
	}
	if !next.Valid() {
		return fmt.Errorf("unknown theme %q", arg)
	}

	var updated transporthttp.ThemeBody
	if _, err := c.do(ctx, http.MethodPut, "/v1/preferences/theme", transporthttp.ThemeBody{Theme: next}, &updated); err != nil {
		return err
	}
	fmt.Fprintln(w, updated.Theme)
	return nil
}

func printTurn(w io.Writer, t *api.Turn) {
	if t == nil {
		return
	}
	if t.Role == api.RoleUser {
		fmt.Fprintf(w, "> %s\n\n", t.Text)
		return
	}
	for _, key := range t.Keys() {
		v := t.Responses[key]
		marker := ""
		if key == t.ActiveTab {
			marker = " *"
		}
		fmt.Fprintf(w, "[%s%s]\n", key, marker)
		switch v.Status {
		case api.ResponseStatusText:
			fmt.Fprintln(w, v.Text)
		case api.ResponseStatusError:
			fmt.Fprintln(w, v.Error.Message)
		default:
			fmt.Fprintln(w, "(pending)")
		}
		fmt.Fprintln(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
