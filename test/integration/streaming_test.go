package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
)

type sseEvent struct {
	Type string
	ID   string
	Data api.Event
}

// openStream subscribes to a conversation's events and returns a channel
// of parsed frames.
func openStream(t *testing.T, ctx context.Context, key, path string) <-chan sseEvent {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testEnv.BaseURL()+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	out := make(chan sseEvent, 32)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Type = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "id: "):
				ev.ID = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.Data)
			case line == "" && ev.Type != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func TestConversationEventStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := openStream(t, ctx, keyAlpha, "/v1/conversations/streamed/events")

	resp := do(t, http.MethodPost, "/v1/conversations/streamed/turns", keyAlpha,
		api.SubmitRequest{Query: "stream me", Mode: api.ModeMultiView})
	expectStatus(t, resp, http.StatusAccepted)
	readBody(t, resp)

	var types []string
	var lastSeq int64
	for ev := range events {
		if ev.Data.SequenceNumber <= lastSeq {
			t.Errorf("sequence %d after %d", ev.Data.SequenceNumber, lastSeq)
		}
		lastSeq = ev.Data.SequenceNumber
		types = append(types, ev.Type)
		if api.EventType(ev.Type) == api.EventTurnSettled {
			break
		}
	}

	// created, three resolutions, settled
	if len(types) != 5 {
		t.Fatalf("events = %v, want 5", types)
	}
	if api.EventType(types[0]) != api.EventTurnCreated {
		t.Errorf("first event = %q", types[0])
	}
	for _, typ := range types[1:4] {
		if api.EventType(typ) != api.EventResponseResolved {
			t.Errorf("middle event = %q, want %q", typ, api.EventResponseResolved)
		}
	}
}

func TestEventStreamIsTenantScoped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	betaEvents := openStream(t, ctx, keyBeta, "/v1/conversations/private/events")
	submitAndWait(t, keyAlpha, "private", "secret", api.ModeAgent)

	select {
	case ev, ok := <-betaEvents:
		if ok {
			t.Errorf("beta received alpha's event %q", ev.Type)
		}
	case <-time.After(300 * time.Millisecond):
	}
}
