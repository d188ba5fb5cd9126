package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/rhuss/trianswer/pkg/api"
)

func dialEvents(t *testing.T, baseURL, cid string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/conversations/" + cid + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) api.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var ev api.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return ev
}

func TestWebSocketStreamsTurnEvents(t *testing.T) {
	srv, _ := newTestAdapter(t, &fakeProvider{})
	conn := dialEvents(t, srv.URL, "c1")

	expectStatus(t, doJSON(t, http.MethodPost, srv.URL+"/v1/conversations/c1/turns?wait=true",
		api.SubmitRequest{Query: "q", Mode: api.ModeAgent}), http.StatusOK)

	want := []api.EventType{api.EventTurnCreated, api.EventResponseResolved, api.EventTurnSettled}
	for i, typ := range want {
		ev := readFrame(t, conn)
		if ev.Type != typ {
			t.Fatalf("frame %d = %q, want %q", i, ev.Type, typ)
		}
		if ev.SequenceNumber != int64(i+1) {
			t.Errorf("frame %d sequence = %d, want %d", i, ev.SequenceNumber, i+1)
		}
	}
}

func TestWebSocketTabChange(t *testing.T) {
	srv, _ := newTestAdapter(t, &fakeProvider{})
	base := srv.URL + "/v1/conversations/c1/turns"

	pair := decode[TurnPair](t, doJSON(t, http.MethodPost, base+"?wait=true", api.SubmitRequest{Query: "q"}))
	conn := dialEvents(t, srv.URL, "c1")

	expectStatus(t, doJSON(t, http.MethodPut, base+"/"+pair.Assistant.ID+"/active_tab",
		api.ActiveTabRequest{Tab: api.StyleCreative}), http.StatusOK)

	ev := readFrame(t, conn)
	if ev.Type != api.EventTabChanged || ev.Style != api.StyleCreative {
		t.Errorf("frame = %+v, want tab.changed to creative", ev)
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	srv, a := newTestAdapter(t, &fakeProvider{})
	conn := dialEvents(t, srv.URL, "c1")

	a.CloseStreams()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}
