package http

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
)

func newTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	e := newTestEngine(t, &fakeProvider{})
	s := NewServer(e, e, opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.adapter.CloseStreams()
		srv.Close()
	})
	return srv
}

func TestServerHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decode[map[string]string](t, resp); body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestServerHealthzFailing(t *testing.T) {
	srv := newTestServer(t, WithHealthCheck(func(context.Context) error {
		return errors.New("database unreachable")
	}))

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/v1/preferences/theme", nil), http.StatusOK)

	resp := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `route="GET /v1/preferences/theme"`) {
		t.Error("metrics do not include the theme route")
	}
}

func TestServerMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, WithMetrics(false))

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/metrics", nil), http.StatusNotFound)
}

func TestServerCORSPreflight(t *testing.T) {
	srv := newTestServer(t, WithCORS("https://app.example.com"))

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/conversations/c1/turns", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/preferences/theme", nil)
	req2.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Access-Control-Allow-Origin = %q", got)
	}
}

func TestServerExtraHandlerAndMiddleware(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.URL.Path)
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
	srv := newTestServer(t,
		WithHandler("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})),
		WithHTTPMiddleware(mw),
	)

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/extra", nil), http.StatusTeapot)
	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/healthz", nil), http.StatusOK)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "/extra" || seen[1] != "/healthz" {
		t.Errorf("middleware saw %v", seen)
	}
}

func TestServerSubmitThroughMiddlewareChain(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/conversations/c1/turns?wait=1",
		jsonBody(t, api.SubmitRequest{Query: "q", Mode: api.ModeAgent}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", got)
	}
}

func TestServerGracefulShutdownEndsStreams(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{})
	s := NewServer(e, e, WithShutdownTimeout(5*time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ServeOn(ctx, ln) }()

	resp, _ := openStream(t, "http://"+addr+"/v1/conversations/c1/events")
	expectStatus(t, resp, http.StatusOK)
	events := readEvents(resp.Body)

	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ServeOn returned %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("shutdown blocked on an open stream")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("unexpected event during shutdown")
		}
	case <-time.After(3 * time.Second):
		t.Error("stream not closed after shutdown")
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{})
	s := NewServer(e, e,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(5*time.Second),
		WithWaitTimeout(time.Second),
		WithCORS("https://a.example"),
	)

	if s.config.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", s.config.Addr)
	}
	if s.adapter.config.MaxBodySize != 1024 {
		t.Errorf("adapter MaxBodySize = %d, want 1024", s.adapter.config.MaxBodySize)
	}
	if s.adapter.config.ShutdownTimeout != 5 {
		t.Errorf("adapter ShutdownTimeout = %d, want 5", s.adapter.config.ShutdownTimeout)
	}
	if s.adapter.config.WaitTimeout != time.Second {
		t.Errorf("adapter WaitTimeout = %v, want 1s", s.adapter.config.WaitTimeout)
	}
	if len(s.adapter.config.OriginPatterns) != 1 {
		t.Errorf("OriginPatterns = %v", s.adapter.config.OriginPatterns)
	}
}
