package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/engine"
	"github.com/rhuss/trianswer/pkg/provider"
	"github.com/rhuss/trianswer/pkg/retry"
	"github.com/rhuss/trianswer/pkg/storage/memory"
)

// fakeProvider answers "<style> answer". When gate is set, every call
// blocks until it is closed.
type fakeProvider struct {
	gate chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	style := ""
	for k, prompt := range engine.DefaultPrompts {
		if prompt == req.SystemInstruction {
			style = string(k)
		}
	}
	return &provider.Response{Model: req.Model, Candidates: []string{style + " answer"}}, nil
}

func (p *fakeProvider) Close() error { return nil }

func newTestEngine(t *testing.T, p provider.Provider) *engine.Engine {
	t.Helper()
	e, err := engine.New(p, memory.New(0), engine.Config{
		Retry: retry.Policy{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// newTestAdapter serves an adapter backed by a fresh engine.
func newTestAdapter(t *testing.T, p provider.Provider) (*httptest.Server, *Adapter) {
	t.Helper()
	e := newTestEngine(t, p)
	a := NewAdapter(e, e, DefaultConfig())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		a.CloseStreams()
		srv.Close()
	})
	return srv, a
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return bytes.NewReader(data)
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = jsonBody(t, body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func decodeError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	body := decode[api.ErrorResponse](t, resp)
	if body.Error == nil {
		t.Fatal("error body missing")
	}
	return body.Error
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}
