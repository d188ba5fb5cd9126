// Command mock-backend runs a deterministic generation backend for local
// development and integration tests. It speaks both the Gemini
// generateContent API and the OpenAI Chat Completions API.
//
// Every answer is "[<style>] <query>", where the style is guessed from the
// system instruction. Failures can be injected to exercise retries.
//
// Configuration:
//
//	MOCK_PORT       - Listen port (default: 9090)
//	MOCK_FAIL_FIRST - Fail the first N generation calls with 503 (default: 0)
//	MOCK_FAIL_EVERY - Fail every Nth generation call with 503 (default: 0, off)
//	MOCK_FAIL_STYLE - Always fail calls for this style with 500
//	MOCK_LATENCY    - Delay before each answer, e.g. "250ms" (default: 0)
//	MOCK_EMPTY      - Answer without any candidate text when "true"
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	port := envOr("MOCK_PORT", "9090")

	b := newBackend(options{
		FailFirst: envInt("MOCK_FAIL_FIRST"),
		FailEvery: envInt("MOCK_FAIL_EVERY"),
		FailStyle: os.Getenv("MOCK_FAIL_STYLE"),
		Latency:   envDuration("MOCK_LATENCY"),
		Empty:     os.Getenv("MOCK_EMPTY") == "true",
	})

	srv := &http.Server{Addr: ":" + port, Handler: b.handler(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

func envDuration(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}
