// Package gemini implements provider.Provider on top of the Google Gen AI
// SDK, calling the generateContent endpoint of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rhuss/trianswer/pkg/provider"
)

// GeminiProvider generates style responses with the Gemini API.
type GeminiProvider struct {
	cfg        Config
	client     *genai.Client
	httpClient *http.Client
}

// Ensure GeminiProvider implements provider.Provider at compile time.
var _ provider.Provider = (*GeminiProvider)(nil)

// New creates a GeminiProvider. Returns an error if the configuration is
// invalid or the SDK client cannot be created.
func New(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: APIKey is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			APIVersion: cfg.APIVersion,
		},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &GeminiProvider{cfg: cfg, client: client, httpClient: httpClient}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate performs one generateContent call with the style instruction as
// the system instruction and the query as the only user content.
func (p *GeminiProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	gcfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		gcfg.Temperature = &t
	}
	if req.MaxTokens != nil {
		gcfg.MaxOutputTokens = int32(*req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Query), gcfg)
	if err != nil {
		return nil, mapError(err)
	}

	return translateResponse(resp), nil
}

// Close releases idle connections held by the HTTP client.
func (p *GeminiProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// translateResponse keeps the first text part of every candidate. Thought
// parts are skipped.
func translateResponse(resp *genai.GenerateContentResponse) *provider.Response {
	out := &provider.Response{Model: resp.ModelVersion}
	for _, c := range resp.Candidates {
		out.Candidates = append(out.Candidates, candidateText(c))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &provider.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	for _, part := range c.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.MapStatusError(apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return provider.MapNetworkError(err)
}
