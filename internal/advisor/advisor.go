// Package advisor is the boundary to the external language-model service.
// It hosts the two advisory calls of the submission flow: the secondary price
// suggestion and the document content check. Both make exactly one attempt
// per call, run under a bounded context, and return a typed error on any
// transport failure, timeout or malformed reply — the caller degrades
// gracefully and the submission proceeds without them.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ollama/ollama/api"
)

// Advisory errors
var (
	ErrAdvisorUnavailable   = errors.New("price advisor unavailable")
	ErrValidatorUnavailable = errors.New("content validator unavailable")
)

// Config holds the advisor's connection settings.
type Config struct {
	BaseURL       string
	Model         string
	MinContentLen int // content checks are skipped below this many characters
}

// chatFn sends one system+user exchange and returns the model's full reply.
// It is a seam so tests can run without a model server.
type chatFn func(ctx context.Context, system, prompt string) (string, error)

// Advisor issues advisory calls against an Ollama-compatible model server.
type Advisor struct {
	chat          chatFn
	minContentLen int
}

// New creates an Advisor over the configured model server.
func New(cfg Config) (*Advisor, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("advisor model is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid advisor base url: %w", err)
	}

	client := api.NewClient(base, http.DefaultClient)

	if cfg.MinContentLen <= 0 {
		cfg.MinContentLen = 50
	}

	return &Advisor{
		chat:          ollamaChat(client, cfg.Model),
		minContentLen: cfg.MinContentLen,
	}, nil
}

// ollamaChat adapts the Ollama chat API to the chatFn seam. Streaming is
// disabled and the temperature pinned low so replies stay consistent.
func ollamaChat(client *api.Client, model string) chatFn {
	return func(ctx context.Context, system, prompt string) (string, error) {
		stream := false
		req := &api.ChatRequest{
			Model: model,
			Messages: []api.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Stream: &stream,
			Options: map[string]any{
				"temperature": 0.1,
			},
		}

		var reply strings.Builder
		err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
			reply.WriteString(resp.Message.Content)
			return nil
		})
		if err != nil {
			return "", err
		}
		return reply.String(), nil
	}
}

// truncate caps s at max bytes, backing off to the nearest rune boundary so
// the cut never ships invalid UTF-8 into a prompt.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
