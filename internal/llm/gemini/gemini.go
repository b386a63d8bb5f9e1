// Package gemini composes answers with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"ledgerqa/internal/llm"
)

const DefaultModelName = "gemini-2.5-flash"

// generator is the part of genai.Models the composer uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Composer struct {
	models  generator
	model   string
	timeout time.Duration
}

// New creates a composer backed by the Gemini developer API.
func New(ctx context.Context, apiKey, model string, timeout time.Duration) (*Composer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create genai client: %w", err)
	}
	return newComposer(client.Models, model, timeout), nil
}

func newComposer(models generator, model string, timeout time.Duration) *Composer {
	if model == "" {
		model = DefaultModelName
	}
	return &Composer{models: models, model: model, timeout: timeout}
}

// Compose implements llm.Composer.
func (c *Composer) Compose(ctx context.Context, req llm.ComposeRequest) (string, error) {
	prompt, err := llm.BuildPrompt(req)
	if err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Low temperature keeps the model close to the figures it was given
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	answer := llm.CleanAnswer(resp.Text())
	if answer == "" {
		return "", llm.ErrEmptyAnswer
	}
	return answer, nil
}
