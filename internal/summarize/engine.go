package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// Engine is the external text-in/text-out summarization service. It is
// injected into the pipeline so tests can substitute a fake.
type Engine interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// GenkitEngine calls Gemini through Genkit's GoogleAI plugin.
type GenkitEngine struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitEngine initializes Genkit with the GoogleAI plugin. apiKey
// must be non-empty; callers without a key should fall back to
// StaticEngine instead.
func NewGenkitEngine(ctx context.Context, apiKey, model string) (*GenkitEngine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	// The plugin reads the key from the environment.
	_ = os.Setenv("GEMINI_API_KEY", apiKey)
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/"+model),
	)
	slog.Info("summarizer initialized", "provider", "google", "model", "googleai/"+model)
	return &GenkitEngine{g: g, model: model}, nil
}

func (e *GenkitEngine) Summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName("googleai/"+e.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("genkit generate: %w", err)
	}
	return resp.Text(), nil
}

// StaticEngine is the deterministic fallback used when no API key is
// configured, and in tests.
type StaticEngine struct{}

func (StaticEngine) Summarize(ctx context.Context, prompt string) (string, error) {
	return "Summaries are available once a Google API key is configured.", nil
}
