package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/koustreak/askdb/internal/errs"
)

// Ollama is a Client for an Ollama server's /api/generate endpoint.
type Ollama struct {
	t           transport
	model       string
	temperature float64
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllama builds an Ollama client. An empty model is allowed for
// ListModels-only use; Generate then fails.
func NewOllama(cfg Config) (*Ollama, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultConfig().BaseURL
	}
	return &Ollama{
		t:           transport{baseURL: base, client: &http.Client{Timeout: cfg.Timeout}},
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
	}, nil
}

// Generate returns the full completion for prompt.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	return Collect(ctx, o, prompt)
}

// Stream posts prompt with stream=true and relays each NDJSON fragment.
func (o *Ollama) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	if o.model == "" {
		return errs.New(errs.ErrKindGenerationFailed, "no model configured")
	}
	resp, err := o.t.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  true,
		Options: map[string]any{"temperature": o.temperature},
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return errs.Wrap(errs.ErrKindGenerationFailed, "failed to decode stream chunk", err)
		}
		if chunk.Error != "" {
			return errs.New(errs.ErrKindGenerationFailed, chunk.Error)
		}
		if chunk.Response != "" {
			if err := onChunk(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return mapTransportError(ctx, err)
	}
	if ctx.Err() != nil {
		return mapTransportError(ctx, ctx.Err())
	}
	return errs.New(errs.ErrKindGenerationFailed, "model stream ended before it was done")
}

// ListModels returns the names of locally pulled models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	resp, err := o.t.get(ctx, "/api/tags")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "failed to decode model list", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
