// Package llm talks to text-generation backends. The core only needs
// Generator; Streamer and ModelLister are implemented by the concrete
// backends for the CLI and HTTP surfaces.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/errs"
)

// Generator turns a prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Streamer delivers a completion as it is produced. onChunk is called for
// every non-empty fragment; a non-nil return aborts the stream with that
// error.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error
}

// ModelLister reports the models a backend can serve.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Client is what a concrete backend provides.
type Client interface {
	Generator
	Streamer
	ModelLister
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Collect runs s to completion and returns the assembled text.
func Collect(ctx context.Context, s Streamer, prompt string) (string, error) {
	var sb strings.Builder
	err := s.Stream(ctx, prompt, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Provider names a backend protocol.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Config selects and configures a backend.
type Config struct {
	Provider    Provider      `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig targets a local Ollama at temperature 0.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOllama,
		BaseURL:     "http://localhost:11434",
		Model:       "llama3",
		Temperature: 0,
		Timeout:     60 * time.Second,
	}
}

// New builds the backend cfg names.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllama(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "unknown llm provider: "+string(cfg.Provider))
	}
}
