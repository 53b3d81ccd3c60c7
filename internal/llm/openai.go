package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/koustreak/askdb/internal/errs"
)

// OpenAI is a Client for any OpenAI-compatible /v1/chat/completions API.
// The prompt is sent as a single user message.
type OpenAI struct {
	t           transport
	model       string
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

var sseDone = []byte("[DONE]")

// NewOpenAI builds an OpenAI-compatible client. BaseURL and APIKey are
// required.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "base URL is required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "api key is required")
	}
	return &OpenAI{
		t: transport{
			baseURL: base,
			headers: map[string]string{"Authorization": "Bearer " + key},
			client:  &http.Client{Timeout: cfg.Timeout},
		},
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
	}, nil
}

// Generate returns the full completion for prompt.
func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	return Collect(ctx, c, prompt)
}

// Stream requests a streamed completion and relays each content delta from
// the server-sent events.
func (c *OpenAI) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	if c.model == "" {
		return errs.New(errs.ErrKindGenerationFailed, "no model configured")
	}
	resp, err := c.t.post(ctx, "/v1/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		data, ok := bytes.CutPrefix(scanner.Bytes(), []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if bytes.Equal(data, sseDone) {
			return nil
		}
		var chunk chatChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return errs.Wrap(errs.ErrKindGenerationFailed, "failed to decode stream chunk", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onChunk(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return mapTransportError(ctx, err)
	}
	return nil
}

// ListModels returns the model IDs the API exposes, sorted.
func (c *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.t.get(ctx, "/v1/models")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "failed to decode model list", err)
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
