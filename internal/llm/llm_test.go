package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/koustreak/askdb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Generate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		for _, part := range []string{"SELECT ", "COUNT(*) ", "FROM albums;"} {
			_, _ = fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", part)
		}
		_, _ = io.WriteString(w, `{"response":"","done":true}`+"\n")
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL + "/", Model: "codellama:7b"})
	require.NoError(t, err)

	out, err := o.Generate(context.Background(), "How many albums?")
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM albums;", out)
	assert.Equal(t, "codellama:7b", got.Model)
	assert.Equal(t, "How many albums?", got.Prompt)
	assert.True(t, got.Stream)
	assert.Equal(t, 0.0, got.Options["temperature"])
}

func TestOllama_StreamChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"There are ","done":false}`+"\n"+`{"response":"34 albums.","done":true}`+"\n")
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	require.NoError(t, err)

	var chunks []string
	err = o.Stream(context.Background(), "p", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"There are ", "34 albums."}, chunks)
}

func TestOllama_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"SELECT COUNT(*) ","done":false}`+"\n")
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	require.NoError(t, err)

	out, err := o.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errs.IsGenerationFailed(err), "got %v", err)
	assert.Empty(t, out)
}

func TestOllama_CallbackAbortsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"a","done":false}`+"\n"+`{"response":"b","done":true}`+"\n")
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	require.NoError(t, err)

	stop := errors.New("stop")
	err = o.Stream(context.Background(), "p", func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestOllama_UnknownModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL, Model: "nope"})
	require.NoError(t, err)

	_, err = o.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errs.IsGenerationFailed(err))
	assert.Contains(t, err.Error(), `model "nope" not found`)
}

func TestOllama_NoModel(t *testing.T) {
	o, err := NewOllama(Config{})
	require.NoError(t, err)
	_, err = o.Generate(context.Background(), "p")
	assert.True(t, errs.IsGenerationFailed(err))
}

func TestOllama_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3:latest"},{"name":"codellama:7b"}]}`)
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	models, err := o.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "codellama:7b"}, models)
}

func TestOllama_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, err := NewOllama(Config{BaseURL: url, Model: "llama3"})
	require.NoError(t, err)

	_, err = o.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errs.IsGenerationFailed(err))
}

func TestOllama_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	o, err := NewOllama(Config{BaseURL: srv.URL, Model: "llama3"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = o.Generate(ctx, "p")
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestOpenAI_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"SELECT 1\"}}]}\n\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\";\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.2})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "prompt text")
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1;", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, []chatMessage{{Role: "user", Content: "prompt text"}}, got.Messages)
	assert.Equal(t, 0.2, got.Temperature)
	assert.True(t, got.Stream)
}

func TestOpenAI_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errs.IsGenerationFailed(err))
	assert.Contains(t, err.Error(), "401: Incorrect API key provided")
}

func TestOpenAI_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"},{"id":"babbage-002"}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"babbage-002", "gpt-4o", "gpt-4o-mini"}, models)
}

func TestNewOpenAI_Validation(t *testing.T) {
	_, err := NewOpenAI(Config{APIKey: "k"})
	assert.True(t, errs.IsInvalidInput(err))
	_, err = NewOpenAI(Config{BaseURL: "http://x"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNew(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, c)

	c, err = New(Config{Provider: ProviderOpenAI, BaseURL: "http://x", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	_, err = New(Config{Provider: "bard"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestApiMessage(t *testing.T) {
	assert.Equal(t, "boom", apiMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "bad key", apiMessage([]byte(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "plain text", apiMessage([]byte(" plain text\n")))
}
