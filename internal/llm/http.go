package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koustreak/askdb/internal/errs"
)

// maxErrorBody caps how much of an error response is quoted back.
const maxErrorBody = 4 << 10

// transport is the HTTP plumbing shared by the backends.
type transport struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

func (t *transport) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "failed to marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(ctx, req)
}

func (t *transport) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "failed to create request", err)
	}
	return t.do(ctx, req)
}

// do sends req and turns transport failures and non-2xx statuses into
// *errs.Error. The caller owns the body of a successful response.
func (t *transport) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}
	if resp.StatusCode/100 != 2 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errs.New(errs.ErrKindGenerationFailed,
			fmt.Sprintf("model backend returned %d: %s", resp.StatusCode, apiMessage(body)))
	}
	return resp, nil
}

func mapTransportError(ctx context.Context, err error) *errs.Error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindTimeout, "model request cancelled", err)
	}
	return errs.Wrap(errs.ErrKindGenerationFailed, "model backend unreachable", err)
}

// apiMessage pulls the human message out of the error envelopes Ollama
// ({"error": "..."}) and OpenAI ({"error": {"message": "..."}}) use,
// falling back to the raw body.
func apiMessage(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return strings.TrimSpace(string(body))
}
