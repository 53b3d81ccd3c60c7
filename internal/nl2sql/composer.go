package nl2sql

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
)

// Composer turns a validated query and its result into a natural-language
// answer with a single model invocation.
type Composer struct {
	gen  llm.Generator
	opts options
}

// NewComposer returns a Composer backed by gen. Only the timeout, dialect,
// logger and metrics options apply.
func NewComposer(gen llm.Generator, opts ...Option) *Composer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Composer{gen: gen, opts: o}
}

// Compose asks the model to answer question from query and result. Any
// failure, including an empty answer, is ErrKindCompositionFailed unless
// ctx was cancelled.
func (c *Composer) Compose(ctx context.Context, schema, question, query string, result *database.Result) (string, error) {
	return c.compose(ctx, schema, question, query, result, nil)
}

// ComposeStream is Compose with incremental delivery: onChunk receives the
// answer as the model produces it when the generator can stream, or once
// with the whole answer otherwise. The cleaned full answer is returned.
func (c *Composer) ComposeStream(ctx context.Context, schema, question, query string, result *database.Result, onChunk func(string) error) (string, error) {
	return c.compose(ctx, schema, question, query, result, onChunk)
}

func (c *Composer) compose(ctx context.Context, schema, question, query string, result *database.Result, onChunk func(string) error) (string, error) {
	if result == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "no query result to compose from")
	}
	prompt := answerPrompt(c.opts.dialect(), schema, question, query, result.String())

	gctx, cancel := withTimeout(ctx, c.opts.generationTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.generate(gctx, prompt, onChunk)
	c.opts.metrics.ObserveGeneration(metrics.StageAnswer, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrKindTimeout, "composition cancelled", ctx.Err())
		}
		c.opts.log.ErrorWith("answer composition failed", err, logger.Fields{"query": query})
		return "", errs.Wrap(errs.ErrKindCompositionFailed, "failed to compose answer", err)
	}

	answer := cleanAnswer(raw, prompt)
	if answer == "" {
		return "", errs.New(errs.ErrKindCompositionFailed, "model returned an empty answer")
	}
	return answer, nil
}

func (c *Composer) generate(ctx context.Context, prompt string, onChunk func(string) error) (string, error) {
	if onChunk == nil {
		return c.gen.Generate(ctx, prompt)
	}
	s, ok := c.gen.(llm.Streamer)
	if !ok {
		out, err := c.gen.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		if err := onChunk(cleanAnswer(out, prompt)); err != nil {
			return "", err
		}
		return out, nil
	}

	var sb strings.Builder
	err := s.Stream(ctx, prompt, func(chunk string) error {
		sb.WriteString(chunk)
		return onChunk(chunk)
	})
	return sb.String(), err
}

// cleanAnswer drops an echoed prompt and a leading "Response:" label.
func cleanAnswer(raw, prompt string) string {
	out := strings.TrimSpace(strings.TrimPrefix(raw, prompt))
	if len(out) >= len("response:") && strings.EqualFold(out[:len("response:")], "response:") {
		out = strings.TrimSpace(out[len("response:"):])
	}
	return out
}
