// Package nl2sql turns a natural-language question into a validated SQL
// query and the query's result into a natural-language answer.
//
// The Synthesizer asks a text generator for a query, runs it, and when it
// fails feeds the failure back to the generator in a repair prompt, up to
// a bounded number of attempts. A query is only ever returned after it ran
// successfully and produced a non-empty result.
package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
)

// Executor runs a candidate query.
type Executor interface {
	Execute(ctx context.Context, sql string) (*database.Result, error)
}

// Checker is implemented by executors that can tell before any model call
// that they cannot run queries, e.g. because no database is connected.
type Checker interface {
	Check() error
}

// SchemaProvider describes the connected database as prompt text.
type SchemaProvider interface {
	Describe(ctx context.Context) (string, error)
}

// AttemptState is where an Attempt is in its life cycle.
type AttemptState int

const (
	AttemptPending AttemptState = iota
	AttemptSucceeded
	AttemptFailed
)

func (s AttemptState) String() string {
	switch s {
	case AttemptSucceeded:
		return "succeeded"
	case AttemptFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Attempt is one iteration of the synthesis loop.
type Attempt struct {
	Index  int
	Prompt string
	Raw    string // generator output, verbatim
	Query  string // extracted candidate, empty when extraction failed
	State  AttemptState
	Result *database.Result
	Err    error
}

// errNoRows is the failure of a query that ran but found nothing.
var errNoRows = errs.New(errs.ErrKindQueryFailed, "query returned no rows")

// Synthesis is the outcome of Synthesize.
type Synthesis struct {
	Query    string
	Result   *database.Result
	Attempts []Attempt
}

// Synthesizer runs the generate, execute, repair loop. It holds no
// per-call state and is safe for concurrent use.
type Synthesizer struct {
	gen  llm.Generator
	exec Executor
	opts options
}

// NewSynthesizer returns a Synthesizer that asks gen for queries and
// validates them with exec.
func NewSynthesizer(gen llm.Generator, exec Executor, opts ...Option) *Synthesizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Synthesizer{gen: gen, exec: exec, opts: o}
}

// MaxAttempts is the configured attempt bound.
func (s *Synthesizer) MaxAttempts() int { return s.opts.maxAttempts }

// Synthesize produces a query for question that ran successfully against
// the executor, together with its result.
//
// Failures:
//   - ErrKindInvalidInput: empty question.
//   - ErrKindGenerationFailed: the generator failed; not retried.
//   - ErrKindSynthesisExhausted: every attempt failed; wraps the last
//     attempt's failure.
//   - ErrKindTimeout: ctx was cancelled or expired.
//   - ErrKindNotConnected: the executor has no database, before the first
//     model call or during the loop; returned as is and not retried.
//
// The returned Synthesis is non-nil whenever the loop ran, so callers can
// inspect the attempts of a failed call.
func (s *Synthesizer) Synthesize(ctx context.Context, schema, question string) (*Synthesis, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "question is empty")
	}
	if c, ok := s.exec.(Checker); ok {
		if err := c.Check(); err != nil {
			s.opts.metrics.ObserveSynthesis(errs.KindOf(err).String())
			return nil, err
		}
	}

	log := s.opts.log
	limit := s.opts.maxAttempts
	syn := &Synthesis{Attempts: make([]Attempt, 0, limit)}
	prompt := queryPrompt(s.opts.dialect(), schema, question)

	var lastErr error
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return syn, s.finish(errs.Wrap(errs.ErrKindTimeout, "synthesis cancelled", err))
		}

		a := Attempt{Index: i, Prompt: prompt, State: AttemptPending}
		log.DebugWith("synthesis attempt", logger.Fields{"attempt": i, "max_attempts": limit})

		raw, err := s.generate(ctx, prompt)
		if err != nil {
			a.State, a.Err = AttemptFailed, err
			syn.Attempts = append(syn.Attempts, a)
			if ctx.Err() != nil {
				return syn, s.finish(errs.Wrap(errs.ErrKindTimeout, "synthesis cancelled", ctx.Err()))
			}
			log.ErrorWith("text generation failed", err, logger.Fields{"attempt": i})
			return syn, s.finish(errs.Wrap(errs.ErrKindGenerationFailed, "text generation failed", err))
		}

		a.Raw = raw
		s.validate(ctx, &a)
		syn.Attempts = append(syn.Attempts, a)

		if a.State == AttemptSucceeded {
			syn.Query, syn.Result = a.Query, a.Result
			log.InfoWith("query validated", logger.Fields{
				"attempt": i,
				"query":   a.Query,
				"rows":    len(a.Result.Rows),
			})
			s.finish(nil)
			return syn, nil
		}

		if ctx.Err() != nil {
			return syn, s.finish(errs.Wrap(errs.ErrKindTimeout, "synthesis cancelled", ctx.Err()))
		}
		if errs.IsNotConnected(a.Err) {
			log.WarnWith("database went away during synthesis", a.Err, logger.Fields{"attempt": i})
			s.opts.metrics.ObserveSynthesis(errs.KindOf(a.Err).String())
			return syn, a.Err
		}

		lastErr = a.Err
		reason := errs.Reason(a.Err)
		log.WarnWith("synthesis attempt failed", a.Err, logger.Fields{
			"attempt":      i,
			"max_attempts": limit,
			"state":        a.State.String(),
			"query":        a.Query,
			"reason":       reason,
		})
		prompt = repairPrompt(reason, question, schema)
	}

	return syn, s.finish(errs.Wrap(errs.ErrKindSynthesisExhausted,
		fmt.Sprintf("no valid query found after %d attempts", limit), lastErr))
}

// validate moves a from Pending to Succeeded or Failed: extract the
// candidate, run it, and require a non-empty result.
func (s *Synthesizer) validate(ctx context.Context, a *Attempt) {
	query, err := ExtractQuery(strings.TrimPrefix(a.Raw, a.Prompt))
	if err != nil {
		a.State, a.Err = AttemptFailed, err
		s.opts.metrics.ObserveAttempt(metrics.OutcomeExtractionFailed)
		return
	}
	a.Query = query

	result, err := s.execute(ctx, query)
	switch {
	case err != nil:
		a.State, a.Err = AttemptFailed, err
		s.opts.metrics.ObserveAttempt(metrics.OutcomeExecutionFailed)
	case result.Empty():
		a.State, a.Err, a.Result = AttemptFailed, errNoRows, result
		s.opts.metrics.ObserveAttempt(metrics.OutcomeEmptyResult)
	default:
		a.State, a.Result = AttemptSucceeded, result
		s.opts.metrics.ObserveAttempt(metrics.OutcomeSucceeded)
	}
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.opts.generationTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.gen.Generate(ctx, prompt)
	s.opts.metrics.ObserveGeneration(metrics.StageQuery, time.Since(start))
	return out, err
}

func (s *Synthesizer) execute(ctx context.Context, query string) (*database.Result, error) {
	ctx, cancel := withTimeout(ctx, s.opts.executionTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.exec.Execute(ctx, query)
	s.opts.metrics.ObserveQuery(time.Since(start))
	return res, err
}

// finish records the run's outcome and passes err through.
func (s *Synthesizer) finish(err *errs.Error) error {
	if err == nil {
		s.opts.metrics.ObserveSynthesis("succeeded")
		return nil
	}
	s.opts.metrics.ObserveSynthesis(err.Kind.String())
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
