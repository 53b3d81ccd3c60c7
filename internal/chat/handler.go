// Package chat runs conversation turns: one question in, one answer (or a
// user-facing failure) out, with the transcript kept in a History.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
	"github.com/koustreak/askdb/internal/nl2sql"
	"github.com/koustreak/askdb/internal/session"
)

// User-facing failure messages.
const (
	MsgNotConnected = "Please connect to a database first."
	MsgNoValidQuery = "No valid query found for that question."
	MsgTimeout      = "The request was cancelled before an answer was ready."
)

// Sessions hands out the active database connection. A *session.Manager
// satisfies it and reports ErrKindNotConnected when nothing is connected.
type Sessions interface {
	Current() (*session.Session, error)
}

// Config tunes the synthesis loop behind every turn.
type Config struct {
	MaxAttempts       int
	GenerationTimeout time.Duration
	ExecutionTimeout  time.Duration
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       nl2sql.DefaultMaxAttempts,
		GenerationTimeout: nl2sql.DefaultGenerationTimeout,
		ExecutionTimeout:  nl2sql.DefaultExecutionTimeout,
	}
}

// Turn is the outcome of one question. On failure Error holds the message
// shown to the user and Kind its category; a composition failure still
// carries the validated Query and Result.
type Turn struct {
	ID       string           `json:"id"`
	Question string           `json:"question"`
	Answer   string           `json:"answer,omitempty"`
	Query    string           `json:"query,omitempty"`
	Result   *database.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Kind     errs.ErrKind     `json:"kind,omitempty"`
	Attempts int              `json:"attempts"`
	Elapsed  time.Duration    `json:"elapsed_ns"`
}

// OK reports whether the turn produced an answer.
func (t Turn) OK() bool { return t.Error == "" }

// Handler runs turns one at a time. Each turn is pinned to the session
// that was active when it started: the schema text, every candidate query
// and the answer all refer to the same database.
type Handler struct {
	mu sync.Mutex

	sessions Sessions
	gen      llm.Generator
	opts     []nl2sql.Option
	history  *History
	last     *Turn

	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that answers questions with gen against
// whichever session is active when a turn starts.
func NewHandler(sessions Sessions, gen llm.Generator, cfg Config, log *logger.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		sessions: sessions,
		gen:      gen,
		opts: []nl2sql.Option{
			nl2sql.WithMaxAttempts(cfg.MaxAttempts),
			nl2sql.WithTimeouts(cfg.GenerationTimeout, cfg.ExecutionTimeout),
			nl2sql.WithLogger(log),
			nl2sql.WithMetrics(m),
		},
		history: &History{},
		log:     log,
		metrics: m,
	}
}

// History is the handler's transcript.
func (h *Handler) History() *History { return h.history }

// Clear resets the transcript and forgets the last turn.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history.Clear()
	h.last = nil
}

// LastTurn returns the most recent turn, if any.
func (h *Handler) LastTurn() (Turn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Turn{}, false
	}
	return *h.last, true
}

// HandleTurn answers question. Failures are reported in the Turn, never
// as a panic or a separate error.
func (h *Handler) HandleTurn(ctx context.Context, question string) Turn {
	return h.HandleTurnStream(ctx, question, nil)
}

// HandleTurnStream is HandleTurn with the answer delivered to onChunk as
// the model writes it. onChunk may be nil.
func (h *Handler) HandleTurnStream(ctx context.Context, question string, onChunk func(string) error) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	turn := Turn{ID: uuid.NewString(), Question: question}
	log := h.log.With().Str("turn_id", turn.ID).Logger()

	h.run(log.WithContext(ctx), log, &turn, onChunk)

	turn.Elapsed = time.Since(start)
	h.record(turn)

	kind := "answered"
	if !turn.OK() {
		kind = turn.Kind.String()
	}
	h.metrics.ObserveTurn(kind)
	log.InfoWith("turn finished", logger.Fields{
		"outcome":  kind,
		"attempts": turn.Attempts,
		"elapsed":  turn.Elapsed.String(),
	})
	return turn
}

func (h *Handler) run(ctx context.Context, log *logger.Logger, turn *Turn, onChunk func(string) error) {
	sess, err := h.sessions.Current()
	if err != nil {
		turn.fail(err)
		return
	}
	schema, err := sess.Describe(ctx)
	if err != nil {
		turn.fail(err)
		return
	}

	opts := append([]nl2sql.Option{nl2sql.WithDialect(sess.Dialect)}, h.opts...)
	syn, err := nl2sql.NewSynthesizer(h.gen, sess, opts...).Synthesize(ctx, schema, turn.Question)
	if syn != nil {
		turn.Attempts = len(syn.Attempts)
	}
	if err != nil {
		turn.fail(err)
		return
	}
	turn.Query, turn.Result = syn.Query, syn.Result

	composer := nl2sql.NewComposer(h.gen, opts...)
	var answer string
	if onChunk != nil {
		answer, err = composer.ComposeStream(ctx, schema, turn.Question, syn.Query, syn.Result, onChunk)
	} else {
		answer, err = composer.Compose(ctx, schema, turn.Question, syn.Query, syn.Result)
	}
	if err != nil {
		log.WarnWith("answer not composed", err, logger.Fields{"query": syn.Query})
		turn.fail(err)
		return
	}
	turn.Answer = answer
}

// record appends the turn to the transcript and remembers it.
func (h *Handler) record(turn Turn) {
	reply := turn.Answer
	if !turn.OK() {
		reply = turn.Error
	}
	now := time.Now()
	h.history.append(
		Message{Role: RoleUser, Content: turn.Question, TurnID: turn.ID, At: now},
		Message{Role: RoleAssistant, Content: reply, TurnID: turn.ID, At: now},
	)
	h.last = &turn
}

func (t *Turn) fail(err error) {
	t.Kind = errs.KindOf(err)
	t.Error = UserMessage(err)
}

// UserMessage is the text shown to a user for err.
func UserMessage(err error) string {
	switch errs.KindOf(err) {
	case errs.ErrKindNotConnected:
		return MsgNotConnected
	case errs.ErrKindSynthesisExhausted:
		return MsgNoValidQuery
	case errs.ErrKindTimeout:
		return MsgTimeout
	case errs.ErrKindCompositionFailed:
		return "Failed to compose an answer: " + errs.Reason(err)
	default:
		return errs.Reason(err)
	}
}
