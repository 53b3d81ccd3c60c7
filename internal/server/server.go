// Package server exposes chat turns, connection management and model
// listing over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/askdb/internal/chat"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
	"github.com/koustreak/askdb/internal/session"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Dependencies are the services the API is built on. Models may be nil,
// making /v1/models answer 501; a nil Metrics makes /metrics a 404.
type Dependencies struct {
	Sessions *session.Manager
	Chat     *chat.Handler
	Models   llm.ModelLister
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

type api struct {
	deps Dependencies
	log  *logger.Logger
}

// NewHandler returns the API router.
func NewHandler(deps Dependencies) http.Handler {
	a := &api{deps: deps, log: deps.Logger}
	if a.log == nil {
		a.log = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(a.log))
	r.Use(metricsMiddleware(deps.Metrics))

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/connect", a.connect)
		r.Delete("/connect", a.disconnect)
		r.Get("/schema", a.schema)
		r.Post("/chat", a.chat)
		r.Get("/history", a.history)
		r.Delete("/history", a.clearHistory)
		r.Get("/models", a.models)
	})
	return r
}

type connectRequest struct {
	Location string `json:"location"`
}

type connectResponse struct {
	Location string `json:"location"`
	Driver   string `json:"driver"`
	Tables   int    `json:"tables"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error string       `json:"error"`
	Kind  errs.ErrKind `json:"kind"`
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": a.deps.Sessions.Connected(),
	})
}

func (a *api) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		writeError(w, errs.New(errs.ErrKindInvalidInput, "location is required"))
		return
	}

	s, err := a.deps.Sessions.Connect(r.Context(), req.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	tables, err := s.Tables(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{
		Location: s.Location(),
		Driver:   string(s.Driver()),
		Tables:   len(tables),
	})
}

func (a *api) disconnect(w http.ResponseWriter, _ *http.Request) {
	a.deps.Sessions.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) schema(w http.ResponseWriter, r *http.Request) {
	text, err := a.deps.Sessions.Describe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schema": text})
}

func (a *api) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, errs.New(errs.ErrKindInvalidInput, "question is required"))
		return
	}

	turn := a.deps.Chat.HandleTurn(r.Context(), req.Question)
	status := http.StatusOK
	if !turn.OK() {
		status = statusFor(turn.Kind)
	}
	writeJSON(w, status, turn)
}

func (a *api) history(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": a.deps.Chat.History().Messages()})
}

func (a *api) clearHistory(w http.ResponseWriter, _ *http.Request) {
	a.deps.Chat.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) models(w http.ResponseWriter, r *http.Request) {
	if a.deps.Models == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "model listing is not available"})
		return
	}
	models, err := a.deps.Models.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, statusFor(kind), errorResponse{Error: chat.UserMessage(err), Kind: kind})
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindNotConnected:
		return http.StatusConflict
	case errs.ErrKindSynthesisExhausted, errs.ErrKindQueryFailed:
		return http.StatusUnprocessableEntity
	case errs.ErrKindGenerationFailed, errs.ErrKindCompositionFailed, errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
