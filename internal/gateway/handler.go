package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/llmcache/internal/config"
	"github.com/af-corp/llmcache/internal/httputil"
	"github.com/af-corp/llmcache/internal/llmcache"
)

// Provider answers the three request kinds. Results are JSON values.
type Provider interface {
	DefaultModel(kind llmcache.Kind) string
	Chat(ctx context.Context, model string, messages []llmcache.Message) (json.RawMessage, error)
	Complete(ctx context.Context, model, prompt string, promptContext, metadata map[string]any) (json.RawMessage, error)
	Vision(ctx context.Context, model, prompt string, imageURLs []string) (json.RawMessage, error)
}

// circuitReporter is implemented by providers that guard models with circuit
// breakers.
type circuitReporter interface {
	CircuitStates() map[string]string
}

// Pinger reports whether the cache store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for the HTTP handlers. provider and cfg are
// read per request so a config reload takes effect without a restart.
type Handler struct {
	resolver *llmcache.Resolver
	provider func() Provider
	cfg      func() *config.Config
	store    Pinger
}

// NewHandler wires the handlers. store may be nil when the backend cannot be
// pinged.
func NewHandler(resolver *llmcache.Resolver, provider func() Provider, cfg func() *config.Config, store Pinger) *Handler {
	return &Handler{
		resolver: resolver,
		provider: provider,
		cfg:      cfg,
		store:    store,
	}
}

// failurePrefix is the message prefix for a failed provider call, per kind.
var failurePrefix = map[llmcache.Kind]string{
	llmcache.KindChat:       "Chat call failed: ",
	llmcache.KindCompletion: "LLM call failed: ",
	llmcache.KindVision:     "Vision call failed: ",
}

// Chat handles POST /llm/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var body chatBody
	if !h.decode(w, r, reqID, &body) {
		return
	}
	msgs, errs := body.validate()
	if len(errs) > 0 {
		httputil.WriteValidationError(w, reqID, "invalid chat request", errs)
		return
	}

	p := h.provider()
	model := modelOr(body.Model, p.DefaultModel(llmcache.KindChat))
	req := llmcache.NewChat(llmcache.ChatRequest{Model: model, Messages: msgs})
	h.resolve(w, r, reqID, req, cacheEnabled(body.Cache), func(ctx context.Context) (json.RawMessage, error) {
		return p.Chat(ctx, model, msgs)
	})
}

// Completion handles POST /llm/completion
func (h *Handler) Completion(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var body completionBody
	if !h.decode(w, r, reqID, &body) {
		return
	}
	if errs := body.validate(); len(errs) > 0 {
		httputil.WriteValidationError(w, reqID, "invalid completion request", errs)
		return
	}

	p := h.provider()
	model, keyMetadata := completionModel(body.Metadata, p.DefaultModel(llmcache.KindCompletion))
	req := llmcache.NewCompletion(llmcache.CompletionRequest{
		Prompt:   *body.Prompt,
		Context:  body.Context,
		Metadata: keyMetadata,
		Model:    model,
	})
	h.resolve(w, r, reqID, req, cacheEnabled(body.Cache), func(ctx context.Context) (json.RawMessage, error) {
		return p.Complete(ctx, model, *body.Prompt, body.Context, body.Metadata)
	})
}

// Vision handles POST /llm/vision
func (h *Handler) Vision(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var body visionBody
	if !h.decode(w, r, reqID, &body) {
		return
	}
	if errs := body.validate(); len(errs) > 0 {
		httputil.WriteValidationError(w, reqID, "invalid vision request", errs)
		return
	}

	p := h.provider()
	model := modelOr(body.Model, p.DefaultModel(llmcache.KindVision))
	req := llmcache.NewVision(llmcache.VisionRequest{
		Prompt:    *body.Prompt,
		ImageURLs: body.ImageURLs,
		Model:     model,
	})
	h.resolve(w, r, reqID, req, cacheEnabled(body.Cache), func(ctx context.Context) (json.RawMessage, error) {
		return p.Vision(ctx, model, *body.Prompt, body.ImageURLs)
	})
}

// decode reads a JSON body into dest, keeping numbers exact. It writes the
// error response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, reqID string, dest any) bool {
	defer r.Body.Close()
	limit := h.cfg().Server.MaxBodyBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteTooLargeError(w, reqID, "Request body too large")
			return false
		}
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return false
	}
	if dec.More() {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: trailing data after body")
		return false
	}
	return true
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, reqID string, req llmcache.Request, cache bool, invoke llmcache.InvokeFunc) {
	start := time.Now()
	kind := req.Kind()

	env, err := h.resolver.Resolve(r.Context(), req, cache, invoke, h.cfg().Cache.TTL)
	if err != nil {
		var encErr *llmcache.EncodingError
		var provErr *llmcache.ProviderError
		switch {
		case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
			slog.Info("client went away", "request_id", reqID, "kind", string(kind))
		case errors.As(err, &encErr):
			slog.Warn("request not cacheable", "request_id", reqID, "kind", string(kind), "error", err)
			httputil.WriteValidationError(w, reqID, "request cannot be fingerprinted", []httputil.FieldError{
				{Field: encErr.Path, Message: encErr.Reason},
			})
		case errors.As(err, &provErr):
			slog.Error("provider call failed", "request_id", reqID, "kind", string(kind), "error", err,
				"duration_ms", time.Since(start).Milliseconds())
			httputil.WriteProviderError(w, reqID, failurePrefix[kind]+provErr.Error())
		default:
			slog.Error("request failed", "request_id", reqID, "kind", string(kind), "error", err)
			httputil.WriteInternalError(w, reqID, "Request failed")
		}
		return
	}

	slog.Info("request completed",
		"request_id", reqID,
		"kind", string(kind),
		"cached", env.Cached,
		"cache_enabled", cache,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if env.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

// Health handles GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	svc := h.cfg().Service
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": svc.Name,
		"version": svc.Version,
	})
}

// Ready handles GET /ready. The service answers even with the store down, so
// an unreachable store or an open model circuit is reported as degraded rather
// than failing the probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "store": "ok"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			slog.Warn("cache store not reachable", "error", err)
			status["status"] = "degraded"
			status["store"] = "unreachable"
		}
	}
	if cr, ok := h.provider().(circuitReporter); ok {
		if circuits := cr.CircuitStates(); len(circuits) > 0 {
			status["circuits"] = circuits
			for _, state := range circuits {
				if state == "open" {
					status["status"] = "degraded"
				}
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
